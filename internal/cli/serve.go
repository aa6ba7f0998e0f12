package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/starfall-labs/relay-memory/internal/hydrate"
	"github.com/starfall-labs/relay-memory/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long:  "Run the HTTP API server: read access to memories, diary, archive, and ledger, plus hydration and a websocket feed of live sessions. Retention runs on the configured schedule while the server is up.",
		Run:   runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (overrides config)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")

	s, cfg, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	engine, err := hydrate.New(s, cfg.HydrateConfig())
	if err != nil {
		exitErr("serve", err)
	}

	if addr == "" {
		addr = cfg.Server.Addr
	}

	srv := server.NewServer(s,
		server.WithAddr(addr),
		server.WithHydration(engine),
		server.WithRetention(s, cfg.RetentionPolicy(), cfg.Memory.RetentionCron),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("addr", addr).Str("db", cfg.DBPath).Msg("starting server")
	if err := srv.Run(ctx); err != nil {
		exitErr("serve", err)
	}
}
