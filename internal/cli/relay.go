package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/starfall-labs/relay-memory/internal/extract"
	"github.com/starfall-labs/relay-memory/internal/hydrate"
	"github.com/starfall-labs/relay-memory/internal/policy"
	"github.com/starfall-labs/relay-memory/internal/relay"
	"github.com/starfall-labs/relay-memory/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a session from a session file",
		Long:  "Run a multi-agent session: each participant is hydrated with context, turns are archived as they happen, and the entry is sealed and distilled when the session ends. Ctrl-C stops the exchange but the partial session is still sealed.",
		Run:   runRelay,
	}

	cmd.Flags().StringP("session", "S", "", "Path to the session YAML file (required)")
	cmd.Flags().String("kickoff", "", "Override the session file's kickoff message")
	cmd.Flags().String("live", "", "Serve the HTTP API on this address while the session runs; websocket observers see turns live")

	cmd.MarkFlagRequired("session")

	RootCmd.AddCommand(cmd)
}

func runRelay(cmd *cobra.Command, args []string) {
	sessionPath, _ := cmd.Flags().GetString("session")
	kickoff, _ := cmd.Flags().GetString("kickoff")
	liveAddr, _ := cmd.Flags().GetString("live")

	sess, err := policy.Load(sessionPath)
	if err != nil {
		exitErr("load session", err)
	}
	if kickoff == "" {
		kickoff = sess.Kickoff
	}

	s, cfg, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	// Config fills what the session file leaves unset.
	if sess.PaceEvery == 0 {
		sess.PaceEvery = cfg.Relay.Pace
	}
	if sess.MaxTokens == 0 {
		sess.MaxTokens = cfg.Relay.MaxTokens
	}

	hcfg := cfg.HydrateConfig()
	if h := sess.Hydration; h != nil {
		if h.Budget > 0 {
			hcfg.Budget = h.Budget
		}
		if h.TopN > 0 {
			hcfg.TopN = h.TopN
		}
		if h.MaxNotes > 0 {
			hcfg.MaxNotes = h.MaxNotes
		}
		if h.Excerpts > 0 {
			hcfg.Excerpts = h.Excerpts
		}
	}
	engine, err := hydrate.New(s, hcfg)
	if err != nil {
		exitErr("relay", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onMessage := printMessage
	if liveAddr != "" {
		srv := server.NewServer(s, server.WithAddr(liveAddr), server.WithHydration(engine))
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("live server stopped")
			}
		}()
		onMessage = func(m relay.Message) {
			printMessage(m)
			srv.Broadcast(m)
		}
	}

	r, err := relay.FromSession(sess, s, engine,
		relay.WithExtractor(extract.New(s, cfg.Scorer())),
		relay.WithOnMessage(onMessage),
	)
	if err != nil {
		exitErr("relay", err)
	}

	res, err := r.Run(ctx, kickoff)
	if res != nil {
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(b))
	}
	if err != nil {
		exitErr("relay", err)
	}
}

func printMessage(m relay.Message) {
	if formatFlag == "text" {
		fmt.Printf("\n[%s]\n%s\n", m.Speaker, m.Content)
		return
	}
	b, _ := json.Marshal(m)
	fmt.Println(string(b))
}
