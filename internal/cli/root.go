// Package cli implements the relay-memory CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/starfall-labs/relay-memory/internal/config"
	"github.com/starfall-labs/relay-memory/internal/store"
)

var (
	dbPath      string
	formatFlag  string
	verboseFlag bool
	prettyFlag  bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "relay-memory",
	Short: "Adaptive memory for recurring AI-to-AI sessions",
	Long:  "Memory, diary, archive, and continuity for recurring multi-agent conversations. SQLite-backed, single binary.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $RELAY_MEMORY_DB or ~/.relay-memory/relay.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Debug logging")
	RootCmd.PersistentFlags().BoolVar(&prettyFlag, "pretty", false, "Human-readable log output")
}

// setupLogging sends structured logs to stderr so stdout stays clean for
// piping (e.g. relay-memory recall ... | jq).
func setupLogging() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verboseFlag {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if prettyFlag {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// loadConfig layers the --db flag and $RELAY_MEMORY_DB over the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	} else if env := os.Getenv("RELAY_MEMORY_DB"); env != "" {
		cfg.DBPath = env
	}
	return cfg, nil
}

func openStore() (*store.SQLiteStore, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := cfg.OpenStore()
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
