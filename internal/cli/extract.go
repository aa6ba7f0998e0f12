package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/starfall-labs/relay-memory/internal/extract"
)

func init() {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Distill a sealed entry into memories and continuity state",
		Long:  "Distill a sealed archive entry into episodic and relational memory records, plus a continuity note per mapped identity. Extraction is idempotent per entry.",
		Run:   runExtract,
	}

	cmd.Flags().StringP("entry", "e", "", "Sealed entry id (required)")
	cmd.Flags().StringSlice("identity", nil, "participant=identity mappings (repeatable)")

	cmd.MarkFlagRequired("entry")

	RootCmd.AddCommand(cmd)
}

func runExtract(cmd *cobra.Command, args []string) {
	entryID, _ := cmd.Flags().GetString("entry")
	pairs, _ := cmd.Flags().GetStringSlice("identity")

	identities := make(map[string]string)
	for _, pair := range pairs {
		name, id, ok := strings.Cut(pair, "=")
		if !ok || name == "" || id == "" {
			exitErr("extract", fmt.Errorf("malformed identity mapping %q (want participant=identity)", pair))
		}
		identities[name] = id
	}

	s, cfg, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	report, err := extract.New(s, cfg.Scorer()).ExtractSession(cmd.Context(), extract.Params{
		EntryID:    entryID,
		Identities: identities,
	})
	if err != nil {
		exitErr("extract", err)
	}

	b, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(b))
}
