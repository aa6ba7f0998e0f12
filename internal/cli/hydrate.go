package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/starfall-labs/relay-memory/internal/hydrate"
)

func init() {
	cmd := &cobra.Command{
		Use:   "hydrate [turn text]",
		Short: "Assemble a context bundle for a participant",
		Long:  "Assemble a context bundle for one participant: continuity first, then diary, then scored memories, then archive excerpts, packed whole-unit into the budget. Included memories are reinforced.",
		Run:   runHydrate,
	}

	cmd.Flags().StringP("scope", "s", "", "Participant scope (required)")
	cmd.Flags().StringP("identity", "i", "", "Continuity identity")
	cmd.Flags().IntP("budget", "b", 0, "Bundle size cap in characters (0 uses config)")
	cmd.Flags().Int("top-n", 0, "Memory records considered (0 uses config)")

	cmd.MarkFlagRequired("scope")

	RootCmd.AddCommand(cmd)
}

func runHydrate(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	identity, _ := cmd.Flags().GetString("identity")
	budget, _ := cmd.Flags().GetInt("budget")
	topN, _ := cmd.Flags().GetInt("top-n")

	s, cfg, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	engine, err := hydrate.New(s, cfg.HydrateConfig())
	if err != nil {
		exitErr("hydrate", err)
	}

	bundle, err := engine.Hydrate(cmd.Context(), hydrate.Request{
		Scope:    scope,
		Identity: identity,
		TurnText: strings.Join(args, " "),
		Budget:   budget,
		TopN:     topN,
	})
	if err != nil {
		exitErr("hydrate", err)
	}

	if formatFlag == "text" {
		fmt.Println(bundle.Text())
		return
	}

	b, _ := json.MarshalIndent(bundle, "", "  ")
	fmt.Println(string(b))
}
