package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/starfall-labs/relay-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Query memory records",
		Long:  "Query memory records by scope, kind, origin, and content substring. Reading records never changes their scores.",
		Run:   runRecall,
	}

	cmd.Flags().String("id", "", "Fetch a single record by id")
	cmd.Flags().StringP("scope", "s", "", "Filter by scopes (comma-separated)")
	cmd.Flags().String("kind", "", "Filter by kind")
	cmd.Flags().String("origin", "", "Filter by origin entry or document")
	cmd.Flags().Float64("min-score", 0, "Minimum score")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	scopeStr, _ := cmd.Flags().GetString("scope")
	kind, _ := cmd.Flags().GetString("kind")
	origin, _ := cmd.Flags().GetString("origin")
	minScore, _ := cmd.Flags().GetFloat64("min-score")
	limit, _ := cmd.Flags().GetInt("limit")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if id != "" {
		rec, err := s.GetMemory(cmd.Context(), id)
		if err != nil {
			exitErr("recall", err)
		}
		b, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(b))
		return
	}

	var scopes []string
	if scopeStr != "" {
		for _, sc := range strings.Split(scopeStr, ",") {
			sc = strings.TrimSpace(sc)
			if sc != "" {
				scopes = append(scopes, sc)
			}
		}
	}

	records, err := s.QueryMemories(cmd.Context(), store.QueryParams{
		Scopes:   scopes,
		Kind:     kind,
		Text:     strings.Join(args, " "),
		Origin:   origin,
		MinScore: minScore,
		Limit:    limit,
	})
	if err != nil {
		exitErr("recall", err)
	}

	if formatFlag == "text" {
		for _, r := range records {
			fmt.Printf("%s  %.2f  %-10s  %-12s  %s\n", r.ID, r.Score, r.Kind, r.Scope, firstLine(r.Content))
		}
		return
	}

	b, _ := json.MarshalIndent(records, "", "  ")
	fmt.Println(string(b))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
