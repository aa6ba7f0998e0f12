package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/starfall-labs/relay-memory/internal/salience"
	"github.com/starfall-labs/relay-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a memory record",
		Long:  "Store a memory record. Content can be a positional arg or piped via stdin. Score defaults to the salience scorer's estimate.",
		Run:   runRemember,
	}

	cmd.Flags().StringP("scope", "s", "", "Owner scope (required; 'shared' for everyone)")
	cmd.Flags().String("kind", "semantic", "Kind: episodic, semantic, relational")
	cmd.Flags().Float64("score", -1, "Salience score in [0,1]; negative means auto")
	cmd.Flags().String("origin", "", "Archive entry or document this came from")
	cmd.Flags().StringP("keywords", "k", "", "Comma-separated keywords")

	cmd.MarkFlagRequired("scope")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	kind, _ := cmd.Flags().GetString("kind")
	score, _ := cmd.Flags().GetFloat64("score")
	origin, _ := cmd.Flags().GetString("origin")
	keywordsStr, _ := cmd.Flags().GetString("keywords")

	// Get content: positional arg first, then check stdin
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	content = strings.TrimSpace(content)

	if content == "" {
		exitErr("remember", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	var keywords []string
	if keywordsStr != "" {
		for _, k := range strings.Split(keywordsStr, ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				keywords = append(keywords, k)
			}
		}
	}

	s, cfg, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if score < 0 {
		score = cfg.Scorer().Score(content, salience.Meta{Scope: scope, Kind: kind})
	}

	rec, err := s.PutMemory(cmd.Context(), store.PutMemoryParams{
		Kind:     kind,
		Scope:    scope,
		Content:  content,
		Score:    score,
		Valence:  salience.Valence(content),
		Origin:   origin,
		Keywords: keywords,
	})
	if err != nil {
		exitErr("remember", err)
	}

	b, _ := json.Marshal(rec)
	fmt.Println(string(b))
}
