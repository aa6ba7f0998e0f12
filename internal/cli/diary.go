package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	diaryCmd := &cobra.Command{
		Use:   "diary",
		Short: "Versioned context documents, one chain per scope",
	}

	publishCmd := &cobra.Command{
		Use:   "publish [content]",
		Short: "Publish a new diary version for a scope",
		Long:  "Publish a new diary version. The previous version is retained and marked superseded. Content can be a positional arg or piped via stdin.",
		Run:   runDiaryPublish,
	}
	publishCmd.Flags().StringP("scope", "s", "", "Scope the document belongs to (required)")
	publishCmd.MarkFlagRequired("scope")

	currentCmd := &cobra.Command{
		Use:   "current",
		Short: "Show the latest diary version for a scope",
		Run:   runDiaryCurrent,
	}
	currentCmd.Flags().StringP("scope", "s", "", "Scope (required)")
	currentCmd.MarkFlagRequired("scope")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show all diary versions for a scope, oldest first",
		Run:   runDiaryHistory,
	}
	historyCmd.Flags().StringP("scope", "s", "", "Scope (required)")
	historyCmd.MarkFlagRequired("scope")

	digestCmd := &cobra.Command{
		Use:   "digest",
		Short: "Distill the current diary version into memory records",
		Long:  "Distill the current diary version into semantic memory records, one per section. Digesting the same version twice is a no-op.",
		Run:   runDiaryDigest,
	}
	digestCmd.Flags().StringP("scope", "s", "", "Scope (required)")
	digestCmd.MarkFlagRequired("scope")

	diaryCmd.AddCommand(publishCmd, currentCmd, historyCmd, digestCmd)
	RootCmd.AddCommand(diaryCmd)
}

func runDiaryPublish(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")

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

	if strings.TrimSpace(content) == "" {
		exitErr("diary publish", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	doc, err := s.PublishDocument(cmd.Context(), scope, content)
	if err != nil {
		exitErr("diary publish", err)
	}

	b, _ := json.Marshal(doc)
	fmt.Println(string(b))
}

func runDiaryCurrent(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	doc, err := s.CurrentDocument(cmd.Context(), scope)
	if err != nil {
		exitErr("diary current", err)
	}

	if formatFlag == "text" {
		fmt.Println(doc.Content)
		return
	}

	b, _ := json.MarshalIndent(doc, "", "  ")
	fmt.Println(string(b))
}

func runDiaryHistory(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	docs, err := s.DocumentHistory(cmd.Context(), scope)
	if err != nil {
		exitErr("diary history", err)
	}

	b, _ := json.MarshalIndent(docs, "", "  ")
	fmt.Println(string(b))
}

func runDiaryDigest(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	res, err := s.DigestDocument(cmd.Context(), scope)
	if err != nil {
		exitErr("diary digest", err)
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
