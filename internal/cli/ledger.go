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
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Continuity notes and profiles, one ledger per identity",
	}

	noteCmd := &cobra.Command{
		Use:   "note [content]",
		Short: "Append a continuity note",
		Long:  "Append a continuity note to an identity's ledger. Notes are append-only and never rewritten.",
		Run:   runLedgerNote,
	}
	noteCmd.Flags().StringP("identity", "i", "", "Identity the note belongs to (required)")
	noteCmd.Flags().StringP("tags", "t", "", "Tags (comma-separated)")
	noteCmd.MarkFlagRequired("identity")

	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Set a profile field",
		Long:  "Set a profile field on an identity's ledger. Only configured field names are accepted.",
		Run:   runLedgerProfile,
	}
	profileCmd.Flags().StringP("identity", "i", "", "Identity (required)")
	profileCmd.Flags().String("field", "", "Field name (required)")
	profileCmd.Flags().String("value", "", "Field value (required)")
	profileCmd.MarkFlagRequired("identity")
	profileCmd.MarkFlagRequired("field")
	profileCmd.MarkFlagRequired("value")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show an identity's continuity state",
		Run:   runLedgerShow,
	}
	showCmd.Flags().StringP("identity", "i", "", "Identity (required)")
	showCmd.Flags().Int("notes", 20, "Max notes to include, newest first")
	showCmd.MarkFlagRequired("identity")

	ledgerCmd.AddCommand(noteCmd, profileCmd, showCmd)
	RootCmd.AddCommand(ledgerCmd)
}

func runLedgerNote(cmd *cobra.Command, args []string) {
	identity, _ := cmd.Flags().GetString("identity")
	tagsStr, _ := cmd.Flags().GetString("tags")

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
		exitErr("ledger note", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	var tags []string
	if tagsStr != "" {
		for _, t := range strings.Split(tagsStr, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tags = append(tags, t)
			}
		}
	}

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	note, err := s.AppendNote(cmd.Context(), identity, content, tags)
	if err != nil {
		exitErr("ledger note", err)
	}

	b, _ := json.Marshal(note)
	fmt.Println(string(b))
}

func runLedgerProfile(cmd *cobra.Command, args []string) {
	identity, _ := cmd.Flags().GetString("identity")
	field, _ := cmd.Flags().GetString("field")
	value, _ := cmd.Flags().GetString("value")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.UpdateProfile(cmd.Context(), identity, field, value); err != nil {
		exitErr("ledger profile", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"identity":%q,"field":%q}`+"\n", identity, field)
}

func runLedgerShow(cmd *cobra.Command, args []string) {
	identity, _ := cmd.Flags().GetString("identity")
	maxNotes, _ := cmd.Flags().GetInt("notes")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	cont, err := s.LoadContinuity(cmd.Context(), identity, maxNotes)
	if err != nil {
		exitErr("ledger show", err)
	}

	b, _ := json.MarshalIndent(cont, "", "  ")
	fmt.Println(string(b))
}
