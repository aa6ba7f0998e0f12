package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/starfall-labs/relay-memory/internal/store"
)

func init() {
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Session transcript archive",
	}

	openCmd := &cobra.Command{
		Use:   "open",
		Short: "Open a new archive entry",
		Run:   runArchiveOpen,
	}
	openCmd.Flags().StringP("participants", "p", "", "Participant names (comma-separated, required)")
	openCmd.MarkFlagRequired("participants")

	appendCmd := &cobra.Command{
		Use:   "append [content]",
		Short: "Append a turn to an open entry",
		Run:   runArchiveAppend,
	}
	appendCmd.Flags().StringP("entry", "e", "", "Entry id (required)")
	appendCmd.Flags().String("speaker", "", "Speaker name (required)")
	appendCmd.MarkFlagRequired("entry")
	appendCmd.MarkFlagRequired("speaker")

	sealCmd := &cobra.Command{
		Use:   "seal",
		Short: "Seal an entry, making it immutable and searchable",
		Run:   runArchiveSeal,
	}
	sealCmd.Flags().StringP("entry", "e", "", "Entry id (required)")
	sealCmd.MarkFlagRequired("entry")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List archive entries, newest first",
		Run:   runArchiveList,
	}
	listCmd.Flags().IntP("limit", "l", 20, "Max results")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search sealed transcripts",
		Long:  "Search sealed transcripts. The full phrase is tried first; individual terms are the fallback. Results are excerpts, never whole transcripts.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runArchiveSearch,
	}
	searchCmd.Flags().IntP("limit", "l", 10, "Max results")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show an entry and its transcript",
		Run:   runArchiveShow,
	}
	showCmd.Flags().StringP("entry", "e", "", "Entry id (required)")
	showCmd.MarkFlagRequired("entry")

	annotateCmd := &cobra.Command{
		Use:   "annotate",
		Short: "Attach a summary, topic, and key points to a sealed entry",
		Run:   runArchiveAnnotate,
	}
	annotateCmd.Flags().StringP("entry", "e", "", "Entry id (required)")
	annotateCmd.Flags().String("summary", "", "One-paragraph summary")
	annotateCmd.Flags().String("topic", "", "Topic label")
	annotateCmd.Flags().String("key-points", "", "Key points (comma-separated)")
	annotateCmd.MarkFlagRequired("entry")

	archiveCmd.AddCommand(openCmd, appendCmd, sealCmd, listCmd, searchCmd, showCmd, annotateCmd)
	RootCmd.AddCommand(archiveCmd)
}

func runArchiveOpen(cmd *cobra.Command, args []string) {
	participantsStr, _ := cmd.Flags().GetString("participants")

	var participants []string
	for _, p := range strings.Split(participantsStr, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			participants = append(participants, p)
		}
	}

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entry, err := s.OpenEntry(cmd.Context(), participants)
	if err != nil {
		exitErr("archive open", err)
	}

	b, _ := json.Marshal(entry)
	fmt.Println(string(b))
}

func runArchiveAppend(cmd *cobra.Command, args []string) {
	entryID, _ := cmd.Flags().GetString("entry")
	speaker, _ := cmd.Flags().GetString("speaker")

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
		exitErr("archive append", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	turn, err := s.AppendTurn(cmd.Context(), entryID, speaker, content)
	if err != nil {
		exitErr("archive append", err)
	}

	b, _ := json.Marshal(turn)
	fmt.Println(string(b))
}

func runArchiveSeal(cmd *cobra.Command, args []string) {
	entryID, _ := cmd.Flags().GetString("entry")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entry, err := s.SealEntry(cmd.Context(), entryID)
	if err != nil {
		exitErr("archive seal", err)
	}

	b, _ := json.Marshal(entry)
	fmt.Println(string(b))
}

func runArchiveList(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entries, err := s.ListEntries(cmd.Context(), limit)
	if err != nil {
		exitErr("archive list", err)
	}

	b, _ := json.MarshalIndent(entries, "", "  ")
	fmt.Println(string(b))
}

func runArchiveSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	matches, err := s.SearchArchive(cmd.Context(), store.SearchParams{
		Query: strings.Join(args, " "),
		Limit: limit,
	})
	if err != nil {
		exitErr("archive search", err)
	}

	if formatFlag == "text" {
		for _, m := range matches {
			fmt.Printf("%s #%d  %s: %s\n", m.EntryID, m.Seq, m.Speaker, m.Excerpt)
		}
		return
	}

	b, _ := json.MarshalIndent(matches, "", "  ")
	fmt.Println(string(b))
}

func runArchiveShow(cmd *cobra.Command, args []string) {
	entryID, _ := cmd.Flags().GetString("entry")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entry, err := s.GetEntry(cmd.Context(), entryID)
	if err != nil {
		exitErr("archive show", err)
	}
	turns, err := s.Transcript(cmd.Context(), entryID)
	if err != nil {
		exitErr("archive show", err)
	}

	if formatFlag == "text" {
		fmt.Printf("%s  participants=%s  turns=%d\n", entry.ID, strings.Join(entry.Participants, ","), len(turns))
		if entry.Summary != "" {
			fmt.Printf("summary: %s\n", entry.Summary)
		}
		fmt.Println()
		fmt.Print(store.RenderTranscript(turns))
		return
	}

	b, _ := json.MarshalIndent(map[string]interface{}{
		"entry": entry,
		"turns": turns,
	}, "", "  ")
	fmt.Println(string(b))
}

func runArchiveAnnotate(cmd *cobra.Command, args []string) {
	entryID, _ := cmd.Flags().GetString("entry")
	summary, _ := cmd.Flags().GetString("summary")
	topic, _ := cmd.Flags().GetString("topic")
	keyPointsStr, _ := cmd.Flags().GetString("key-points")

	var keyPoints []string
	if keyPointsStr != "" {
		for _, k := range strings.Split(keyPointsStr, ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				keyPoints = append(keyPoints, k)
			}
		}
	}

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.AnnotateEntry(cmd.Context(), entryID, summary, topic, keyPoints); err != nil {
		exitErr("archive annotate", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"entry":%q}`+"\n", entryID)
}
