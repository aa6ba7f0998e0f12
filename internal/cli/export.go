package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full database as JSON",
		Long:  "Export memories, links, diary versions, archive entries with transcripts, and continuity ledgers as one JSON bundle on stdout.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.ExportAll(cmd.Context(), os.Stdout); err != nil {
		exitErr("export", err)
	}
}
