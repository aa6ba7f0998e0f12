package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove an archive entry, or reset the whole database",
		Long:  "Remove one archive entry and its transcript with --entry, or wipe every table with --all. Memories distilled from a purged entry are kept.",
		Run:   runPurge,
	}

	cmd.Flags().StringP("entry", "e", "", "Entry id to purge")
	cmd.Flags().Bool("all", false, "Reset the entire database")
	cmd.Flags().Bool("yes", false, "Skip the --all confirmation")

	RootCmd.AddCommand(cmd)
}

func runPurge(cmd *cobra.Command, args []string) {
	entryID, _ := cmd.Flags().GetString("entry")
	all, _ := cmd.Flags().GetBool("all")
	yes, _ := cmd.Flags().GetBool("yes")

	if entryID == "" && !all {
		exitErr("purge", fmt.Errorf("nothing to purge: pass --entry <id> or --all"))
	}
	if all && !yes {
		exitErr("purge", fmt.Errorf("--all wipes every table; pass --yes to confirm"))
	}

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if all {
		if err := s.Reset(cmd.Context()); err != nil {
			exitErr("purge", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), `{"ok":true,"reset":true}`)
		return
	}

	if err := s.PurgeEntry(cmd.Context(), entryID); err != nil {
		exitErr("purge", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"entry":%q}`+"\n", entryID)
}
