package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete a memory record",
		Long:  "Delete a memory record and its relation links. Deletion is permanent.",
		Args:  cobra.ExactArgs(1),
		Run:   runForget,
	}

	RootCmd.AddCommand(cmd)
}

func runForget(cmd *cobra.Command, args []string) {
	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.ForgetMemory(cmd.Context(), args[0]); err != nil {
		exitErr("forget", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q}`+"\n", args[0])
}
