package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "retain",
		Short: "Run one retention pass now",
		Long:  "Apply the configured retention policy once: evict over-capacity scopes lowest score first, then sweep records below the score floor. The server runs this on a schedule; retain is the manual trigger.",
		Run:   runRetain,
	}

	RootCmd.AddCommand(cmd)
}

func runRetain(cmd *cobra.Command, args []string) {
	s, cfg, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	s.RunRetention(cmd.Context(), cfg.RetentionPolicy())
	fmt.Fprintln(cmd.OutOrStdout(), `{"ok":true}`)
}
