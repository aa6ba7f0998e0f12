package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reinforce <id>",
		Short: "Bump a memory record's score",
		Args:  cobra.ExactArgs(1),
		Run:   runReinforce,
	}

	cmd.Flags().Float64("delta", 0.02, "Score increment (clamped to [0,1])")

	RootCmd.AddCommand(cmd)
}

func runReinforce(cmd *cobra.Command, args []string) {
	delta, _ := cmd.Flags().GetFloat64("delta")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rec, err := s.Reinforce(cmd.Context(), args[0], delta)
	if err != nil {
		exitErr("reinforce", err)
	}

	b, _ := json.Marshal(rec)
	fmt.Println(string(b))
}
