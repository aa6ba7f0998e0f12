package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a JSON bundle",
		Long:  "Import a bundle produced by export, from a file or stdin. Rows that already exist are skipped, not overwritten.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	var r io.Reader = os.Stdin
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("import", err)
		}
		defer f.Close()
		r = f
	}

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	res, err := s.ImportAll(cmd.Context(), r)
	if err != nil {
		exitErr("import", err)
	}

	b, _ := json.Marshal(res)
	fmt.Println(string(b))
}
