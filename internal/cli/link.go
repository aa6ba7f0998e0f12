package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "link <from-id> <to-id>",
		Short: "Create or remove relations between memory records",
		Args:  cobra.ExactArgs(2),
		Run:   runLink,
	}

	cmd.Flags().StringP("rel", "r", "", "Relation: relates_to, contradicts, depends_on, refines")
	cmd.Flags().Float64("strength", 0.5, "Relation strength in [0,1]")
	cmd.Flags().Bool("rm", false, "Remove the link")

	cmd.MarkFlagRequired("rel")

	RootCmd.AddCommand(cmd)
}

func runLink(cmd *cobra.Command, args []string) {
	rel, _ := cmd.Flags().GetString("rel")
	strength, _ := cmd.Flags().GetFloat64("strength")
	rm, _ := cmd.Flags().GetBool("rm")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if rm {
		if err := s.Unlink(cmd.Context(), args[0], args[1], rel); err != nil {
			exitErr("unlink", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"removed":true,"rel":%q}`+"\n", rel)
		return
	}

	if err := s.Link(cmd.Context(), args[0], args[1], rel, strength); err != nil {
		exitErr("link", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"rel":%q,"strength":%g}`+"\n", rel, strength)
}

func init() {
	cmd := &cobra.Command{
		Use:   "links <id>",
		Short: "List relations touching a memory record",
		Args:  cobra.ExactArgs(1),
		Run:   runLinks,
	}

	RootCmd.AddCommand(cmd)
}

func runLinks(cmd *cobra.Command, args []string) {
	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	links, err := s.LinksFor(cmd.Context(), args[0])
	if err != nil {
		exitErr("links", err)
	}

	b, _ := json.MarshalIndent(links, "", "  ")
	fmt.Println(string(b))
}
