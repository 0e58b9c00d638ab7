package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/twinly/internal/catalog"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the question categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		cats := catalog.All()
		w := cmd.OutOrStdout()

		fmt.Fprintf(w, "%-28s  %s\n", "Name", "Description")
		fmt.Fprintln(w, strings.Repeat("─", 100))

		for _, c := range cats {
			desc := c.Description
			if len(desc) > 70 {
				desc = desc[:67] + "..."
			}
			fmt.Fprintf(w, "%-28s  %s\n", c.Name, desc)
		}

		fmt.Fprintf(w, "\n%d categories\n", len(cats))
		return nil
	},
}
