package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"contractforge/internal/app"
	"contractforge/internal/contract"
)

var searchLimit int

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Browse the template library",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates, pinned first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withLibrary(func(lib *app.Library) error {
			return printTable(cmd.OutOrStdout(), lib.List())
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over titles, descriptions and content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(func(lib *app.Library) error {
			found, err := lib.Search(args[0], searchLimit)
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), found)
		})
	},
}

func printTable(w io.Writer, templates []contract.Template) error {
	if len(templates) == 0 {
		_, err := fmt.Fprintln(w, "No templates.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tPLACEHOLDERS\tPINNED\tCREATED")
	for _, t := range templates {
		pinned := ""
		if t.IsPinned {
			pinned = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			t.ID, t.Title, t.Category, len(t.Placeholders), pinned, t.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
