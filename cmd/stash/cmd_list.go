package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cmdList = &cobra.Command{
	Use:   "list",
	Short: "List cached resources",
	Long: `
The "list" command prints one line per cached resource: its URL, size, and
when it was fetched.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList()
	},
}

func init() {
	cmdRoot.AddCommand(cmdList)
}

func runList() error {
	client, err := newClient()
	if err != nil {
		return err
	}
	entries, err := client.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tURL\tSIZE\tFETCHED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Key[:12], e.URL, humanize.Bytes(uint64(e.Size)), humanize.Time(e.FetchedAt))
	}
	return w.Flush()
}
