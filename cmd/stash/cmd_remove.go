package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var cmdRemove = &cobra.Command{
	Use:   "remove [flags] [URL ...]",
	Short: "Remove resources from the cache",
	Long: `
The "remove" command evicts the cached copies of the given URLs. With --all
the whole cache is cleared; with --orphans, data files no longer referenced by
the cache index and leftovers from interrupted downloads are removed instead.

The resources themselves are not touched, only their local copies.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 3 if an URL has no cache entry.
Exit status is 1 for any other error.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRemove(args)
	},
}

// RemoveOptions bundles all options for the remove command.
type RemoveOptions struct {
	All     bool
	Orphans bool
}

var removeOptions RemoveOptions

func init() {
	cmdRoot.AddCommand(cmdRemove)

	f := cmdRemove.Flags()
	f.BoolVar(&removeOptions.All, "all", false, "clear the whole cache")
	f.BoolVar(&removeOptions.Orphans, "orphans", false, "remove unreferenced data files and stale downloads")
}

func runRemove(urls []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	switch {
	case removeOptions.All:
		return client.RemoveAll()
	case removeOptions.Orphans:
		n, err := client.SweepOrphans()
		if err != nil {
			return err
		}
		fmt.Printf("removed %d orphaned files\n", n)
		return nil
	case len(urls) == 0:
		return errors.New("nothing to remove, give an URL or --all")
	}

	for _, url := range urls {
		if err := client.Remove(url); err != nil {
			return err
		}
	}
	return nil
}
