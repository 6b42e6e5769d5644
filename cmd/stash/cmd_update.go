package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var cmdUpdate = &cobra.Command{
	Use:   "update [flags] [URL ...]",
	Short: "Refresh cached resources",
	Long: `
The "update" command downloads the given URLs again, replacing the cached
copies regardless of their freshness. With --all, every cached resource is
refreshed once.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 3 if a resource was not found at its origin.
Exit status is 4 if the backend rejected the credentials.
Exit status is 1 for any other error.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(cmd.Context(), args)
	},
}

// UpdateOptions bundles all options for the update command.
type UpdateOptions struct {
	All bool
}

var updateOptions UpdateOptions

func init() {
	cmdRoot.AddCommand(cmdUpdate)

	f := cmdUpdate.Flags()
	f.BoolVar(&updateOptions.All, "all", false, "refresh every cached resource")
}

func runUpdate(ctx context.Context, urls []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	if updateOptions.All {
		return client.UpdateAll(ctx)
	}
	if len(urls) == 0 {
		return errors.New("nothing to update, give an URL or --all")
	}

	for _, url := range urls {
		if err := client.Update(ctx, url); err != nil {
			return err
		}
	}
	return nil
}
