package main

import (
	"context"

	"github.com/spf13/cobra"
)

var cmdDownload = &cobra.Command{
	Use:   "download URL FILE",
	Short: "Download a resource to a file, bypassing the cache",
	Long: `
The "download" command streams the resource named by URL directly to FILE.
Nothing is written to the cache, and the destination file appears atomically
once the download is complete.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 3 if the resource was not found.
Exit status is 4 if the backend rejected the credentials.
Exit status is 1 for any other error.
`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload(cmd.Context(), args[0], args[1])
	},
}

func init() {
	cmdRoot.AddCommand(cmdDownload)
}

func runDownload(ctx context.Context, url, file string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return client.Download(ctx, url, file)
}
