package main

import (
	"context"

	"github.com/spf13/cobra"
)

var cmdUpload = &cobra.Command{
	Use:   "upload FILE URL",
	Short: "Upload a local file to a writable backend",
	Long: `
The "upload" command copies a local file to the location named by URL. The
target must be on a writable backend (a local path or an s3 bucket); http and
hub resources are read-only.

The upload is staged locally and sent in one step, so the target never holds
a partial object.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 4 if the backend rejected the credentials.
Exit status is 1 for any other error.
`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpload(cmd.Context(), args[0], args[1])
	},
}

func init() {
	cmdRoot.AddCommand(cmdUpload)
}

func runUpload(ctx context.Context, file, url string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return client.Upload(ctx, file, url)
}
