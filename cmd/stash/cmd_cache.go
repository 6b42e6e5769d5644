package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyline93/stash"
)

var cmdCache = &cobra.Command{
	Use:   "cache [flags] URL ...",
	Short: "Fetch resources into the cache and print their local paths",
	Long: `
The "cache" command resolves each URL to a local file, downloading it if it is
not cached yet or if the cached copy is out of date, and prints the local path.

An URL may address a member inside an archive with "!", for example
"https://example.com/data.zip!a/b.txt"; the member is extracted and its path
is printed.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 3 if a resource or archive member was not found.
Exit status is 4 if the backend rejected the credentials.
Exit status is 5 if a cache lock could not be acquired in time.
Exit status is 1 for any other error.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCache(cmd.Context(), args)
	},
}

// CacheOptions bundles all options for the cache command.
type CacheOptions struct {
	Force    bool
	Checksum string
}

var cacheOptions CacheOptions

func init() {
	cmdRoot.AddCommand(cmdCache)

	f := cmdCache.Flags()
	f.BoolVar(&cacheOptions.Force, "force", false, "download even if the cached copy is up to date")
	f.StringVar(&cacheOptions.Checksum, "checksum", "", "expected hex SHA-256 of the downloaded content")
}

func runCache(ctx context.Context, urls []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var opts []stash.ResolveOption
	if cacheOptions.Force {
		opts = append(opts, stash.WithForceRefresh())
	}
	if cacheOptions.Checksum != "" {
		opts = append(opts, stash.WithChecksum(cacheOptions.Checksum))
	}

	for _, url := range urls {
		path, err := client.CachedPath(ctx, url, opts...)
		if err != nil {
			return err
		}
		fmt.Println(path)
	}
	return nil
}
