package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skyline93/stash"
)

var version = "0.3.0"

// cmdRoot is the base command when no other command has been specified.
var cmdRoot = &cobra.Command{
	Use:   "stash",
	Short: "Cache remote resources as local files",
	Long: `
stash resolves resource identifiers like

  https://example.com/data.tar.gz!corpus/train.txt
  s3://bucket/weights.bin
  hf://owner/model/config.json

to local file paths, fetching and caching each resource on first use and
refreshing it when the origin changes.
`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
	Version:           version,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(0)
	},
}

// GlobalOptions bundles the options shared by all commands.
type GlobalOptions struct {
	CacheRoot string
	Verbose   bool
}

var globalOptions GlobalOptions

func init() {
	f := cmdRoot.PersistentFlags()
	f.StringVar(&globalOptions.CacheRoot, "cache-root", "", "cache directory (default: $STASH_CACHE_ROOT or the user cache dir)")
	f.BoolVarP(&globalOptions.Verbose, "verbose", "v", false, "enable debug logging")
}

func newClient() (*stash.Client, error) {
	if globalOptions.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	var opts []stash.Option
	if globalOptions.CacheRoot != "" {
		opts = append(opts, stash.WithCacheRoot(globalOptions.CacheRoot))
	}
	return stash.New(opts...)
}

// exitCode maps well-known error kinds to distinct exit statuses so scripts
// can tell a missing resource from an infrastructure failure.
func exitCode(err error) int {
	switch {
	case errors.Is(err, stash.ErrNotFound), errors.Is(err, stash.ErrMemberNotFound), errors.Is(err, stash.ErrEntryNotFound):
		return 3
	case errors.Is(err, stash.ErrAuthentication):
		return 4
	case errors.Is(err, stash.ErrLockTimeout):
		return 5
	default:
		return 1
	}
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
