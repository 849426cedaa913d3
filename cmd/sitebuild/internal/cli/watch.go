package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/build"
	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/sources"
	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/watch"
	"github.com/albertocavalcante/sitebuild/internal/errors"
)

var watchFlags struct {
	site     siteFlags
	debounce int
	offline  bool
	json     bool
	noColor  bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild the site whenever source assets change",
	Long: `Builds the site once, then watches the source directories and runs an
incremental build after every burst of changes.

Example output:

  $ sitebuild watch --root site --source photos=content/photos

  sitebuild: watching 1 directories
  sitebuild: sources: photos
  sitebuild: ready

  [14:32:15] building...
  [14:32:18] ✓ 120 processed, 0 failed, 0 removed (success)
  [14:33:02] rebuilding photos...
  [14:33:03] ✓ 1 processed, 0 failed, 0 removed (success)

Press Ctrl+C to stop watching.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchFlags.site.register(watchCmd)
	watchCmd.Flags().IntVar(&watchFlags.debounce, "debounce", 500,
		"Debounce window in milliseconds")
	watchCmd.Flags().BoolVar(&watchFlags.offline, "offline", false,
		"Use existing git checkouts without fetching")
	watchCmd.Flags().BoolVar(&watchFlags.json, "json", false,
		"Stream JSON events (for tooling integration)")
	watchCmd.Flags().BoolVar(&watchFlags.noColor, "no-color", false,
		"Disable colored output")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := watchFlags.site.load(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "invalid configuration")
	}

	// Include SIGHUP to handle terminal hangup
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	srcs, err := sources.Resolve(ctx, cfg.Sources, sources.Options{
		Retry:   build.RetryPolicy(cfg),
		Offline: watchFlags.offline,
	})
	if err != nil {
		return err
	}

	w, err := watch.New(watch.Config{
		Sources: srcs,
		// Checkouts were synced above; rebuilds only see local edits.
		Rebuild: func(ctx context.Context, _ []string) (*build.Result, error) {
			return build.Run(ctx, cfg, build.RunOptions{Offline: true})
		},
		Debounce:     time.Duration(watchFlags.debounce) * time.Millisecond,
		InitialBuild: true,
		Writer:       cmd.OutOrStdout(),
		Verbose:      watchFlags.site.verbose,
		NoColor:      watchFlags.noColor,
		JSON:         watchFlags.json,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	return w.Run(ctx)
}
