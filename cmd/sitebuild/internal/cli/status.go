package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/build"
	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/incremental"
)

var statusFlags struct {
	site siteFlags
	json bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which assets would be rebuilt",
	Long: `Compares the sources against the manifest of the previous site and
prints the change partition without running the processing tool.

Git sources are not fetched; their current checkouts are scanned.
The --verbose flag lists individual assets.
The --json flag outputs the result as JSON for scripting.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusFlags.site.register(statusCmd)
	statusCmd.Flags().BoolVar(&statusFlags.json, "json", false, "Output as JSON")

	rootCmd.AddCommand(statusCmd)
}

// StatusOutput is the JSON output format for sitebuild status.
type StatusOutput struct {
	Stale     bool     `json:"stale"`
	HasState  bool     `json:"has_state"`
	Tracked   int      `json:"tracked"`
	Sources   []string `json:"stale_sources"`
	Added     []string `json:"added,omitempty"`
	Modified  []string `json:"modified,omitempty"`
	Removed   []string `json:"removed,omitempty"`
	Unchanged int      `json:"unchanged"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := statusFlags.site.load(cmd)
	if err != nil {
		return err
	}

	tracker := build.NewTracker(cfg, nil)
	res, err := build.Run(context.Background(), cfg, build.RunOptions{DryRun: true, Offline: true})
	if err != nil {
		return err
	}

	out := newStatusOutput(res.Changes, tracker.HasState(), tracker.TrackedAssetCount())
	if statusFlags.json {
		return outputJSON(cmd.OutOrStdout(), out)
	}
	printStatus(cmd.OutOrStdout(), out, statusFlags.site.verbose)
	return nil
}

func newStatusOutput(cs *incremental.ChangeSet, hasState bool, tracked int) StatusOutput {
	return StatusOutput{
		Stale:     !cs.IsEmpty(),
		HasState:  hasState,
		Tracked:   tracked,
		Sources:   cs.AffectedSources(),
		Added:     cs.Added,
		Modified:  cs.Modified,
		Removed:   cs.Removed,
		Unchanged: len(cs.Unchanged),
	}
}

func printStatus(w io.Writer, out StatusOutput, verbose bool) {
	if !out.HasState {
		_, _ = fmt.Fprintln(w, "No previous manifest. The next build processes every asset.")
	}
	if !out.Stale {
		_, _ = fmt.Fprintf(w, "Site is up to date (%d assets)\n", out.Unchanged)
		return
	}

	_, _ = fmt.Fprintf(w, "Stale sources (%d):\n", len(out.Sources))
	for _, s := range out.Sources {
		_, _ = fmt.Fprintf(w, "  %s\n", s)
	}
	_, _ = fmt.Fprintf(w, "%d added, %d modified, %d removed, %d unchanged\n",
		len(out.Added), len(out.Modified), len(out.Removed), out.Unchanged)

	if verbose {
		list := func(title, mark string, paths []string) {
			if len(paths) == 0 {
				return
			}
			_, _ = fmt.Fprintf(w, "\n%s (%d):\n", title, len(paths))
			for _, p := range paths {
				_, _ = fmt.Fprintf(w, "  %s %s\n", mark, p)
			}
		}
		list("New assets", "+", out.Added)
		list("Modified assets", "~", out.Modified)
		list("Removed assets", "-", out.Removed)
	}

	_, _ = fmt.Fprintln(w, "\nRun 'sitebuild build' to update the site")
}
