package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/build"
	"github.com/albertocavalcante/sitebuild/internal/log"
	"github.com/albertocavalcante/sitebuild/internal/metrics"
)

var buildFlags struct {
	site        siteFlags
	dryRun      bool
	offline     bool
	json        bool
	metricsFile string
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the site, reprocessing only changed assets",
	Long: `Builds the site from the configured sources.

The manifest of the previous site (--root) decides which assets changed.
Only those are handed to the processing tool, in batches run in parallel;
artifacts of unchanged assets are carried over and artifacts of removed
assets are deleted.

A batch that fails twice is reported as a warning and the build still
exits 0. The build exits 1 when nothing could be processed, when the
manifest cannot be written or when an input is missing.

Example:

  sitebuild build --root site --source photos=content/photos --concurrency 4`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildFlags.site.register(buildCmd)
	buildCmd.Flags().BoolVar(&buildFlags.dryRun, "dry-run", false,
		"Show what would be rebuilt without running the tool")
	buildCmd.Flags().BoolVar(&buildFlags.offline, "offline", false,
		"Use existing git checkouts without fetching")
	buildCmd.Flags().BoolVar(&buildFlags.json, "json", false,
		"Print the result as JSON")
	buildCmd.Flags().StringVar(&buildFlags.metricsFile, "metrics-file", "",
		"Write Prometheus metrics in textfile format to this path")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, err := buildFlags.site.load(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var prom *metrics.PrometheusRecorder
	if buildFlags.metricsFile != "" {
		prom = metrics.NewPrometheusRecorder(nil)
		recorder = prom
	}

	res, err := build.Run(ctx, cfg, build.RunOptions{
		Recorder: recorder,
		DryRun:   buildFlags.dryRun,
		Offline:  buildFlags.offline,
	})

	if prom != nil {
		if werr := prom.WriteTextfile(buildFlags.metricsFile); werr != nil {
			log.Warn("failed to write metrics", log.Path(buildFlags.metricsFile), log.Err(werr))
		}
	}

	if res != nil {
		if perr := printResult(cmd.OutOrStdout(), res, buildFlags.json); perr != nil {
			return perr
		}
	}
	return err
}

func printResult(w io.Writer, res *build.Result, asJSON bool) error {
	if asJSON {
		return outputJSON(w, res)
	}
	res.Print(w)
	return nil
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
