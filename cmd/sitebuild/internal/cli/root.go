// Package cli implements the sitebuild command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/sitebuild/internal/errors"
	"github.com/albertocavalcante/sitebuild/internal/log"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags holds persistent flags that apply to all commands
var globalFlags struct {
	verbosity int
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "sitebuild",
	Short: "Incremental static asset build pipeline",
	Long: `Sitebuild turns directories of source images into a static site.

It compares the inputs against the manifest of the previous build, runs the
processing tool only on what changed and carries everything else over.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sitebuild %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().IntVarP(&globalFlags.verbosity, "verbosity", "v", log.VerbosityWarn,
		"Verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=trace)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.logFormat, "log-format", "text",
		"Log format (text, json)")

	cobra.OnInitialize(initLogging)
}

// initLogging applies the global flags before any command runs. Commands
// that load configuration refine it with applyLogConfig.
func initLogging() {
	log.Init(globalFlags.verbosity, globalFlags.logFormat)
}

// Execute runs the root command and exits with the code of its error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "sitebuild: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}
