package cli

import (
	"github.com/spf13/cobra"

	"github.com/albertocavalcante/sitebuild/internal/errors"
	"github.com/albertocavalcante/sitebuild/internal/log"
	"github.com/albertocavalcante/sitebuild/pkg/config"
)

// siteFlags are the flags shared by commands that operate on a site.
type siteFlags struct {
	root        string
	dest        string
	sources     []string
	tool        string
	concurrency int
	batchSize   int
	prune       bool
	configFile  string
	verbose     bool
}

func (f *siteFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.root, "root", "", "Previous site directory (restored build output)")
	fs.StringVar(&f.dest, "dest", "", "Output directory (default: build in place in --root)")
	fs.StringArrayVar(&f.sources, "source", nil, "Input source as name=path (repeatable)")
	fs.StringVar(&f.tool, "tool", "", "Processing tool command (default: sitebuild-derive)")
	fs.IntVar(&f.concurrency, "concurrency", 0, "Parallel tool invocations (default: number of CPUs)")
	fs.IntVar(&f.batchSize, "batch-size", 0, "Changed assets per tool invocation (0 = spread over workers)")
	fs.BoolVar(&f.prune, "prune", false, "Delete site files no asset owns")
	fs.StringVar(&f.configFile, "config", "", "Config file (default: search sitebuild.toml)")
	fs.BoolVar(&f.verbose, "verbose", false, "Log per-asset decisions (same as -v=3)")
}

// load layers the flags over the configuration files and environment.
func (f *siteFlags) load(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configFile != "" {
		cfg, err = config.LoadFile(f.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "failed to load configuration")
	}

	flagCfg := &config.Config{}
	flagCfg.Build.Root = f.root
	flagCfg.Build.Dest = f.dest
	flagCfg.Tool.Command = f.tool
	for _, spec := range f.sources {
		src, err := config.ParseSourceFlag(spec)
		if err != nil {
			return nil, errors.ConfigError("source", err.Error())
		}
		flagCfg.Sources = append(flagCfg.Sources, src)
	}
	if cmd.Flags().Changed("prune") {
		prune := f.prune
		flagCfg.Build.Prune = &prune
	}
	cfg.Merge(flagCfg)

	// Merge skips zero values; an explicit zero must still reach validation.
	if cmd.Flags().Changed("concurrency") {
		cfg.Build.Concurrency = f.concurrency
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Build.BatchSize = f.batchSize
	}

	applyLogConfig(cmd, cfg, f.verbose)
	return cfg, nil
}

// applyLogConfig re-initializes logging when the configuration or --verbose
// asks for something the global flags did not.
func applyLogConfig(cmd *cobra.Command, cfg *config.Config, verbose bool) {
	v := globalFlags.verbosity
	if !cmd.Flags().Changed("verbosity") && cfg.Log.Verbosity != nil {
		v = *cfg.Log.Verbosity
	}
	if verbose && v < log.VerbosityDebug {
		v = log.VerbosityDebug
	}
	format := globalFlags.logFormat
	if !cmd.Flags().Changed("log-format") && cfg.Log.Format != "" {
		format = cfg.Log.Format
	}
	log.Init(v, format)
}
