package cli

import (
	"fmt"
	"os"

	"driftwatch/internal/config"
	"driftwatch/internal/flags"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "driftwatch",
	Short: "Detect drift between Terraform state and the configuration in a repository",
	Long: `Driftwatch checks whether deployed infrastructure still matches the
configuration committed to a repository.

Each run reads the tool version from the remote state, provisions that exact
binary and a snapshot of the branch head, runs a read-only init + plan, and
ships the resulting drift metrics to the configured sinks.

Driftwatch is read-only: it never applies changes and never takes a state lock.

Examples:
	# One check, configured from the environment
	export DRIFT_STATE_BUCKET=tf-state DRIFT_STATE_KEY=prod/terraform.tfstate DRIFT_REPO=acme/infra
	driftwatch run

	# Check continuously on the configured schedule
	driftwatch schedule

	# Validate and print the effective configuration
	driftwatch config

Output:
	The drift report is written to stdout; logs go to stderr (or --log-file).`,
	SilenceUsage: true,
}

// overrides holds flag values; a flag applies only when set explicitly.
var overrides struct {
	repo      string
	branch    string
	workDir   string
	cacheDir  string
	out       string
	noColor   bool
	debug     bool
	logFormat string
	logFile   string
	schedule  string
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&overrides.repo, flags.FlagRepo, "", "Repository to check as OWNER/NAME (overrides DRIFT_REPO)")
	pf.StringVar(&overrides.branch, flags.FlagBranch, "", "Branch to check (overrides DRIFT_REPO_BRANCH)")
	pf.StringVar(&overrides.workDir, flags.FlagWorkDir, "", "Configuration subdirectory inside the repository (overrides DRIFT_WORKDIR)")
	pf.StringVar(&overrides.cacheDir, flags.FlagCacheDir, "", "Artifact cache directory (overrides DRIFT_CACHE_DIR)")
	pf.StringVar(&overrides.out, flags.FlagOut, "", "Append one NDJSON line per run to this file (overrides DRIFT_OUT_FILE)")
	pf.BoolVar(&overrides.noColor, flags.FlagNoColor, false, "Disable colors in the console report")
	pf.BoolVar(&overrides.debug, flags.FlagDebug, false, "Debug logging, including subprocess output on every run (overrides DRIFT_DEBUG)")
	pf.StringVar(&overrides.logFormat, flags.FlagLogFormat, "", "Log format: text|json (overrides DRIFT_LOG_FORMAT)")
	pf.StringVar(&overrides.logFile, flags.FlagLogFile, "", "Write logs to this rotated file instead of stderr (overrides DRIFT_LOG_FILE)")
}

// loadConfig reads the environment, applies explicitly set flags and
// validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed(flags.FlagRepo) {
		cfg.Repo.Identifier = overrides.repo
	}
	if changed(flags.FlagBranch) {
		cfg.Repo.Branch = overrides.branch
	}
	if changed(flags.FlagWorkDir) {
		cfg.Repo.WorkDir = overrides.workDir
	}
	if changed(flags.FlagCacheDir) {
		cfg.Tool.CacheDir = overrides.cacheDir
	}
	if changed(flags.FlagOut) {
		cfg.Metrics.OutFile = overrides.out
	}
	if changed(flags.FlagNoColor) {
		cfg.Metrics.NoColor = overrides.noColor
	}
	if changed(flags.FlagDebug) {
		cfg.Runtime.Debug = overrides.debug
	}
	if changed(flags.FlagLogFormat) {
		cfg.Runtime.LogFormat = overrides.logFormat
	}
	if changed(flags.FlagLogFile) {
		cfg.Runtime.LogFile = overrides.logFile
	}
	if changed(flags.FlagSchedule) {
		cfg.Runtime.Schedule = overrides.schedule
	}
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
