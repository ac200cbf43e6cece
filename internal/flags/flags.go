package flags

// Package flags defines canonical CLI flag names shared across commands and
// tests. Each flag overrides the environment variable of the same setting
// when it is set explicitly.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.PersistentFlags().BoolVar(&overrides.debug, flags.FlagDebug, false, "...")
//	arg := "--" + flags.FlagDebug
const (
	// Target
	FlagRepo    = "repo"
	FlagBranch  = "branch"
	FlagWorkDir = "workdir"

	// Tool
	FlagCacheDir = "cache-dir"

	// Output
	FlagNoColor = "no-color"
	FlagOut     = "out"

	// Runtime
	FlagDebug     = "debug"
	FlagLogFormat = "log-format"
	FlagLogFile   = "log-file"
	FlagSchedule  = "schedule"
)
