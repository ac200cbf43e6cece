package cli

import (
	"context"
	"log/slog"

	"driftwatch/internal/engine"
	"driftwatch/internal/logging"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one drift check",
	Long: `Run one drift check against the configured repository and state.

The run provisions the tool version recorded in the remote state and a
snapshot of the branch head (both cached on disk), runs init and plan, and
ships metrics to every enabled sink. A run that fails at any step ships no
metrics at all.

Exit status:
	Always 0. Failures are reported in the logs and by the absence of metrics,
	so a scheduler never mistakes a monitoring failure for an infrastructure
	fault. Use "driftwatch config" to check the configuration.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runOnce(cmd.Context(), cmd)
	},
}

// runOnce performs one complete check and reports the outcome in the logs.
// It returns the report for tests; nil means the pipeline never started.
func runOnce(ctx context.Context, cmd *cobra.Command) *engine.Report {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logging.New(logging.Config{}).Error("invalid configuration; drift check not started", "error", err)
		return nil
	}
	logger := newLogger(cfg)

	orch, err := newOrchestrator(ctx, cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		logger.Error("failed to set up drift check", "error", err)
		return nil
	}
	rep := orch.Run(ctx)
	logCompletion(logger, rep)
	return &rep
}

func logCompletion(logger *slog.Logger, rep engine.Report) {
	if rep.Err != nil {
		logger.Info("run complete", "result", "failed", "metrics_shipped", rep.Shipped)
		return
	}
	logger.Info("run complete", "result", "ok", "drift", rep.Outcome.Drifted())
}

func init() {
	rootCmd.AddCommand(runCmd)
}
