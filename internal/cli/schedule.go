package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"driftwatch/internal/flags"
	"driftwatch/internal/schedule"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run drift checks continuously on the schedule expression",
	Long: `Run a drift check immediately and then on every tick of the schedule
expression until interrupted.

The expression is "rate(N minute|minutes|hour|hours|day|days)" or a Go
duration such as "30m". cron(...) expressions are left to an external
scheduler invoking "driftwatch run".

A tick that fires while a check is still running is skipped, so checks never
overlap within one process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		interval, err := schedule.ParseExpression(cfg.Runtime.Schedule)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch, err := newOrchestrator(ctx, cfg, cmd.OutOrStdout(), logger)
		if err != nil {
			return err
		}
		logger.Info("scheduler started", "schedule", cfg.Runtime.Schedule, "interval", interval)
		err = schedule.Loop(ctx, interval, logger, func(ctx context.Context) {
			logCompletion(logger, orch.Run(ctx))
		})
		logger.Info("scheduler stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().StringVar(&overrides.schedule, flags.FlagSchedule, "", "Schedule expression (overrides DRIFT_SCHEDULE)")
}
