// Package schedule parses schedule expressions and drives periodic runs for
// the in-process scheduler mode.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"driftwatch/internal/apperrors"
)

var ratePattern = regexp.MustCompile(`^rate\(\s*(\d+)\s+(minute|minutes|hour|hours|day|days)\s*\)$`)

var rateUnits = map[string]time.Duration{
	"minute":  time.Minute,
	"minutes": time.Minute,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
}

// ParseExpression accepts "rate(N unit)" or a Go duration such as "30m".
// cron expressions are evaluated only by an external scheduler.
func ParseExpression(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, apperrors.New(apperrors.CodeConfiguration, "schedule expression is empty")
	}
	if strings.HasPrefix(expr, "cron(") {
		return 0, apperrors.Newf(apperrors.CodeConfiguration, "cron expressions are not supported in-process: %q", expr)
	}

	if m := ratePattern.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return 0, apperrors.Newf(apperrors.CodeConfiguration, "rate value must be a positive integer: %q", expr)
		}
		if n == 1 && strings.HasSuffix(m[2], "s") || n > 1 && !strings.HasSuffix(m[2], "s") {
			return 0, apperrors.Newf(apperrors.CodeConfiguration, "rate unit does not agree with value: %q", expr)
		}
		return time.Duration(n) * rateUnits[m[2]], nil
	}

	d, err := time.ParseDuration(expr)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeConfiguration, "invalid schedule expression "+strconv.Quote(expr), err)
	}
	if d <= 0 {
		return 0, apperrors.Newf(apperrors.CodeConfiguration, "schedule interval must be positive: %q", expr)
	}
	return d, nil
}

// Loop runs fn immediately and then on every tick until ctx is done. A tick
// that fires while fn is still running is skipped, so runs never overlap.
func Loop(ctx context.Context, interval time.Duration, logger *slog.Logger, fn func(context.Context)) error {
	if ctx == nil {
		return errors.New("context is nil")
	}
	if interval <= 0 {
		return apperrors.Newf(apperrors.CodeConfiguration, "schedule interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var running atomic.Bool
	done := make(chan struct{}, 1)
	start := func() {
		if !running.CompareAndSwap(false, true) {
			logger.Warn("previous run still in progress; skipping tick")
			return
		}
		go func() {
			defer func() {
				running.Store(false)
				select {
				case done <- struct{}{}:
				default:
				}
			}()
			fn(ctx)
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start()
	for {
		select {
		case <-ctx.Done():
			// Let an in-flight run observe cancellation and finish.
			for running.Load() {
				<-done
			}
			return nil
		case <-ticker.C:
			start()
		case <-done:
		}
	}
}
