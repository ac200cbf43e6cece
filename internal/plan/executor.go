package plan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"driftwatch/internal/apperrors"
	"driftwatch/internal/process"
)

// Phase is a state of the init/plan protocol.
type Phase string

const (
	PhaseInit   Phase = "INIT"
	PhasePlan   Phase = "PLAN"
	PhaseDone   Phase = "DONE"
	PhaseFailed Phase = "FAILED"
)

// Plan exit codes under -detailed-exitcode.
const (
	exitClean   = 0
	exitChanges = 2
)

// maxLoggedOutput bounds how much subprocess output goes into a log record.
const maxLoggedOutput = 8 * 1024

// initMarker is written by the executor once init exits 0; its presence
// makes init skippable for the same snapshot. Files the tool leaves under
// .terraform are not trusted, since a failed init can leave them behind.
var initMarker = filepath.Join(".terraform", ".driftwatch-init-ok")

// commonFlags keep both phases non-interactive and lock-free: the run only
// reads, so it must never hold the shared state lock.
var commonFlags = []string{"-input=false", "-no-color", "-lock=false"}

// CommandRunner executes a subprocess without failing on non-zero exit.
type CommandRunner interface {
	Run(ctx context.Context, cmd process.Command) (process.Result, error)
}

// PhaseError is the FAILED state: the phase that failed and its captured
// output.
type PhaseError struct {
	Phase  Phase
	Result process.Result
	Err    error
}

func (e *PhaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s phase failed: %v", strings.ToLower(string(e.Phase)), e.Err)
	}
	return fmt.Sprintf("%s phase exited with code %d", strings.ToLower(string(e.Phase)), e.Result.ExitCode)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

type Executor struct {
	runner CommandRunner
	logger *slog.Logger
	// Debug logs subprocess output on success as well as failure.
	Debug bool
	now   func() time.Time
}

func NewExecutor(runner CommandRunner, logger *slog.Logger, debug bool) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{runner: runner, logger: logger, Debug: debug, now: time.Now}
}

// Execute runs INIT then PLAN with binary inside workDir. Each phase runs at
// most once; there are no retries.
func (e *Executor) Execute(ctx context.Context, binary, workDir string) (Outcome, error) {
	var out Outcome
	phase := PhaseInit

	fail := func(p Phase, res process.Result, cause error) (Outcome, error) {
		e.logger.Error("reconciliation phase failed",
			"phase", p, "exit_code", res.ExitCode,
			"stdout", truncate(res.Stdout), "stderr", truncate(res.Stderr))
		pe := &PhaseError{Phase: p, Result: res, Err: cause}
		return Outcome{Status: StatusError, Timing: out.Timing}, apperrors.Wrap(apperrors.CodeExecution, "dry run", pe).
			WithContext("phase", string(p)).
			WithContext("exit_code", res.ExitCode)
	}

	if e.initialized(workDir) {
		out.Timing.InitSkipped = true
		e.logger.Info("init marker present, skipping init", "dir", workDir)
	} else {
		start := e.now()
		res, err := e.run(ctx, binary, workDir, phase, append([]string{"init"}, commonFlags...))
		out.Timing.Init = e.now().Sub(start)
		if err != nil {
			return fail(phase, res, err)
		}
		if res.ExitCode != 0 {
			return fail(phase, res, nil)
		}
		if err := e.markInitialized(workDir); err != nil {
			e.logger.Warn("could not record init marker, next run repeats init", "dir", workDir, "error", err)
		}
	}

	phase = PhasePlan
	start := e.now()
	res, err := e.run(ctx, binary, workDir, phase, append([]string{"plan"}, append(commonFlags, "-detailed-exitcode")...))
	out.Timing.Plan = e.now().Sub(start)
	if err != nil {
		return fail(phase, res, err)
	}

	switch res.ExitCode {
	case exitClean:
		out.Status = StatusClean
	case exitChanges:
		out.Status = StatusChangesPending
	default:
		return fail(phase, res, nil)
	}

	counts := ParseOutput(res.Stdout)
	out.ResourcesRefreshed = counts.ResourcesRefreshed
	out.PendingAdd = counts.Add
	out.PendingChange = counts.Change
	out.PendingDestroy = counts.Destroy
	out.PendingTotal = counts.Total()
	out.SummaryFound = counts.SummaryFound

	if !counts.SummaryFound && (out.Status == StatusChangesPending || !counts.NoChangesFound) {
		e.logger.Warn("plan output has no summary line, pending counts default to zero",
			"status", out.Status, "exit_code", res.ExitCode)
	}
	e.logger.Debug("protocol finished", "phase", PhaseDone, "status", out.Status)
	return out, nil
}

func (e *Executor) run(ctx context.Context, binary, dir string, phase Phase, args []string) (process.Result, error) {
	e.logger.Info("running reconciliation phase", "phase", phase, "args", strings.Join(args, " "))
	res, err := e.runner.Run(ctx, process.Command{
		Name: binary,
		Args: args,
		Dir:  dir,
		Env:  []string{"TF_IN_AUTOMATION=1", "TF_INPUT=0"},
	})
	if err == nil && e.Debug {
		e.logger.Debug("phase output", "phase", phase, "exit_code", res.ExitCode,
			"stdout", truncate(res.Stdout), "stderr", truncate(res.Stderr))
	}
	return res, err
}

func (e *Executor) initialized(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, initMarker))
	return err == nil
}

func (e *Executor) markInitialized(dir string) error {
	path := filepath.Join(dir, initMarker)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}

func truncate(s string) string {
	if len(s) <= maxLoggedOutput {
		return s
	}
	return s[len(s)-maxLoggedOutput:]
}
