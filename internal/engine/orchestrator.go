// Package engine runs one drift check end to end: acquire the tool binary,
// the repository snapshot and the cache size concurrently, run the dry run,
// and ship the resulting metrics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"driftwatch/internal/apperrors"
	"driftwatch/internal/metrics"
	"driftwatch/internal/plan"
	"driftwatch/internal/snapshot"

	"golang.org/x/sync/errgroup"
)

type BinaryProvisioner interface {
	ResolveVersion(ctx context.Context) (string, error)
	EnsureBinary(ctx context.Context, version string) (string, error)
}

type SnapshotProvider interface {
	GetHead(ctx context.Context, branch string) (string, error)
	EnsureSnapshot(ctx context.Context, sha string) (snapshot.Snapshot, error)
}

type DiskMeter interface {
	DiskUsage(ctx context.Context) (int64, error)
}

// DiskMeterFunc adapts a function to DiskMeter.
type DiskMeterFunc func(ctx context.Context) (int64, error)

func (f DiskMeterFunc) DiskUsage(ctx context.Context) (int64, error) { return f(ctx) }

type PlanExecutor interface {
	Execute(ctx context.Context, binary, workDir string) (plan.Outcome, error)
}

type Shipper interface {
	Ship(ctx context.Context, r metrics.Record) error
}

// Dependencies are the collaborators of an Orchestrator. All are required.
type Dependencies struct {
	Binaries  BinaryProvisioner
	Snapshots SnapshotProvider
	Disk      DiskMeter
	Executor  PlanExecutor
	Shipper   Shipper
}

// Options select what is checked.
type Options struct {
	Repository string // repository dimension on every metric
	Branch     string
	WorkDir    string // optional subdirectory of the snapshot holding the configuration
}

type Orchestrator struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func New(deps Dependencies, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	switch {
	case deps.Binaries == nil:
		return nil, errors.New("binary provisioner is nil")
	case deps.Snapshots == nil:
		return nil, errors.New("snapshot provider is nil")
	case deps.Disk == nil:
		return nil, errors.New("disk meter is nil")
	case deps.Executor == nil:
		return nil, errors.New("plan executor is nil")
	case deps.Shipper == nil:
		return nil, errors.New("shipper is nil")
	}
	if opts.Branch == "" {
		return nil, apperrors.New(apperrors.CodeConfiguration, "branch is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, opts: opts, logger: logger, now: time.Now}, nil
}

// Report is the result of one run. Err is nil only when every step
// succeeded and every sink accepted the record.
type Report struct {
	Outcome plan.Outcome
	Record  metrics.Record
	// Shipped is true once the record has been handed to the sinks, even if
	// some of them failed.
	Shipped bool
	Err     error
}

type acquisition struct {
	binary    string
	snapshot  snapshot.Snapshot
	diskUsage int64
}

// Run performs one drift check. Step failures are logged and returned in
// Report.Err; nothing is shipped for a run that did not reach a plan result.
func (o *Orchestrator) Run(ctx context.Context) Report {
	start := o.now()
	log := o.logger.With("repository", o.opts.Repository, "branch", o.opts.Branch)
	log.Info("drift check started")

	rep := o.run(ctx, start, log)
	if rep.Err != nil {
		attrs := []any{"error", rep.Err}
		if code, ok := apperrors.CodeOf(rep.Err); ok {
			attrs = append(attrs, "code", code)
		}
		log.Error("drift check failed", append(attrs, "shipped", rep.Shipped)...)
		return rep
	}
	log.Info("drift check finished",
		"status", rep.Outcome.Status,
		"pending_total", rep.Outcome.PendingTotal,
		"resources_refreshed", rep.Outcome.ResourcesRefreshed,
		"duration", o.now().Sub(start).Round(time.Millisecond))
	return rep
}

func (o *Orchestrator) run(ctx context.Context, start time.Time, log *slog.Logger) Report {
	acq, err := o.acquire(ctx)
	if err != nil {
		return Report{Outcome: plan.Outcome{Status: plan.StatusError}, Err: err}
	}
	log.Debug("acquisition complete", "binary", acq.binary, "sha", acq.snapshot.SHA, "cache_bytes", acq.diskUsage)

	workDir, err := o.workDir(acq.snapshot.Path)
	if err != nil {
		return Report{Outcome: plan.Outcome{Status: plan.StatusError}, Err: err}
	}

	outcome, err := o.deps.Executor.Execute(ctx, acq.binary, workDir)
	if err != nil {
		return Report{Outcome: outcome, Err: err}
	}

	total := o.now().Sub(start)
	record := metrics.NewRecord(o.opts.Repository, start, outcome, metrics.Timings{
		Total: total,
		Init:  outcome.Timing.Init,
		Plan:  outcome.Timing.Plan,
	}, acq.diskUsage)

	rep := Report{Outcome: outcome, Record: record, Shipped: true}
	rep.Err = o.deps.Shipper.Ship(ctx, record)
	return rep
}

// acquire runs the three independent acquisition steps concurrently. The
// first failure is returned as soon as it happens; steps still in flight
// are left to finish and their results are discarded.
func (o *Orchestrator) acquire(ctx context.Context) (acquisition, error) {
	var (
		g      errgroup.Group
		acq    acquisition
		failed = make(chan error, 3)
	)
	step := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				err = fmt.Errorf("%s: %w", name, err)
				failed <- err
				return err
			}
			return nil
		})
	}

	var binary string
	step("provision binary", func() error {
		version, err := o.deps.Binaries.ResolveVersion(ctx)
		if err != nil {
			return err
		}
		binary, err = o.deps.Binaries.EnsureBinary(ctx, version)
		return err
	})
	var snap snapshot.Snapshot
	step("provision snapshot", func() error {
		sha, err := o.deps.Snapshots.GetHead(ctx, o.opts.Branch)
		if err != nil {
			return err
		}
		snap, err = o.deps.Snapshots.EnsureSnapshot(ctx, sha)
		return err
	})
	var usage int64
	step("measure cache", func() error {
		var err error
		usage, err = o.deps.Disk.DiskUsage(ctx)
		return err
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-failed:
		return acquisition{}, err
	case err := <-done:
		if err != nil {
			return acquisition{}, err
		}
	}
	acq.binary, acq.snapshot, acq.diskUsage = binary, snap, usage
	return acq, nil
}

func (o *Orchestrator) workDir(root string) (string, error) {
	if o.opts.WorkDir == "" {
		return root, nil
	}
	dir := filepath.Join(root, filepath.FromSlash(o.opts.WorkDir))
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.Newf(apperrors.CodeConfiguration, "work dir %q escapes the repository snapshot", o.opts.WorkDir)
	}
	return dir, nil
}
