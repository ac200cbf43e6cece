package plan

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"driftwatch/internal/apperrors"
	"driftwatch/internal/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	results map[string]process.Result
	errs    map[string]error
	calls   []process.Command
}

func (f *fakeRunner) Run(_ context.Context, cmd process.Command) (process.Result, error) {
	f.calls = append(f.calls, cmd)
	sub := cmd.Args[0]
	return f.results[sub], f.errs[sub]
}

func (f *fakeRunner) subcommands() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Args[0])
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

const driftOutput = `aws_s3_bucket.state: Refreshing state... [id=state]

Plan: 2 to add, 0 to change, 1 to destroy.
`

func TestExecute_ChangesPending(t *testing.T) {
	r := &fakeRunner{results: map[string]process.Result{
		"init": {ExitCode: 0},
		"plan": {ExitCode: 2, Stdout: driftOutput},
	}}
	dir := t.TempDir()

	out, err := NewExecutor(r, quietLogger(), false).Execute(context.Background(), "/bin/terraform", dir)
	require.NoError(t, err)

	assert.Equal(t, StatusChangesPending, out.Status)
	assert.Equal(t, 1, out.ResourcesRefreshed)
	assert.Equal(t, 2, out.PendingAdd)
	assert.Equal(t, 0, out.PendingChange)
	assert.Equal(t, 1, out.PendingDestroy)
	assert.Equal(t, 3, out.PendingTotal)
	assert.True(t, out.Drifted())

	require.Len(t, r.calls, 2)
	assert.Equal(t, []string{"init", "-input=false", "-no-color", "-lock=false"}, r.calls[0].Args)
	assert.Equal(t, []string{"plan", "-input=false", "-no-color", "-lock=false", "-detailed-exitcode"}, r.calls[1].Args)
	for _, c := range r.calls {
		assert.Equal(t, dir, c.Dir)
		assert.Equal(t, "/bin/terraform", c.Name)
		assert.Contains(t, c.Env, "TF_IN_AUTOMATION=1")
	}
}

func TestExecute_Clean(t *testing.T) {
	r := &fakeRunner{results: map[string]process.Result{
		"plan": {ExitCode: 0, Stdout: "No changes. Your infrastructure matches the configuration.\n"},
	}}
	out, err := NewExecutor(r, quietLogger(), true).Execute(context.Background(), "tf", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, StatusClean, out.Status)
	assert.Zero(t, out.PendingTotal)
	assert.False(t, out.Drifted())
}

func TestExecute_PlanFailureExitCodes(t *testing.T) {
	for _, code := range []int{1, 3, 127, -1} {
		r := &fakeRunner{results: map[string]process.Result{
			"plan": {ExitCode: code, Stderr: "Error: backend unreachable"},
		}}
		out, err := NewExecutor(r, quietLogger(), false).Execute(context.Background(), "tf", t.TempDir())
		require.Error(t, err, "exit %d", code)
		assert.True(t, apperrors.Is(err, apperrors.CodeExecution))
		assert.Equal(t, StatusError, out.Status)

		var pe *PhaseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, PhasePlan, pe.Phase)
		assert.Equal(t, code, pe.Result.ExitCode)
		assert.Contains(t, pe.Result.Stderr, "backend unreachable")
	}
}

func TestExecute_InitFailureStopsBeforePlan(t *testing.T) {
	r := &fakeRunner{results: map[string]process.Result{
		"init": {ExitCode: 1, Stderr: "Error: Failed to get existing workspaces"},
	}}
	_, err := NewExecutor(r, quietLogger(), false).Execute(context.Background(), "tf", t.TempDir())
	require.Error(t, err)

	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, PhaseInit, pe.Phase)
	assert.Equal(t, []string{"init"}, r.subcommands())
}

func TestExecute_SpawnFailure(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{
		"init": apperrors.New(apperrors.CodeSpawn, "start tf"),
	}}
	_, err := NewExecutor(r, quietLogger(), false).Execute(context.Background(), "tf", t.TempDir())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeSpawn))
	assert.Equal(t, []string{"init"}, r.subcommands())
}

func TestExecute_SkipsInitWhenMarkerPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".terraform"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".terraform", ".driftwatch-init-ok"), nil, 0o644))

	r := &fakeRunner{results: map[string]process.Result{"plan": {ExitCode: 0}}}
	out, err := NewExecutor(r, quietLogger(), false).Execute(context.Background(), "tf", dir)
	require.NoError(t, err)
	assert.True(t, out.Timing.InitSkipped)
	assert.Equal(t, []string{"plan"}, r.subcommands())
}

func TestExecute_MissingSummaryWarns(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	r := &fakeRunner{results: map[string]process.Result{"plan": {ExitCode: 2, Stdout: "format changed\n"}}}

	out, err := NewExecutor(r, logger, false).Execute(context.Background(), "tf", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, StatusChangesPending, out.Status)
	assert.Zero(t, out.PendingTotal)
	assert.False(t, out.SummaryFound)
	assert.Contains(t, logs.String(), "no summary line")
}

func TestExecute_FailedInitIsRetriedOnNextRun(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{results: map[string]process.Result{
		"init": {ExitCode: 1, Stderr: "Error: Failed to query available provider packages"},
	}}
	// The tool writes its backend state before installing providers.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".terraform"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".terraform", "terraform.tfstate"), []byte("{}"), 0o644))

	ex := NewExecutor(r, quietLogger(), false)
	_, err := ex.Execute(context.Background(), "tf", dir)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, ".terraform", ".driftwatch-init-ok"))

	r.results["init"] = process.Result{ExitCode: 0}
	r.results["plan"] = process.Result{ExitCode: 0}
	r.calls = nil
	out, err := ex.Execute(context.Background(), "tf", dir)
	require.NoError(t, err)
	assert.False(t, out.Timing.InitSkipped)
	assert.Equal(t, []string{"init", "plan"}, r.subcommands())
	assert.FileExists(t, filepath.Join(dir, ".terraform", ".driftwatch-init-ok"))

	r.calls = nil
	out, err = ex.Execute(context.Background(), "tf", dir)
	require.NoError(t, err)
	assert.True(t, out.Timing.InitSkipped)
	assert.Equal(t, []string{"plan"}, r.subcommands())
}
