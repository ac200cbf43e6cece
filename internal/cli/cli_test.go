package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"driftwatch/internal/config"
	"driftwatch/internal/flags"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOverrides_OnlyExplicitFlags(t *testing.T) {
	cfg := &config.Config{}
	cfg.Repo.Branch = "main"
	cfg.Tool.CacheDir = "/var/cache/driftwatch"

	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().StringVar(&overrides.branch, flags.FlagBranch, "", "")
	cmd.Flags().StringVar(&overrides.cacheDir, flags.FlagCacheDir, "", "")
	cmd.Flags().BoolVar(&overrides.debug, flags.FlagDebug, false, "")
	require.NoError(t, cmd.Flags().Set(flags.FlagBranch, "release"))
	require.NoError(t, cmd.Flags().Set(flags.FlagDebug, "true"))
	t.Cleanup(func() { overrides.branch, overrides.debug = "", false })

	applyOverrides(cmd, cfg)

	assert.Equal(t, "release", cfg.Repo.Branch)
	assert.True(t, cfg.Runtime.Debug)
	assert.Equal(t, "/var/cache/driftwatch", cfg.Tool.CacheDir, "unset flag keeps the environment value")
}

func TestRunOnce_InvalidConfigurationDoesNotStart(t *testing.T) {
	t.Setenv("DRIFT_STATE_BUCKET", "")
	t.Setenv("DRIFT_STATE_KEY", "")
	t.Setenv("DRIFT_REPO", "")

	assert.Nil(t, runOnce(context.Background(), &cobra.Command{Use: "run"}))
}

func TestConfigCommand_PrintsRedactedJSON(t *testing.T) {
	t.Setenv("DRIFT_STATE_BUCKET", "tf-state")
	t.Setenv("DRIFT_STATE_KEY", "prod/terraform.tfstate")
	t.Setenv("DRIFT_REPO", "acme/infra")
	t.Setenv("DRIFT_REPO_TOKEN", "ghp_secret")
	t.Setenv("DRIFT_CACHE_DIR", t.TempDir())

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"config"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	assert.NotContains(t, buf.String(), "ghp_secret")

	var got config.Config
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "acme/infra", got.Repo.Identifier)
	assert.Equal(t, "****", got.Repo.Token)
	assert.Equal(t, "main", got.Repo.Branch)
}

func TestNewSinkManager_EnablesConfiguredSinks(t *testing.T) {
	cfg := &config.Config{}
	cfg.Metrics.InfluxURL = "http://influx:8086"
	cfg.Metrics.PushgatewayURL = "http://pushgateway:9091"
	cfg.Metrics.OutFile = t.TempDir() + "/drift.ndjson"

	m, err := newSinkManager(context.Background(), cfg, &bytes.Buffer{}, newLogger(cfg))
	require.NoError(t, err)
	assert.Equal(t, []string{"console", "influx", "pushgateway", "file"}, m.Sinks())
}
