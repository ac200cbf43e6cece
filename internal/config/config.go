package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"driftwatch/internal/apperrors"
	gh "driftwatch/internal/github"
	"driftwatch/internal/logging"
	"driftwatch/internal/schedule"

	"github.com/ilyakaznacheev/cleanenv"
)

const redacted = "****"

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove fields, keep these in sync:
	// - overriding CLI flags in internal/cli/root.go
	// - the variable table printed by `driftwatch config --help`
	State   State   `json:"state"`
	Repo    Repo    `json:"repo"`
	Tool    Tool    `json:"tool"`
	Metrics Metrics `json:"metrics"`
	Runtime Runtime `json:"runtime"`
}

type State struct {
	// Bucket and Key locate the remote state descriptor.
	Bucket string `env:"DRIFT_STATE_BUCKET" json:"bucket"`
	Key    string `env:"DRIFT_STATE_KEY" json:"key"`

	// Region is optional; empty uses the AWS SDK default chain.
	Region string `env:"DRIFT_STATE_REGION" json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint (S3-compatible stores, local testing).
	Endpoint string `env:"DRIFT_STATE_ENDPOINT" json:"endpoint,omitempty"`
}

type Repo struct {
	// Identifier is OWNER/NAME; a github.com URL is accepted and normalized.
	Identifier string `env:"DRIFT_REPO" json:"identifier"`

	// Token authenticates API and archive requests. Empty falls back to
	// GITHUB_TOKEN, then `gh auth token`.
	Token string `env:"DRIFT_REPO_TOKEN" json:"token,omitempty"`

	Branch string `env:"DRIFT_REPO_BRANCH" env-default:"main" json:"branch"`

	// WorkDir is the subdirectory of the snapshot holding the configuration.
	WorkDir string `env:"DRIFT_WORKDIR" json:"workdir,omitempty"`
}

type Tool struct {
	Name string `env:"DRIFT_TOOL" env-default:"terraform" json:"name"`

	// CacheDir holds provisioned binaries and snapshots. Empty means
	// <os temp dir>/driftwatch.
	CacheDir string `env:"DRIFT_CACHE_DIR" json:"cache_dir"`
}

type Metrics struct {
	// Namespace enables the CloudWatch sink when non-empty.
	Namespace string `env:"DRIFT_METRICS_NAMESPACE" json:"namespace,omitempty"`

	// InfluxURL enables the line-protocol sink when non-empty. The remaining
	// Influx settings are checked when the sink ships.
	InfluxURL         string `env:"DRIFT_INFLUX_URL" json:"influx_url,omitempty"`
	InfluxDB          string `env:"DRIFT_INFLUX_DB" json:"influx_db,omitempty"`
	InfluxAuth        string `env:"DRIFT_INFLUX_AUTH" json:"influx_auth,omitempty"`
	InfluxMeasurement string `env:"DRIFT_INFLUX_MEASUREMENT" env-default:"terraform_drift" json:"influx_measurement"`

	// PushgatewayURL enables the Prometheus pushgateway sink when non-empty.
	PushgatewayURL string `env:"DRIFT_PUSHGATEWAY_URL" json:"pushgateway_url,omitempty"`

	// OutFile appends one NDJSON line per run when non-empty.
	OutFile string `env:"DRIFT_OUT_FILE" json:"out_file,omitempty"`

	// NoColor disables ANSI colors in the console report.
	NoColor bool `env:"NO_COLOR" json:"no_color,omitempty"`
}

type Runtime struct {
	// Schedule is a rate(...) expression or Go duration used by `driftwatch schedule`.
	Schedule string `env:"DRIFT_SCHEDULE" env-default:"rate(1 hour)" json:"schedule"`

	// Debug logs subprocess output on every run, not only on failure.
	Debug bool `env:"DRIFT_DEBUG" json:"debug"`

	LogFormat string `env:"DRIFT_LOG_FORMAT" env-default:"text" json:"log_format"`
	LogFile   string `env:"DRIFT_LOG_FILE" json:"log_file,omitempty"`
}

// Load reads the configuration from the environment. It does not validate.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, "read environment", err)
	}
	return &cfg, nil
}

// Validate normalizes values and checks everything the pipeline needs before
// any work starts. Sink connection parameters are not checked here.
func (c *Config) Validate() error {
	c.State.Bucket = strings.TrimSpace(c.State.Bucket)
	c.State.Key = strings.TrimSpace(c.State.Key)
	if c.State.Bucket == "" {
		return configError("DRIFT_STATE_BUCKET is required")
	}
	if c.State.Key == "" {
		return configError("DRIFT_STATE_KEY is required")
	}

	if strings.TrimSpace(c.Repo.Identifier) == "" {
		return configError("DRIFT_REPO is required")
	}
	repo, err := gh.ParseRepo(c.Repo.Identifier)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConfiguration, "invalid DRIFT_REPO", err)
	}
	c.Repo.Identifier = repo.String()

	c.Repo.Branch = strings.TrimSpace(c.Repo.Branch)
	if c.Repo.Branch == "" {
		c.Repo.Branch = "main"
	}
	if c.Repo.WorkDir != "" {
		wd := filepath.Clean(filepath.FromSlash(c.Repo.WorkDir))
		if filepath.IsAbs(wd) || wd == ".." || strings.HasPrefix(wd, ".."+string(filepath.Separator)) {
			return configError(fmt.Sprintf("DRIFT_WORKDIR must be a relative path inside the repository, got %q", c.Repo.WorkDir))
		}
		if wd == "." {
			wd = ""
		}
		c.Repo.WorkDir = filepath.ToSlash(wd)
	}

	c.Tool.Name = strings.TrimSpace(c.Tool.Name)
	if c.Tool.Name == "" {
		c.Tool.Name = "terraform"
	}
	if strings.ContainsAny(c.Tool.Name, `/\ `) {
		return configError(fmt.Sprintf("DRIFT_TOOL must be a bare tool name, got %q", c.Tool.Name))
	}
	if c.Tool.CacheDir == "" {
		c.Tool.CacheDir = filepath.Join(os.TempDir(), "driftwatch")
	}

	c.Runtime.LogFormat = strings.ToLower(strings.TrimSpace(c.Runtime.LogFormat))
	if c.Runtime.LogFormat == "" {
		c.Runtime.LogFormat = logging.FormatText
	}
	if c.Runtime.LogFormat != logging.FormatText && c.Runtime.LogFormat != logging.FormatJSON {
		return configError(fmt.Sprintf("unsupported DRIFT_LOG_FORMAT: %s (must be one of: text, json)", c.Runtime.LogFormat))
	}
	if _, err := schedule.ParseExpression(c.Runtime.Schedule); err != nil {
		return err
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Repo.Token != "" {
		c.Repo.Token = redacted
	}
	if c.Metrics.InfluxAuth != "" {
		user, _, ok := strings.Cut(c.Metrics.InfluxAuth, ":")
		if ok {
			c.Metrics.InfluxAuth = user + ":" + redacted
		} else {
			c.Metrics.InfluxAuth = redacted
		}
	}
	return c
}

// LogLevel is the level implied by Debug.
func (c *Config) LogLevel() string {
	if c.Runtime.Debug {
		return "debug"
	}
	return "info"
}

// Usage describes every environment variable, for command help.
func Usage() string {
	var cfg Config
	header := "Environment variables:"
	u, err := cleanenv.GetDescription(&cfg, &header)
	if err != nil {
		return ""
	}
	return u
}

func configError(msg string) error {
	return apperrors.New(apperrors.CodeConfiguration, msg)
}
