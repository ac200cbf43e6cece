package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"driftwatch/internal/binary"
	"driftwatch/internal/cache"
	"driftwatch/internal/config"
	"driftwatch/internal/engine"
	gh "driftwatch/internal/github"
	"driftwatch/internal/logging"
	"driftwatch/internal/output"
	"driftwatch/internal/plan"
	"driftwatch/internal/process"
	"driftwatch/internal/snapshot"
	"driftwatch/internal/state"
)

// newOrchestrator wires every pipeline component from cfg. Nothing here
// touches the network except resolving credentials.
func newOrchestrator(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) (*engine.Orchestrator, error) {
	c, err := cache.New(cfg.Tool.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	s3Client, err := state.NewS3Client(ctx, state.ClientConfig{Region: cfg.State.Region, Endpoint: cfg.State.Endpoint})
	if err != nil {
		return nil, err
	}
	versions := state.NewReader(s3Client, cfg.State.Bucket, cfg.State.Key)
	binaries := binary.NewProvisioner(cfg.Tool.Name, versions, c, binary.WithLogger(logger))

	token, source, err := gh.ResolveAuthToken(ctx, cfg.Repo.Token)
	if err != nil {
		return nil, fmt.Errorf("resolve repository token: %w", err)
	}
	if token == "" {
		logger.Warn("no repository token found; only public repositories are reachable")
	} else {
		logger.Debug("repository token resolved", "source", source)
	}
	client, err := gh.NewClient(ctx, token, gh.WithVerbose(cfg.Runtime.Debug, logger))
	if err != nil {
		return nil, err
	}
	repo, err := gh.ParseRepo(cfg.Repo.Identifier)
	if err != nil {
		return nil, err
	}
	snapshots := snapshot.NewProvider(repo, client, c,
		snapshot.WithHTTPClient(client.HTTP),
		snapshot.WithLogger(logger))

	runner := process.NewRunner()
	disk := engine.DiskMeterFunc(func(ctx context.Context) (int64, error) {
		return c.DiskUsage(ctx, runner)
	})

	sinks, err := newSinkManager(ctx, cfg, stdout, logger)
	if err != nil {
		return nil, err
	}

	return engine.New(engine.Dependencies{
		Binaries:  binaries,
		Snapshots: snapshots,
		Disk:      disk,
		Executor:  plan.NewExecutor(runner, logger, cfg.Runtime.Debug),
		Shipper:   sinks,
	}, engine.Options{
		Repository: repo.String(),
		Branch:     cfg.Repo.Branch,
		WorkDir:    cfg.Repo.WorkDir,
	}, logger)
}

// newSinkManager registers the console sink and every sink enabled in cfg.
func newSinkManager(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) (*output.Manager, error) {
	m := output.NewManager(logger)
	add := func(s output.Sink) error {
		if err := m.AddSink(s); err != nil {
			return err
		}
		logger.Debug("metrics sink enabled", "sink", s.Name())
		return nil
	}

	if err := add(output.NewConsoleSink(stdout, cfg.Metrics.NoColor)); err != nil {
		return nil, err
	}
	if cfg.Metrics.Namespace != "" {
		cw, err := output.NewCloudWatchClient(ctx, cfg.State.Region)
		if err != nil {
			return nil, err
		}
		if err := add(output.NewCloudWatchSink(cw, cfg.Metrics.Namespace)); err != nil {
			return nil, err
		}
	}
	if cfg.Metrics.InfluxURL != "" {
		if err := add(output.NewInfluxSink(output.InfluxConfig{
			URL:         cfg.Metrics.InfluxURL,
			Database:    cfg.Metrics.InfluxDB,
			Auth:        cfg.Metrics.InfluxAuth,
			Measurement: cfg.Metrics.InfluxMeasurement,
		}, nil)); err != nil {
			return nil, err
		}
	}
	if cfg.Metrics.PushgatewayURL != "" {
		if err := add(output.NewPushgatewaySink(cfg.Metrics.PushgatewayURL)); err != nil {
			return nil, err
		}
	}
	if cfg.Metrics.OutFile != "" {
		fs, err := output.NewFileSink(cfg.Metrics.OutFile)
		if err != nil {
			return nil, err
		}
		if err := add(fs); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Config{
		Level:  cfg.LogLevel(),
		Format: cfg.Runtime.LogFormat,
		File:   cfg.Runtime.LogFile,
	})
}
