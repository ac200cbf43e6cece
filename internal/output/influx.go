package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"driftwatch/internal/lineprotocol"
	"driftwatch/internal/metrics"
)

// RepositoryTag is the tag key carrying the repository identifier.
const RepositoryTag = "repository"

// InfluxConfig holds the line-protocol sink parameters. They are validated
// when the sink ships, not when it is built.
type InfluxConfig struct {
	URL         string
	Database    string
	Auth        string // user:password, optional
	Measurement string
}

// InfluxSink writes one line per run to the /write endpoint.
type InfluxSink struct {
	cfg  InfluxConfig
	http *http.Client
}

func NewInfluxSink(cfg InfluxConfig, client *http.Client) *InfluxSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &InfluxSink{cfg: cfg, http: client}
}

func (s *InfluxSink) Name() string { return "influx" }

// Line renders r as a single line-protocol point.
func (s *InfluxSink) Line(r metrics.Record) (string, error) {
	fields := make(map[string]any)
	for _, sample := range r.Samples() {
		fields[sample.Metric.Name()] = sample.Value
	}
	p := lineprotocol.NewPoint(s.cfg.Measurement, map[string]string{RepositoryTag: r.Repository}, fields, r.Timestamp)
	return lineprotocol.Encode(p)
}

func (s *InfluxSink) writeURL() (string, error) {
	if s.cfg.Database == "" {
		return "", fmt.Errorf("influx: database is empty")
	}
	u, err := url.Parse(strings.TrimRight(s.cfg.URL, "/") + "/write")
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("influx: invalid url %q", s.cfg.URL)
	}
	q := u.Query()
	q.Set("db", s.cfg.Database)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *InfluxSink) Ship(ctx context.Context, r metrics.Record) error {
	endpoint, err := s.writeURL()
	if err != nil {
		return err
	}
	line, err := s.Line(r)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(line+"\n"))
	if err != nil {
		return fmt.Errorf("influx: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if s.cfg.Auth != "" {
		user, pass, _ := strings.Cut(s.cfg.Auth, ":")
		req.SetBasicAuth(user, pass)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("influx: write: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("influx: write returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
