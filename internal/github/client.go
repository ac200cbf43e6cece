// Package github wraps the GitHub REST API calls needed to snapshot a
// repository branch: branch head lookup, archive links and token discovery.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
)

// Client pairs the REST client with the http.Client it was built on, which
// snapshot downloads reuse so they carry the same auth and logging.
type Client struct {
	Client *github.Client
	HTTP   *http.Client
}

type clientConfig struct {
	logger  *slog.Logger
	baseURL string
}

type Option func(*clientConfig)

// WithVerbose logs every API round trip at debug level on logger. A nil
// logger falls back to slog.Default.
func WithVerbose(enabled bool, logger *slog.Logger) Option {
	return func(c *clientConfig) {
		if !enabled {
			c.logger = nil
			return
		}
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(u string) Option {
	return func(c *clientConfig) { c.baseURL = u }
}

type tracingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	began := time.Now()
	t.logger.Debug("github api request", "method", req.Method, "url", req.URL.Redacted())
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(began).Truncate(time.Millisecond)
	if err != nil {
		t.logger.Debug("github api error", "after", elapsed, "error", err)
		return nil, err
	}
	t.logger.Debug("github api response", "status", resp.StatusCode, "after", elapsed)
	return resp, nil
}

func buildTransport(token string, logger *slog.Logger) http.RoundTripper {
	var rt http.RoundTripper = http.DefaultTransport
	if logger != nil {
		rt = &tracingTransport{next: rt, logger: logger}
	}
	if token == "" {
		return rt
	}
	return &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		Base:   rt,
	}
}

// NewClient builds a client authenticated with token. An empty token yields
// an anonymous client subject to the unauthenticated rate limit.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}
	var cfg clientConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	hc := &http.Client{Transport: buildTransport(token, cfg.logger)}
	gc := github.NewClient(hc)
	if cfg.baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(cfg.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github client: parse base url: %w", err)
		}
		gc.BaseURL = u
		gc.UploadURL = u
	}
	return &Client{Client: gc, HTTP: hc}, nil
}
