// Package binary provisions the reconciliation tool executable at the
// version recorded in the remote state.
package binary

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"driftwatch/internal/apperrors"
	"driftwatch/internal/archive"
	"driftwatch/internal/cache"
)

// DefaultDistributionURL is the release mirror the archive is fetched from.
const DefaultDistributionURL = "https://releases.hashicorp.com"

// VersionSource resolves the tool version from the remote state.
type VersionSource interface {
	ToolVersion(ctx context.Context) (string, error)
}

// Provisioner downloads each tool version at most once into the cache.
type Provisioner struct {
	Tool    string
	OS      string
	Arch    string
	BaseURL string

	versions  VersionSource
	cache     *cache.Cache
	http      *http.Client
	logger    *slog.Logger
	downloads atomic.Int64
}

type Option func(*Provisioner)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provisioner) { p.http = c }
}

func WithBaseURL(u string) Option {
	return func(p *Provisioner) { p.BaseURL = strings.TrimRight(u, "/") }
}

// WithPlatform overrides the target OS and architecture.
func WithPlatform(goos, goarch string) Option {
	return func(p *Provisioner) { p.OS, p.Arch = goos, goarch }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

func NewProvisioner(tool string, versions VersionSource, c *cache.Cache, opts ...Option) *Provisioner {
	p := &Provisioner{
		Tool:     tool,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		BaseURL:  DefaultDistributionURL,
		versions: versions,
		cache:    c,
		http:     http.DefaultClient,
		logger:   slog.Default(),
	}
	for _, apply := range opts {
		if apply != nil {
			apply(p)
		}
	}
	return p
}

// ResolveVersion reads the tool version from the state descriptor.
func (p *Provisioner) ResolveVersion(ctx context.Context) (string, error) {
	return p.versions.ToolVersion(ctx)
}

// ArtifactName is <tool>_<version>_<os>_<arch>.
func (p *Provisioner) ArtifactName(version string) string {
	return fmt.Sprintf("%s_%s_%s_%s", p.Tool, version, p.OS, p.Arch)
}

// DownloadURL is the version-templated archive location.
func (p *Provisioner) DownloadURL(version string) string {
	return fmt.Sprintf("%s/%s/%s/%s.zip", p.BaseURL, p.Tool, version, p.ArtifactName(version))
}

// Downloads reports how many archives this provisioner has fetched.
func (p *Provisioner) Downloads() int64 {
	return p.downloads.Load()
}

// EnsureBinary returns the path of the executable for version, downloading
// and extracting the distribution archive on a cache miss.
func (p *Provisioner) EnsureBinary(ctx context.Context, version string) (string, error) {
	if strings.TrimSpace(version) == "" || strings.ContainsAny(version, `/\`) {
		return "", apperrors.Newf(apperrors.CodeStateFormat, "invalid tool version %q", version)
	}
	key := p.ArtifactName(version)

	a, hit, err := p.cache.Ensure(ctx, key, func(ctx context.Context, staging string) error {
		return p.fill(ctx, version, staging)
	})
	if err != nil {
		return "", err
	}
	bin := filepath.Join(a.Path, p.Tool)
	if hit {
		p.logger.Debug("tool binary cache hit", "path", bin)
	} else {
		p.logger.Info("tool binary provisioned", "version", version, "path", bin)
	}
	return bin, nil
}

func (p *Provisioner) fill(ctx context.Context, version, staging string) error {
	url := p.DownloadURL(version)
	zipPath := filepath.Join(staging, p.ArtifactName(version)+".zip")
	p.logger.Info("downloading tool archive", "url", url)

	if err := p.download(ctx, url, zipPath); err != nil {
		return err
	}
	if err := archive.ExtractZip(zipPath, staging); err != nil {
		return apperrors.Wrap(apperrors.CodeExtraction, "extract "+filepath.Base(zipPath), err)
	}
	if err := os.Remove(zipPath); err != nil {
		return apperrors.Wrap(apperrors.CodeExtraction, "remove archive", err)
	}
	bin := filepath.Join(staging, p.Tool)
	if _, err := os.Stat(bin); err != nil {
		return apperrors.Wrap(apperrors.CodeExtraction, fmt.Sprintf("archive has no %s executable", p.Tool), err)
	}
	if err := os.Chmod(bin, 0o755); err != nil {
		return apperrors.Wrap(apperrors.CodeExtraction, "mark binary executable", err)
	}
	return nil
}

func (p *Provisioner) download(ctx context.Context, url, dest string) error {
	p.downloads.Add(1)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDownload, "build request", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDownload, "GET "+url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apperrors.Newf(apperrors.CodeDownload, "GET %s: unexpected status %s", url, resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDownload, "create "+dest, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return apperrors.Wrap(apperrors.CodeDownload, "read body of "+url, err)
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(apperrors.CodeDownload, "close "+dest, err)
	}
	return nil
}
