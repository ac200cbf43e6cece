// Package snapshot provisions immutable, commit-addressed checkouts of the
// configuration repository.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"driftwatch/internal/apperrors"
	"driftwatch/internal/archive"
	"driftwatch/internal/cache"
	gh "driftwatch/internal/github"
)

// SourceControl is the hosting API surface the provider needs.
type SourceControl interface {
	BranchHead(ctx context.Context, repo gh.Repo, branch string) (string, error)
	TarballLink(ctx context.Context, repo gh.Repo, ref string) (*url.URL, error)
}

// Snapshot is a checkout of Repo at SHA.
type Snapshot struct {
	Repo gh.Repo
	SHA  string
	Path string
}

type Provider struct {
	repo   gh.Repo
	scm    SourceControl
	cache  *cache.Cache
	http   *http.Client
	logger *slog.Logger
}

type Option func(*Provider)

// WithHTTPClient sets the client used to download the archive from the
// redirect location.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.http = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

func NewProvider(repo gh.Repo, scm SourceControl, c *cache.Cache, opts ...Option) *Provider {
	p := &Provider{
		repo:   repo,
		scm:    scm,
		cache:  c,
		http:   http.DefaultClient,
		logger: slog.Default(),
	}
	for _, apply := range opts {
		if apply != nil {
			apply(p)
		}
	}
	return p
}

// GetHead returns the tip commit of branch.
func (p *Provider) GetHead(ctx context.Context, branch string) (string, error) {
	return p.scm.BranchHead(ctx, p.repo, branch)
}

// Key is the cache key of a commit: <owner>-<name>-<sha>.
func (p *Provider) Key(sha string) string {
	return fmt.Sprintf("%s-%s-%s", p.repo.Owner, p.repo.Name, sha)
}

// EnsureSnapshot returns the checkout of sha, downloading and extracting the
// commit archive on a cache miss. An existing checkout is never rewritten.
func (p *Provider) EnsureSnapshot(ctx context.Context, sha string) (Snapshot, error) {
	sha = strings.TrimSpace(sha)
	if sha == "" || strings.ContainsAny(sha, `/\.`) {
		return Snapshot{}, apperrors.Newf(apperrors.CodeAPI, "invalid commit sha %q", sha)
	}

	a, hit, err := p.cache.Ensure(ctx, p.Key(sha), func(ctx context.Context, staging string) error {
		return p.fill(ctx, sha, staging)
	})
	if err != nil {
		return Snapshot{}, err
	}
	if hit {
		p.logger.Debug("repository snapshot cache hit", "sha", sha, "path", a.Path)
	} else {
		p.logger.Info("repository snapshot provisioned", "sha", sha, "path", a.Path)
	}
	return Snapshot{Repo: p.repo, SHA: sha, Path: a.Path}, nil
}

// fill extracts the archive beside staging and moves the commit folder's
// contents into staging. The archive's top-level folder is named
// <owner>-<name>-<short sha>; the short form is not fixed, so any folder
// whose suffix is a prefix of sha is accepted.
func (p *Provider) fill(ctx context.Context, sha, staging string) error {
	link, err := p.scm.TarballLink(ctx, p.repo, sha)
	if err != nil {
		return err
	}

	extractDir := staging + ".extract"
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.CodeExtraction, "create extraction dir", err)
	}
	defer func() { _ = os.RemoveAll(extractDir) }()

	if err := p.download(ctx, link, extractDir); err != nil {
		return err
	}

	root, err := p.locateRoot(extractDir, sha)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeExtraction, "read extracted archive", err)
	}
	for _, e := range entries {
		if err := os.Rename(filepath.Join(root, e.Name()), filepath.Join(staging, e.Name())); err != nil {
			return apperrors.Wrap(apperrors.CodeExtraction, "move extracted content", err)
		}
	}
	return nil
}

func (p *Provider) download(ctx context.Context, link *url.URL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.String(), nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDownload, "build archive request", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDownload, "GET "+link.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apperrors.Newf(apperrors.CodeDownload, "GET %s: unexpected status %s", link.Redacted(), resp.Status)
	}
	if err := archive.ExtractTarGz(resp.Body, dest); err != nil {
		return apperrors.Wrap(apperrors.CodeExtraction, "extract repository archive", err)
	}
	return nil
}

func (p *Provider) locateRoot(dir, sha string) (string, error) {
	prefix := fmt.Sprintf("%s-%s-", p.repo.Owner, p.repo.Name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeExtraction, "read extraction dir", err)
	}
	var seen []string
	for _, e := range entries {
		seen = append(seen, e.Name())
		if !e.IsDir() {
			continue
		}
		suffix, ok := strings.CutPrefix(strings.ToLower(e.Name()), strings.ToLower(prefix))
		if ok && suffix != "" && strings.HasPrefix(strings.ToLower(sha), suffix) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", apperrors.Newf(apperrors.CodeArchiveLayout, "archive for %s has no %s<sha> folder", sha, prefix).
		WithContext("entries", seen)
}
