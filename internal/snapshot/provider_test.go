package snapshot

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"driftwatch/internal/apperrors"
	"driftwatch/internal/cache"
	gh "driftwatch/internal/github"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tarball(t *testing.T, top string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: top + "/", Mode: 0o755}))
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: top + "/" + name, Mode: 0o644, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// fakeGitHub serves the branch, tarball redirect and archive endpoints.
type fakeGitHub struct {
	server   *httptest.Server
	head     string
	archives map[string][]byte
	apiHits  int32
	assetHit int32
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{archives: map[string][]byte{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/infra/branches/main", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.apiHits, 1)
		_, _ = fmt.Fprintf(w, `{"name":"main","commit":{"sha":%q}}`, f.head)
	})
	mux.HandleFunc("/repos/acme/infra/tarball/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.apiHits, 1)
		sha := filepath.Base(r.URL.Path)
		w.Header().Set("Location", f.server.URL+"/codeload/"+sha)
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/codeload/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.assetHit, 1)
		body, ok := f.archives[filepath.Base(r.URL.Path)]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newProvider(t *testing.T, f *fakeGitHub) (*Provider, *cache.Cache) {
	t.Helper()
	client, err := gh.NewClient(context.Background(), "", gh.WithBaseURL(f.server.URL))
	require.NoError(t, err)
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	return NewProvider(gh.Repo{Owner: "acme", Name: "infra"}, client, c, WithHTTPClient(f.server.Client())), c
}

const (
	shaA = "aaaaaaa1111111111111111111111111111111111"
	shaB = "bbbbbbb2222222222222222222222222222222222"
)

func TestGetHead(t *testing.T) {
	f := newFakeGitHub(t)
	f.head = shaA
	p, _ := newProvider(t, f)

	sha, err := p.GetHead(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, shaA, sha)
}

func TestEnsureSnapshot_IdempotentPerCommit(t *testing.T) {
	f := newFakeGitHub(t)
	f.archives[shaA] = tarball(t, "acme-infra-aaaaaaa", map[string]string{"main.tf": "a"})
	f.archives[shaB] = tarball(t, "acme-infra-bbbbbbb", map[string]string{"main.tf": "b"})
	p, c := newProvider(t, f)
	ctx := context.Background()

	first, err := p.EnsureSnapshot(ctx, shaA)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Dir(), "acme-infra-"+shaA), first.Path)
	got, err := os.ReadFile(filepath.Join(first.Path, "main.tf"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))

	again, err := p.EnsureSnapshot(ctx, shaA)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.assetHit), "second call must not download")

	other, err := p.EnsureSnapshot(ctx, shaB)
	require.NoError(t, err)
	assert.NotEqual(t, first.Path, other.Path)

	got, err = os.ReadFile(filepath.Join(first.Path, "main.tf"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(got), "a new commit must not overwrite an existing snapshot")
}

func TestEnsureSnapshot_ArchiveLayoutError(t *testing.T) {
	f := newFakeGitHub(t)
	f.archives[shaA] = tarball(t, "somebody-else-ccccccc", map[string]string{"main.tf": "x"})
	p, c := newProvider(t, f)

	_, err := p.EnsureSnapshot(context.Background(), shaA)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeArchiveLayout), "got %v", err)
	assert.False(t, c.Lookup(p.Key(shaA)).Exists)

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial state may remain")
}

func TestEnsureSnapshot_DownloadError(t *testing.T) {
	f := newFakeGitHub(t)
	p, _ := newProvider(t, f)

	_, err := p.EnsureSnapshot(context.Background(), shaA)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeDownload), "got %v", err)
}

func TestEnsureSnapshot_ExtractionError(t *testing.T) {
	f := newFakeGitHub(t)
	f.archives[shaA] = []byte("not gzip")
	p, _ := newProvider(t, f)

	_, err := p.EnsureSnapshot(context.Background(), shaA)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeExtraction), "got %v", err)
}

func TestEnsureSnapshot_RejectsInvalidSHA(t *testing.T) {
	f := newFakeGitHub(t)
	p, _ := newProvider(t, f)
	for _, sha := range []string{"", "../etc", "a.b"} {
		_, err := p.EnsureSnapshot(context.Background(), sha)
		assert.Error(t, err, "sha %q", sha)
	}
}
