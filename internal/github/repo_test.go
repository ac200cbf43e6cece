package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"driftwatch/internal/apperrors"
)

func TestParseRepo(t *testing.T) {
	cases := []struct {
		in      string
		want    Repo
		wantErr bool
	}{
		{in: "acme/infra", want: Repo{Owner: "acme", Name: "infra"}},
		{in: "https://github.com/acme/infra.git", want: Repo{Owner: "acme", Name: "infra"}},
		{in: " github.com/acme/infra/ ", want: Repo{Owner: "acme", Name: "infra"}},
		{in: "acme", wantErr: true},
		{in: "acme/", wantErr: true},
		{in: "acme/infra/extra", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseRepo(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseRepo(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRepo(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseRepo(%q): got %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	c, err := NewClient(context.Background(), "test-token", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestBranchHead(t *testing.T) {
	repo := Repo{Owner: "acme", Name: "infra"}

	t.Run("returns commit sha", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/repos/acme/infra/branches/main" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			_, _ = w.Write([]byte(`{"name":"main","commit":{"sha":"0123456789abcdef"}}`))
		})
		sha, err := c.BranchHead(context.Background(), repo, "main")
		if err != nil {
			t.Fatalf("BranchHead: %v", err)
		}
		if sha != "0123456789abcdef" {
			t.Fatalf("sha: got %q", sha)
		}
	})

	t.Run("unparsable body is an api error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>not json</html>`))
		})
		_, err := c.BranchHead(context.Background(), repo, "main")
		if !apperrors.Is(err, apperrors.CodeAPI) {
			t.Fatalf("expected API error, got %v", err)
		}
	})

	t.Run("missing commit sha is an api error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"name":"main"}`))
		})
		_, err := c.BranchHead(context.Background(), repo, "main")
		if !apperrors.Is(err, apperrors.CodeAPI) {
			t.Fatalf("expected API error, got %v", err)
		}
	})

	t.Run("http error is an api error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		})
		_, err := c.BranchHead(context.Background(), repo, "main")
		if !apperrors.Is(err, apperrors.CodeAPI) {
			t.Fatalf("expected API error, got %v", err)
		}
	})
}

func TestTarballLink(t *testing.T) {
	repo := Repo{Owner: "acme", Name: "infra"}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/infra/tarball/abc123" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Location", "https://codeload.example.com/acme/infra/legacy.tar.gz/abc123")
		w.WriteHeader(http.StatusFound)
	})

	u, err := c.TarballLink(context.Background(), repo, "abc123")
	if err != nil {
		t.Fatalf("TarballLink: %v", err)
	}
	if u.String() != "https://codeload.example.com/acme/infra/legacy.tar.gz/abc123" {
		t.Fatalf("unexpected link %s", u)
	}

	_, err = c.TarballLink(context.Background(), repo, "missing")
	if !apperrors.Is(err, apperrors.CodeAPI) {
		t.Fatalf("expected API error, got %v", err)
	}
}
