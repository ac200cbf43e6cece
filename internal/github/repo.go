package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"driftwatch/internal/apperrors"

	"github.com/google/go-github/v81/github"
)

// Repo identifies a repository as OWNER/NAME.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepo accepts OWNER/NAME or a github.com URL.
func ParseRepo(s string) (Repo, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".git")
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "github.com/"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.Trim(s, "/")
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, fmt.Errorf("invalid repository %q: expected OWNER/NAME", s)
	}
	return Repo{Owner: owner, Name: name}, nil
}

// BranchHead returns the tip commit SHA of branch.
func (c *Client) BranchHead(ctx context.Context, repo Repo, branch string) (string, error) {
	b, _, err := c.Client.Repositories.GetBranch(ctx, repo.Owner, repo.Name, branch, 1)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeAPI, fmt.Sprintf("get branch %s of %s", branch, repo), err)
	}
	sha := strings.TrimSpace(b.GetCommit().GetSHA())
	if sha == "" {
		return "", apperrors.Newf(apperrors.CodeAPI, "branch %s of %s: response has no commit sha", branch, repo)
	}
	return sha, nil
}

// TarballLink resolves the commit-addressed archive endpoint to the
// location it redirects to.
func (c *Client) TarballLink(ctx context.Context, repo Repo, ref string) (*url.URL, error) {
	u, _, err := c.Client.Repositories.GetArchiveLink(ctx, repo.Owner, repo.Name, github.Tarball,
		&github.RepositoryContentGetOptions{Ref: ref}, 1)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAPI, fmt.Sprintf("get tarball link of %s@%s", repo, ref), err)
	}
	if u == nil || u.String() == "" {
		return nil, apperrors.Newf(apperrors.CodeAPI, "tarball link of %s@%s: no redirect location", repo, ref)
	}
	return u, nil
}
