package github

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"driftwatch/internal/process"
)

// TokenSource names where a resolved token came from. It is safe to log.
type TokenSource string

const (
	TokenFromConfig TokenSource = "config"
	TokenFromEnv    TokenSource = "env:GITHUB_TOKEN"
	TokenFromGHCLI  TokenSource = "gh"
)

const ghTokenTimeout = 5 * time.Second

// ResolveAuthToken picks the API token: the configured one if set, then
// GITHUB_TOKEN, then `gh auth token -h github.com`. An empty token with a
// nil error means none was found; public repositories still work
// unauthenticated.
func ResolveAuthToken(ctx context.Context, configured string) (string, TokenSource, error) {
	if tok := strings.TrimSpace(configured); tok != "" {
		return tok, TokenFromConfig, nil
	}
	if tok := strings.TrimSpace(os.Getenv("GITHUB_TOKEN")); tok != "" {
		return tok, TokenFromEnv, nil
	}
	tok, err := ghCLIToken(ctx)
	if err != nil || tok == "" {
		return "", "", err
	}
	return tok, TokenFromGHCLI, nil
}

// ghCLIToken asks the gh CLI for its stored token. A missing binary or a
// logged-out gh yields "" without error; gh output is never surfaced.
func ghCLIToken(ctx context.Context) (string, error) {
	bin, err := exec.LookPath("gh")
	if err != nil {
		return "", nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ghTokenTimeout)
		defer cancel()
	}

	res, err := process.NewRunner().Run(ctx, process.Command{
		Name: bin,
		Args: []string{"auth", "token", "-h", "github.com"},
		Env:  []string{"GH_PAGER=cat"},
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil || res.ExitCode != 0 {
		return "", nil
	}

	tok := strings.TrimSpace(res.Stdout)
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", errors.New("invalid token returned by gh: contains whitespace")
	}
	return tok, nil
}
