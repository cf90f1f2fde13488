// Package gitx manages local clones of the repos gitbot mutates. All git
// operations shell out to the git binary; the bump script is a subprocess in
// the same working copy, so one exec layer covers both.
package gitx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes one git invocation in dir and returns combined output.
// Injected so workspace behavior is testable without a git binary.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

// ErrAuth marks credential rejections. Never retried; the token is invalid
// or expired and retrying only burns the remote's rate limit.
var ErrAuth = errors.New("git authentication failed")

// ErrBranchNotFound is returned by EnsureBranch when the branch is absent
// remotely and creation was not requested.
var ErrBranchNotFound = errors.New("branch not found")

// CommandError carries the failing git command and its captured output.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if msg == "" {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Transient reports whether the failure looks like a network blip worth a
// bounded retry.
func (e *CommandError) Transient() bool {
	out := strings.ToLower(e.Output)
	for _, marker := range []string{
		"could not resolve host",
		"connection timed out",
		"connection reset",
		"operation timed out",
		"early eof",
		"the remote end hung up unexpectedly",
		"failed to connect",
	} {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}

// Conflict reports whether a push was rejected because the remote advanced
// concurrently. Recoverable via refetch+rebase.
func (e *CommandError) Conflict() bool {
	out := strings.ToLower(e.Output)
	return strings.Contains(out, "non-fast-forward") ||
		strings.Contains(out, "fetch first") ||
		strings.Contains(out, "[rejected]")
}

func isAuthFailure(output string) bool {
	out := strings.ToLower(output)
	for _, marker := range []string{
		"authentication failed",
		"could not read username",
		"could not read password",
		"invalid username or password",
		"permission denied",
		"the requested url returned error: 403",
	} {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}

// runGit is the production Runner. Output of clone/push can contain the
// access token when it is embedded in the remote URL, so callers must scrub
// before logging.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := strings.TrimSpace(buf.String())
	if err != nil {
		// A subprocess killed by the context reports a plain exit error;
		// surface the context cause so callers can classify timeouts.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return output, fmt.Errorf("%w: git %s", ctxErr, scrubArgs(args))
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", fmt.Errorf("git not found in PATH: %w", err)
		}
		if isAuthFailure(output) {
			return output, fmt.Errorf("%w: %s", ErrAuth, scrubArgs(args))
		}
		return output, &CommandError{Args: args, Output: output, Err: err}
	}
	return output, nil
}

// scrubArgs replaces URL userinfo in args so tokens never reach logs or
// error responses.
func scrubArgs(args []string) string {
	scrubbed := make([]string, len(args))
	for i, a := range args {
		scrubbed[i] = scrubURL(a)
	}
	return strings.Join(scrubbed, " ")
}

func scrubURL(s string) string {
	at := strings.Index(s, "@")
	scheme := strings.Index(s, "://")
	if scheme == -1 || at == -1 || at < scheme {
		return s
	}
	return s[:scheme+3] + "***" + s[at:]
}

func logCommand(dir string, args ...string) {
	slog.Debug("> git "+scrubArgs(args), "cwd", dir)
}
