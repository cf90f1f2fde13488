// Package bump invokes the deploy repo's own bump mechanism: an executable
// shipped inside that repo which rewrites the pinned source sha in the
// working copy. gitbot treats it as opaque; only the exit status matters.
package bump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultScript is the bump entrypoint every deploy repo is expected to
// carry, relative to its root.
const DefaultScript = "bin/bump-sentry"

// DefaultTimeout is the hard wall-clock ceiling for one bump invocation. A
// hung script must not hang the service.
const DefaultTimeout = 30 * time.Second

// Executor rewrites the pinned reference in dir to sha. Implementations
// return captured output for diagnostics alongside any error.
type Executor interface {
	Bump(ctx context.Context, dir, sha, author string) (string, error)
}

// ScriptError wraps a bump-script failure. Never retried: a failing bump
// script signals a real incompatibility, not a transient fault.
type ScriptError struct {
	Output   string
	TimedOut bool
	Err      error
}

func (e *ScriptError) Error() string {
	if e.TimedOut {
		return "bump script timed out"
	}
	msg := strings.TrimSpace(e.Output)
	if msg == "" {
		msg = e.Err.Error()
	}
	return "bump script failed: " + msg
}

func (e *ScriptError) Unwrap() error { return e.Err }

// ScriptExecutor runs the bump script as a subprocess in the working copy.
type ScriptExecutor struct {
	// Absolute override for the script location; empty means
	// DefaultScript resolved against the working copy.
	Path    string
	Timeout time.Duration
}

// Command composes the argv for a bump: script, target sha, and the commit
// attribution when known.
func (s *ScriptExecutor) Command(dir, sha, author string) []string {
	script := s.Path
	if script == "" {
		script = filepath.Join(dir, filepath.FromSlash(DefaultScript))
	}
	cmd := []string{script, sha}
	if author != "" {
		cmd = append(cmd, "--author", author)
	}
	return cmd
}

func (s *ScriptExecutor) Bump(ctx context.Context, dir, sha, author string) (string, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := s.Command(dir, sha, author)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := strings.TrimSpace(buf.String())
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return output, &ScriptError{Output: output, TimedOut: true, Err: err}
		}
		return output, &ScriptError{Output: output, Err: fmt.Errorf("%s: %w", argv[0], err)}
	}
	return output, nil
}
