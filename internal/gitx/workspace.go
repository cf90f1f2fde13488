package gitx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	// Bounded retry budget for transient network failures and push races.
	maxAttempts = 3
	baseBackoff = 250 * time.Millisecond
)

type Options struct {
	// owner/name on github.com.
	Repo string
	// Access token embedded in the remote URL. Empty means anonymous
	// (read-only dev setups).
	Token string
	// Long-lived local clone location.
	Path string
	// Branch that fetch/reset recovery converges on.
	DefaultBranch string

	CommitterName  string
	CommitterEmail string

	// Commit-subject prefix marking a mirrored bump of the source repo
	// (e.g. "getsentry/sentry@"). Set on the deploy workspace only; guards
	// reverts that must happen upstream instead.
	PinPrefix string

	DryRun bool
}

// Workspace owns one cached clone and every mutation performed in it. Each
// exported method holds the clone's lock for its duration; multi-step sync
// sequences are additionally serialized by the coordinator so no two
// sequences ever interleave inside the working copy.
type Workspace struct {
	opts Options
	url  string
	run  Runner

	mu sync.Mutex
}

func New(opts Options) *Workspace {
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = "master"
	}
	return &Workspace{
		opts: opts,
		url:  RemoteURL(opts.Repo, opts.Token),
		run:  runGit,
	}
}

// RemoteURL builds the authenticated https remote for a repo.
func RemoteURL(repo, token string) string {
	if token == "" {
		return "https://github.com/" + repo
	}
	return "https://x-access-token:" + token + "@github.com/" + repo
}

func (w *Workspace) Repo() string { return w.opts.Repo }
func (w *Workspace) Dir() string  { return w.opts.Path }

func (w *Workspace) git(ctx context.Context, args ...string) (string, error) {
	logCommand(w.opts.Path, args...)
	return w.run(ctx, w.opts.Path, args...)
}

// Refresh brings the cached clone to the remote's default branch head,
// cloning first if the checkout does not exist yet. A working copy left in a
// bad state by an earlier failure is recovered by the forced checkout.
func (w *Workspace) Refresh(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refresh(ctx)
}

func (w *Workspace) refresh(ctx context.Context) error {
	if _, err := os.Stat(w.opts.Path); os.IsNotExist(err) {
		_, err := w.retryTransient(ctx, func() (string, error) {
			logCommand("", "clone", scrubURL(w.url), w.opts.Path)
			return w.run(ctx, "", "clone", w.url, w.opts.Path)
		})
		if err != nil {
			return err
		}
		// Silences git's divergent-branch hints; this is the recommended
		// default setting.
		if _, err := w.git(ctx, "config", "pull.rebase", "false"); err != nil {
			return err
		}
	}

	if _, err := w.retryTransient(ctx, func() (string, error) {
		return w.git(ctx, "fetch", "--prune", "origin")
	}); err != nil {
		return err
	}
	_, err := w.git(ctx, "checkout", "-f", "-B", w.opts.DefaultBranch, "origin/"+w.opts.DefaultBranch)
	return err
}

// EnsureBranch checks out branch tracking its remote counterpart. When the
// branch does not exist remotely it is created from the default branch if
// create is set, otherwise ErrBranchNotFound. Callers Refresh first.
func (w *Workspace) EnsureBranch(ctx context.Context, branch string, create bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if branch == w.opts.DefaultBranch {
		return nil
	}
	if _, err := w.git(ctx, "rev-parse", "--verify", "--quiet", "refs/remotes/origin/"+branch); err == nil {
		_, err := w.git(ctx, "checkout", "-f", "-B", branch, "origin/"+branch)
		return err
	}
	if !create {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	_, err := w.git(ctx, "checkout", "-f", "-B", branch, "origin/"+w.opts.DefaultBranch)
	return err
}

// HasChanges reports whether the working tree differs from HEAD. A bump that
// rewrote nothing means the pin already matches the target sha.
func (w *Workspace) HasChanges(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out, err := w.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// Discard throws away uncommitted changes. Dry runs use it so rehearsals do
// not pollute the cached clone.
func (w *Workspace) Discard(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.git(ctx, "reset", "--hard", "HEAD")
	return err
}

// CommitAndPush commits the working tree and pushes branch, retrying pushes
// rejected by a concurrently advancing remote via refetch+rebase. Returns
// the pushed commit sha.
func (w *Workspace) CommitAndPush(ctx context.Context, branch, message, author string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.git(ctx, "add", "--all"); err != nil {
		return "", err
	}
	commitArgs := []string{
		"-c", "user.name=" + w.opts.CommitterName,
		"-c", "user.email=" + w.opts.CommitterEmail,
		"commit", "-m", message,
	}
	if author != "" {
		commitArgs = append(commitArgs, "--author", author)
	}
	if _, err := w.git(ctx, commitArgs...); err != nil {
		return "", err
	}

	if err := w.push(ctx, branch); err != nil {
		return "", err
	}
	return w.git(ctx, "rev-parse", "HEAD")
}

func (w *Workspace) push(ctx context.Context, branch string) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, baseBackoff<<uint(attempt-1)); err != nil {
				return err
			}
		}
		_, err := w.git(ctx, "push", "origin", branch)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrAuth) {
			return err
		}
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.Conflict() {
			// Someone pushed underneath us; replay on top of their head.
			if _, ferr := w.git(ctx, "fetch", "origin", branch); ferr != nil {
				return ferr
			}
			if _, rerr := w.git(ctx, "rebase", "origin/"+branch); rerr != nil {
				// A real conflict; never auto-resolved.
				_, _ = w.git(ctx, "rebase", "--abort")
				return fmt.Errorf("push conflict on %s: %w", branch, rerr)
			}
			lastErr = err
			continue
		}
		if errors.As(err, &cmdErr) && cmdErr.Transient() {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("push failed after %d attempts: %w", maxAttempts, lastErr)
}

func (w *Workspace) retryTransient(ctx context.Context, op func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, baseBackoff<<uint(attempt-1)); err != nil {
				return "", err
			}
		}
		out, err := op()
		if err == nil {
			return out, nil
		}
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.Transient() {
			lastErr = err
			continue
		}
		return "", err
	}
	return "", fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
