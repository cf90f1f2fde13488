package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mdtro/gitbot/internal/bump"
	"github.com/mdtro/gitbot/internal/config"
	"github.com/mdtro/gitbot/internal/gitx"
)

// Workspace is the slice of gitx.Workspace the coordinator drives.
type Workspace interface {
	Dir() string
	Refresh(ctx context.Context) error
	EnsureBranch(ctx context.Context, branch string, create bool) error
	HasChanges(ctx context.Context) (bool, error)
	Discard(ctx context.Context) error
	CommitAndPush(ctx context.Context, branch, message, author string) (string, error)
}

// Syncer is what the transport layer sees.
type Syncer interface {
	Sync(ctx context.Context, t Target, author string) Outcome
}

// Coordinator serializes sync attempts per (repo, branch), enforces
// dry-run, and converts every failure into an Outcome. Acquisition is
// try-lock: a branch already being synced rejects the newcomer immediately
// and GitHub's delivery retries provide the eventual convergence. Syncs for
// distinct branches still share one clone, so the whole refresh-to-push
// sequence runs under wsMu; a second branch waits rather than interleaving
// checkouts and commits in the same working copy.
type Coordinator struct {
	cfg     config.Config
	ws      Workspace
	bumper  bump.Executor
	limiter *rate.Limiter

	// Guards the shared clone across the full mutation sequence.
	wsMu sync.Mutex

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewCoordinator(cfg config.Config, ws Workspace, bumper bump.Executor) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		ws:     ws,
		bumper: bumper,
		// Event bursts must not hammer the remote; ~2 mutations/s, burst 1.
		limiter:  rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		inFlight: make(map[string]struct{}),
	}
}

func (c *Coordinator) Sync(ctx context.Context, t Target, author string) Outcome {
	key := t.Repo + ":" + t.Branch
	if !c.tryLock(key) {
		return Skipped("in-progress")
	}
	defer c.unlock(key)

	slog.Info("sync starting",
		"repo", t.Repo, "branch", t.Branch, "sha", t.SHA,
		"create", t.CreateBranch, "dry_run", c.cfg.DryRun)

	out := c.sync(ctx, t, author)

	slog.Info("sync finished",
		"repo", t.Repo, "branch", t.Branch, "sha", t.SHA,
		"outcome", string(out.Kind), "reason", out.Reason,
		"stage", out.Stage, "no_op", out.NoOp)
	return out
}

func (c *Coordinator) sync(ctx context.Context, t Target, author string) Outcome {
	if err := c.limiter.Wait(ctx); err != nil {
		return Failed("timeout", err)
	}

	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if err := c.ws.Refresh(ctx); err != nil {
		return failure("fetch", err)
	}
	if err := c.ws.EnsureBranch(ctx, t.Branch, t.CreateBranch); err != nil {
		if errors.Is(err, gitx.ErrBranchNotFound) {
			return Failed("branch-not-found", err)
		}
		return failure("ensure-branch", err)
	}

	if _, err := c.bumper.Bump(ctx, c.ws.Dir(), t.SHA, author); err != nil {
		return Failed("bump-script", err)
	}

	changed, err := c.ws.HasChanges(ctx)
	if err != nil {
		return failure("diff", err)
	}
	if !changed {
		// Redelivered webhook; the pin already matches.
		return Applied(t.Branch, t.SHA, true)
	}

	if c.cfg.DryRun {
		if err := c.ws.Discard(ctx); err != nil {
			return failure("dry-run-cleanup", err)
		}
		return SkippedTarget("dry-run", t.Branch, t.SHA)
	}

	message := fmt.Sprintf("%s@%s", c.cfg.SourceRepo, t.SHA)
	if _, err := c.ws.CommitAndPush(ctx, t.Branch, message, author); err != nil {
		return failure("push", err)
	}
	return Applied(t.Branch, t.SHA, false)
}

func (c *Coordinator) tryLock(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[key]; busy {
		return false
	}
	c.inFlight[key] = struct{}{}
	return true
}

func (c *Coordinator) unlock(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, key)
}

// failure maps git-layer errors onto the outcome taxonomy.
func failure(stage string, err error) Outcome {
	switch {
	case errors.Is(err, gitx.ErrAuth):
		return Failed("auth", err)
	case errors.Is(err, context.DeadlineExceeded):
		return Failed("timeout", err)
	default:
		return Failed(stage, err)
	}
}
