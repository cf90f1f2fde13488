package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mdtro/gitbot/internal/gitx"
)

// fakeWorkspace scripts the git layer for coordinator tests.
type fakeWorkspace struct {
	mu sync.Mutex

	refreshErr error
	ensureErr  error
	changed    bool
	pushErr    error

	// When set, Refresh blocks until released; lets tests hold a branch
	// lock open.
	blockRefresh chan struct{}

	calls []string
}

func (f *fakeWorkspace) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeWorkspace) called(name string) bool {
	return f.countCalls(name) > 0
}

func (f *fakeWorkspace) countCalls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeWorkspace) Dir() string { return "/tmp/fake" }

func (f *fakeWorkspace) Refresh(ctx context.Context) error {
	f.record("refresh")
	if f.blockRefresh != nil {
		<-f.blockRefresh
	}
	return f.refreshErr
}

func (f *fakeWorkspace) EnsureBranch(ctx context.Context, branch string, create bool) error {
	f.record(fmt.Sprintf("ensure:%s:%v", branch, create))
	return f.ensureErr
}

func (f *fakeWorkspace) HasChanges(ctx context.Context) (bool, error) {
	f.record("has-changes")
	return f.changed, nil
}

func (f *fakeWorkspace) Discard(ctx context.Context) error {
	f.record("discard")
	return nil
}

func (f *fakeWorkspace) CommitAndPush(ctx context.Context, branch, message, author string) (string, error) {
	f.record("push:" + branch + ":" + message)
	if f.pushErr != nil {
		return "", f.pushErr
	}
	return "deadbeef", nil
}

type fakeBumper struct {
	err   error
	calls int
}

func (f *fakeBumper) Bump(ctx context.Context, dir, sha, author string) (string, error) {
	f.calls++
	return "", f.err
}

func newTestCoordinator(ws *fakeWorkspace, b *fakeBumper, dryRun bool) *Coordinator {
	cfg := testConfig()
	cfg.DryRun = dryRun
	return NewCoordinator(cfg, ws, b)
}

var testTarget = Target{Repo: "getsentry/getsentry", Branch: "master", SHA: "438cb62a"}

func TestCoordinator_Applied(t *testing.T) {
	ws := &fakeWorkspace{changed: true}
	c := newTestCoordinator(ws, &fakeBumper{}, false)

	out := c.Sync(context.Background(), testTarget, "Jane Doe <jane@example.com>")
	if out.Kind != OutcomeApplied {
		t.Fatalf("expected applied, got %+v", out)
	}
	if out.NoOp {
		t.Fatal("expected a real push, not a no-op")
	}
	if out.Branch != "master" || out.SHA != "438cb62a" {
		t.Fatalf("outcome must report the target, got %+v", out)
	}
	if !ws.called("push:master:getsentry/sentry@438cb62a") {
		t.Fatalf("unexpected push call sequence: %v", ws.calls)
	}
}

func TestCoordinator_NoOpWhenPinAlreadyMatches(t *testing.T) {
	ws := &fakeWorkspace{changed: false}
	c := newTestCoordinator(ws, &fakeBumper{}, false)

	out := c.Sync(context.Background(), testTarget, "")
	if out.Kind != OutcomeApplied || !out.NoOp {
		t.Fatalf("expected no-op applied, got %+v", out)
	}
	if ws.called("push:master:getsentry/sentry@438cb62a") {
		t.Fatal("no-op must not commit or push")
	}
}

func TestCoordinator_DryRunSkipsPushAndCleans(t *testing.T) {
	ws := &fakeWorkspace{changed: true}
	bumper := &fakeBumper{}
	c := newTestCoordinator(ws, bumper, true)

	out := c.Sync(context.Background(), testTarget, "")
	if out.Kind != OutcomeSkipped || out.Reason != "dry-run" {
		t.Fatalf("expected dry-run skip, got %+v", out)
	}
	if out.SHA != "438cb62a" {
		t.Fatalf("dry-run outcome must carry the computed sha, got %q", out.SHA)
	}
	if bumper.calls != 1 {
		t.Fatalf("dry run must still rehearse the bump, calls=%d", bumper.calls)
	}
	if !ws.called("discard") {
		t.Fatal("dry run must discard the rehearsed change")
	}
	for _, call := range ws.calls {
		if call == "push:master:getsentry/sentry@438cb62a" {
			t.Fatal("dry run must never push")
		}
	}
}

func TestCoordinator_BumpScriptFailureIsFatal(t *testing.T) {
	ws := &fakeWorkspace{changed: true}
	bumper := &fakeBumper{err: errors.New("bump script failed: incompatible")}
	c := newTestCoordinator(ws, bumper, false)

	out := c.Sync(context.Background(), testTarget, "")
	if out.Kind != OutcomeFailed || out.Stage != "bump-script" {
		t.Fatalf("expected bump-script failure, got %+v", out)
	}
	if bumper.calls != 1 {
		t.Fatalf("bump script failures must not be retried, calls=%d", bumper.calls)
	}
}

func TestCoordinator_BranchNotFound(t *testing.T) {
	ws := &fakeWorkspace{ensureErr: fmt.Errorf("%w: gone", gitx.ErrBranchNotFound)}
	c := newTestCoordinator(ws, &fakeBumper{}, false)

	out := c.Sync(context.Background(), Target{Repo: "getsentry/getsentry", Branch: "gone", SHA: "abc"}, "")
	if out.Kind != OutcomeFailed || out.Stage != "branch-not-found" {
		t.Fatalf("expected branch-not-found failure, got %+v", out)
	}
}

func TestCoordinator_DeadlineReportsTimeoutStage(t *testing.T) {
	ws := &fakeWorkspace{refreshErr: fmt.Errorf("%w: git fetch --prune origin", context.DeadlineExceeded)}
	c := newTestCoordinator(ws, &fakeBumper{}, false)

	out := c.Sync(context.Background(), testTarget, "")
	if out.Kind != OutcomeFailed || out.Stage != "timeout" {
		t.Fatalf("expected timeout failure, got %+v", out)
	}
}

func TestCoordinator_AuthFailureStage(t *testing.T) {
	ws := &fakeWorkspace{changed: true, pushErr: fmt.Errorf("push: %w", gitx.ErrAuth)}
	c := newTestCoordinator(ws, &fakeBumper{}, false)

	out := c.Sync(context.Background(), testTarget, "")
	if out.Kind != OutcomeFailed || out.Stage != "auth" {
		t.Fatalf("expected auth failure, got %+v", out)
	}
}

func TestCoordinator_ConcurrentSameBranchRejected(t *testing.T) {
	release := make(chan struct{})
	ws := &fakeWorkspace{changed: true, blockRefresh: release}
	c := newTestCoordinator(ws, &fakeBumper{}, false)

	first := make(chan Outcome, 1)
	go func() {
		first <- c.Sync(context.Background(), testTarget, "")
	}()

	// Wait for the first sync to be inside Refresh, holding the lock.
	deadline := time.After(2 * time.Second)
	for !ws.called("refresh") {
		select {
		case <-deadline:
			t.Fatal("first sync never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	second := c.Sync(context.Background(), testTarget, "")
	if second.Kind != OutcomeSkipped || second.Reason != "in-progress" {
		t.Fatalf("expected in-progress skip, got %+v", second)
	}

	close(release)
	if out := <-first; out.Kind != OutcomeApplied {
		t.Fatalf("expected first sync to apply, got %+v", out)
	}

	// Lock released; a later delivery proceeds.
	third := c.Sync(context.Background(), testTarget, "")
	if third.Kind != OutcomeApplied {
		t.Fatalf("expected third sync to apply, got %+v", third)
	}
}

func TestCoordinator_DifferentBranchesShareOneClone(t *testing.T) {
	release := make(chan struct{})
	ws := &fakeWorkspace{changed: true, blockRefresh: release}
	c := newTestCoordinator(ws, &fakeBumper{}, false)

	first := make(chan Outcome, 1)
	go func() {
		first <- c.Sync(context.Background(), testTarget, "")
	}()

	deadline := time.After(2 * time.Second)
	for !ws.called("refresh") {
		select {
		case <-deadline:
			t.Fatal("first sync never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	other := Target{Repo: "getsentry/getsentry", Branch: "test-pr", SHA: "abc123", CreateBranch: true}
	done := make(chan Outcome, 1)
	go func() {
		done <- c.Sync(context.Background(), other, "")
	}()

	// A different branch gets its own try-lock, so it waits for the clone
	// instead of being rejected. While the first sync holds the working
	// copy it must not have started mutating it.
	select {
	case out := <-done:
		t.Fatalf("second sync finished before release: %+v", out)
	case <-time.After(50 * time.Millisecond):
	}
	if n := ws.countCalls("refresh"); n != 1 {
		t.Fatalf("second branch entered the shared clone while the first held it: %d refreshes", n)
	}

	close(release)
	if out := <-first; out.Kind != OutcomeApplied {
		t.Fatalf("first: %+v", out)
	}
	if out := <-done; out.Kind != OutcomeApplied {
		t.Fatalf("second: %+v", out)
	}
	// Both sequences ran in full, one after the other.
	if n := ws.countCalls("refresh"); n != 2 {
		t.Fatalf("expected both syncs to refresh, got %d", n)
	}
	if !ws.called("push:master:getsentry/sentry@438cb62a") ||
		!ws.called("push:test-pr:getsentry/sentry@abc123") {
		t.Fatalf("expected both branches pushed, calls: %v", ws.calls)
	}
}
