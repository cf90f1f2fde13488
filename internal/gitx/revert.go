package gitx

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// RevertResult reports the outcome of a revert push.
type RevertResult struct {
	Reason    string
	RevertSHA string
}

// Revert creates a revert commit for sha and pushes it to the remote's
// default branch. The mutation happens in a throwaway clone of the cached
// checkout so a failed revert never dirties the primary working copy.
func (w *Workspace) Revert(ctx context.Context, sha, requester string) (RevertResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.refresh(ctx); err != nil {
		return RevertResult{}, err
	}

	tmp, err := os.MkdirTemp("", "gitbot-revert-")
	if err != nil {
		return RevertResult{}, err
	}
	defer os.RemoveAll(tmp)

	if _, err := w.run(ctx, "", "clone", w.opts.Path, tmp); err != nil {
		return RevertResult{}, err
	}

	subject, err := w.run(ctx, tmp, "log", "-1", "--format=%s", sha)
	if err != nil {
		return RevertResult{}, err
	}
	subject = strings.ReplaceAll(strings.TrimSpace(subject), `"`, "")

	// A mirrored bump commit can only be undone upstream; reverting the pin
	// here would be reapplied by the next sync.
	if w.opts.PinPrefix != "" && strings.HasPrefix(subject, w.opts.PinPrefix) {
		return RevertResult{}, fmt.Errorf(
			"%s cannot be reverted here because it needs to be reverted upstream", sha)
	}

	if _, err := w.run(ctx, tmp, "revert", "--no-commit", sha); err != nil {
		return RevertResult{}, err
	}
	commitArgs := []string{
		"-c", "user.name=" + w.opts.CommitterName,
		"-c", "user.email=" + w.opts.CommitterEmail,
		"commit",
		"-m", fmt.Sprintf("Revert %q", subject),
		"-m", fmt.Sprintf("This reverts commit %s.", sha),
	}
	if requester != "" {
		commitArgs = append(commitArgs, "-m", "Co-authored-by: "+requester)
	}
	if _, err := w.run(ctx, tmp, commitArgs...); err != nil {
		return RevertResult{}, err
	}

	// The throwaway clone's origin is the local checkout; push straight to
	// the real remote.
	pushArgs := []string{"push", w.url, "HEAD:" + w.opts.DefaultBranch}
	if w.opts.DryRun {
		pushArgs = append(pushArgs, "--dry-run")
	}
	if _, err := w.run(ctx, tmp, pushArgs...); err != nil {
		return RevertResult{}, err
	}

	revertSHA, err := w.run(ctx, tmp, "rev-parse", "HEAD")
	if err != nil {
		return RevertResult{}, err
	}
	return RevertResult{
		Reason:    fmt.Sprintf("%s reverted.", sha),
		RevertSHA: strings.TrimSpace(revertSHA),
	}, nil
}
