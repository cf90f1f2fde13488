// Package syncer turns classified webhook events into git mutations: the
// two bump strategies, the per-branch coordinator, and the outcome model
// reported back to the transport layer.
package syncer

// Target is the fully derived description of one sync attempt. Immutable
// once constructed; the branch name is taken verbatim from the event.
type Target struct {
	Repo         string
	Branch       string
	SHA          string
	CreateBranch bool
}

type OutcomeKind string

const (
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeApplied OutcomeKind = "applied"
	OutcomeFailed  OutcomeKind = "failed"
)

// Outcome is the terminal result of handling one event.
type Outcome struct {
	Kind   OutcomeKind `json:"outcome"`
	Reason string      `json:"reason,omitempty"`
	Branch string      `json:"branch,omitempty"`
	SHA    string      `json:"sha,omitempty"`
	// True when the deploy repo already pinned the target sha; redelivered
	// webhooks land here instead of producing empty commits.
	NoOp  bool   `json:"no_op,omitempty"`
	Stage string `json:"stage,omitempty"`
	Err   string `json:"error,omitempty"`
}

func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

// SkippedTarget is a skip that still reports what would have happened;
// dry runs use it so the computed sha stays observable.
func SkippedTarget(reason, branch, sha string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason, Branch: branch, SHA: sha}
}

func Applied(branch, sha string, noOp bool) Outcome {
	return Outcome{Kind: OutcomeApplied, Branch: branch, SHA: sha, NoOp: noOp}
}

func Failed(stage string, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Stage: stage, Err: err.Error()}
}
