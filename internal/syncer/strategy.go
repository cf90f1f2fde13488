package syncer

import (
	"github.com/mdtro/gitbot/internal/config"
	"github.com/mdtro/gitbot/internal/event"
)

// PushStrategy mirrors every merge to the source repo's mainline into the
// deploy repo's mainline. The steady-state deployment pulse.
type PushStrategy struct {
	cfg config.Config
}

func NewPushStrategy(cfg config.Config) PushStrategy {
	return PushStrategy{cfg: cfg}
}

// Plan derives the sync target for a push event. A non-nil Outcome means
// the event is settled without touching git.
func (s PushStrategy) Plan(ev event.Event) (Target, *Outcome) {
	if !s.cfg.IsDev() && ev.Repo != s.cfg.SourceRepo {
		o := Skipped("unknown-repository")
		return Target{}, &o
	}
	p := ev.Push
	if p.Ref != s.cfg.SourceDefaultRef {
		o := Skipped("non-default-branch")
		return Target{}, &o
	}
	return Target{
		Repo:   s.cfg.DeployRepo,
		Branch: s.cfg.DeployBranch,
		SHA:    p.HeadSHA,
	}, nil
}

// PRStrategy keeps a feature branch's staging deployment pinned to the exact
// commit under review. Opted into per-PR via the marker in the description.
type PRStrategy struct {
	cfg config.Config
}

func NewPRStrategy(cfg config.Config) PRStrategy {
	return PRStrategy{cfg: cfg}
}

func (s PRStrategy) Plan(ev event.Event) (Target, *Outcome) {
	pr := ev.PullRequest
	if !s.cfg.IsDev() {
		if ev.Repo != s.cfg.SourceRepo {
			o := Skipped("unknown-repository")
			return Target{}, &o
		}
		// Forked-repo PRs could smuggle arbitrary branch names in.
		if pr.HeadRepo != s.cfg.SourceRepo || pr.BaseRepo != s.cfg.SourceRepo {
			o := Skipped("invalid-head-or-base-repo")
			return Target{}, &o
		}
		if pr.Merged {
			o := Skipped("already-merged")
			return Target{}, &o
		}
	}
	if !pr.Actionable {
		o := Skipped("not-actionable")
		return Target{}, &o
	}
	// Branch name collision with the deploy default branch is the source
	// repo's problem to avoid; no special-casing.
	return Target{
		Repo:         s.cfg.DeployRepo,
		Branch:       pr.Branch,
		SHA:          pr.HeadSHA,
		CreateBranch: true,
	}, nil
}
