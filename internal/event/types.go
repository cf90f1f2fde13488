package event

// Kind discriminates the webhook payloads gitbot understands.
type Kind string

const (
	KindPush        Kind = "push"
	KindPullRequest Kind = "pull_request"
	KindUnknown     Kind = "unknown"
)

// Event is the classified form of one webhook delivery. Exactly one of the
// payload pointers matching Kind is set.
type Event struct {
	Kind Kind
	// Repository the event was delivered for (owner/name).
	Repo string

	Push        *Push
	PullRequest *PullRequest
}

type Push struct {
	// Full ref, e.g. refs/heads/master.
	Ref     string
	HeadSHA string
	Author  Author
}

// Author identifies who made the head commit of a push. Informational only;
// it rides along into the bump commit's attribution.
type Author struct {
	Name  string
	Email string
}

// String renders the git "Name <email>" form, or "" when unknown.
func (a Author) String() string {
	if a.Name == "" || a.Email == "" {
		return ""
	}
	return a.Name + " <" + a.Email + ">"
}

type PullRequest struct {
	Action  string
	Branch  string // head ref of the PR
	HeadSHA string
	Body    string // PR description at delivery time

	HeadRepo string
	BaseRepo string
	Merged   bool

	// True when the action is opened/synchronize and the body carries the
	// sync marker. The sole gate for branch-mirrored syncs.
	Actionable bool
}
