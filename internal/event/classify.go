package event

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrMalformedPayload marks payloads that carry the right event type header
// but are missing required fields. Maps to HTTP 400 upstream.
var ErrMalformedPayload = errors.New("malformed payload")

// Classifier turns a raw webhook delivery into an Event. Pure parsing; no
// side effects.
type Classifier struct {
	marker string
}

func NewClassifier(marker string) *Classifier {
	return &Classifier{marker: marker}
}

// Classify routes on the X-GitHub-Event header value. Unrecognized event
// types yield KindUnknown, never an error.
func (c *Classifier) Classify(eventType string, payload []byte) (Event, error) {
	switch eventType {
	case "push":
		return c.classifyPush(payload)
	case "pull_request":
		return c.classifyPullRequest(payload)
	default:
		return Event{Kind: KindUnknown}, nil
	}
}

type pushEnvelope struct {
	Ref        string         `json:"ref"`
	Repository *repoPayload   `json:"repository"`
	HeadCommit *commitPayload `json:"head_commit"`
}

type repoPayload struct {
	FullName string `json:"full_name"`
}

type commitPayload struct {
	ID     string        `json:"id"`
	Author authorPayload `json:"author"`
}

type authorPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type pullRequestEnvelope struct {
	Action      string       `json:"action"`
	Repository  *repoPayload `json:"repository"`
	PullRequest *struct {
		Head *struct {
			Ref  string       `json:"ref"`
			SHA  string       `json:"sha"`
			Repo *repoPayload `json:"repo"`
		} `json:"head"`
		Base *struct {
			Repo *repoPayload `json:"repo"`
		} `json:"base"`
		Body   string `json:"body"`
		Merged bool   `json:"merged"`
	} `json:"pull_request"`
}

func (c *Classifier) classifyPush(payload []byte) (Event, error) {
	var env pushEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, ErrMalformedPayload
	}
	if env.Ref == "" || env.HeadCommit == nil || env.HeadCommit.ID == "" {
		return Event{}, ErrMalformedPayload
	}

	ev := Event{
		Kind: KindPush,
		Push: &Push{
			Ref:     env.Ref,
			HeadSHA: env.HeadCommit.ID,
			Author:  extractAuthor(env.HeadCommit.Author),
		},
	}
	if env.Repository != nil {
		ev.Repo = strings.TrimSpace(env.Repository.FullName)
	}
	return ev, nil
}

func (c *Classifier) classifyPullRequest(payload []byte) (Event, error) {
	var env pullRequestEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, ErrMalformedPayload
	}
	pr := env.PullRequest
	if pr == nil || pr.Head == nil || pr.Head.Ref == "" || pr.Head.SHA == "" {
		return Event{}, ErrMalformedPayload
	}

	action := strings.TrimSpace(env.Action)
	actionable := (action == "opened" || action == "synchronize") &&
		strings.Contains(pr.Body, c.marker)

	out := &PullRequest{
		Action:     action,
		Branch:     pr.Head.Ref,
		HeadSHA:    pr.Head.SHA,
		Body:       pr.Body,
		Merged:     pr.Merged,
		Actionable: actionable,
	}
	if pr.Head.Repo != nil {
		out.HeadRepo = strings.TrimSpace(pr.Head.Repo.FullName)
	}
	if pr.Base != nil && pr.Base.Repo != nil {
		out.BaseRepo = strings.TrimSpace(pr.Base.Repo.FullName)
	}

	ev := Event{Kind: KindPullRequest, PullRequest: out}
	if env.Repository != nil {
		ev.Repo = strings.TrimSpace(env.Repository.FullName)
	}
	return ev, nil
}

// extractAuthor builds the commit attribution. Double quotes are stripped
// from names; they would break the quoting of --author downstream.
func extractAuthor(a authorPayload) Author {
	return Author{
		Name:  strings.TrimSpace(strings.ReplaceAll(a.Name, `"`, "")),
		Email: strings.TrimSpace(a.Email),
	}
}
