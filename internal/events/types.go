package events

import "time"

const (
	SubjectSyncOutcomeRecorded = "gitbot.sync.outcome"
)

// SyncOutcomeRecorded is published after every handled webhook delivery so
// the audit worker can persist it. Best-effort; losing one never fails the
// sync it describes.
type SyncOutcomeRecorded struct {
	DeliveryID   string    `json:"delivery_id"`
	Event        string    `json:"event"`
	Action       string    `json:"action,omitempty"`
	RepoFullName string    `json:"repo_full_name,omitempty"`
	Branch       string    `json:"branch,omitempty"`
	SHA          string    `json:"sha,omitempty"`
	Outcome      string    `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	Stage        string    `json:"stage,omitempty"`
	Error        string    `json:"error,omitempty"`
	NoOp         bool      `json:"no_op,omitempty"`
	DryRun       bool      `json:"dry_run,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}
