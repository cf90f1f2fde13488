package ingest

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mdtro/gitbot/internal/events"
)

// OutcomeIngestor persists webhook deliveries and their sync outcomes for
// operator forensics. Every write is idempotent on the delivery id so
// redelivered webhooks and the NATS/inline double path cannot duplicate
// rows.
type OutcomeIngestor struct {
	Pool *pgxpool.Pool
}

func (i *OutcomeIngestor) Ingest(ctx context.Context, e events.SyncOutcomeRecorded) error {
	if i == nil || i.Pool == nil {
		return nil
	}
	if e.DeliveryID == "" {
		return nil
	}

	_, err := i.Pool.Exec(ctx, `
INSERT INTO webhook_deliveries (delivery_id, event, action, repo_full_name, received_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
ON CONFLICT (delivery_id) DO NOTHING
`, e.DeliveryID, e.Event, e.Action, e.RepoFullName, e.RecordedAt)
	if err != nil {
		return err
	}

	_, err = i.Pool.Exec(ctx, `
INSERT INTO sync_outcomes (delivery_id, branch, sha, outcome, reason, stage, error, no_op, dry_run, recorded_at)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10)
ON CONFLICT (delivery_id) DO UPDATE SET
  outcome = EXCLUDED.outcome,
  reason = EXCLUDED.reason,
  stage = EXCLUDED.stage,
  error = EXCLUDED.error,
  no_op = EXCLUDED.no_op,
  recorded_at = EXCLUDED.recorded_at
`, e.DeliveryID, e.Branch, e.SHA, e.Outcome, e.Reason, e.Stage, e.Error, e.NoOp, e.DryRun, e.RecordedAt)
	return err
}
