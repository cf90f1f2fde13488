package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/mdtro/gitbot/internal/events"
	"github.com/mdtro/gitbot/internal/ingest"
)

// SyncOutcomeConsumer drains outcome events off NATS into the audit tables.
type SyncOutcomeConsumer struct {
	Sub    *nats.Subscription
	Ingest *ingest.OutcomeIngestor
}

func (c *SyncOutcomeConsumer) Subscribe(ctx context.Context, nc *nats.Conn, queue string) error {
	if nc == nil {
		return nil
	}
	if queue == "" {
		queue = "gitbot-workers"
	}

	sub, err := nc.QueueSubscribe(events.SubjectSyncOutcomeRecorded, queue, func(msg *nats.Msg) {
		var e events.SyncOutcomeRecorded
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			slog.Error("bad sync outcome event", "error", err)
			return
		}
		if c.Ingest != nil {
			if err := c.Ingest.Ingest(context.Background(), e); err != nil {
				slog.Error("outcome ingest failed", "delivery_id", e.DeliveryID, "error", err)
			}
		}
	})
	if err != nil {
		return err
	}
	c.Sub = sub

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return nil
}
