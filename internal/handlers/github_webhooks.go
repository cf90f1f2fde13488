package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/mdtro/gitbot/internal/bus"
	"github.com/mdtro/gitbot/internal/config"
	"github.com/mdtro/gitbot/internal/event"
	"github.com/mdtro/gitbot/internal/events"
	"github.com/mdtro/gitbot/internal/ingest"
	"github.com/mdtro/gitbot/internal/syncer"
)

// syncDeadline bounds one webhook-triggered sync end to end. The underlying
// git operation is left to run to its own timeout; the caller just gets a
// timeout outcome and the per-branch lock is released when it finishes.
const syncDeadline = 2 * time.Minute

type GitHubWebhooksHandler struct {
	cfg           config.Config
	webhookSecret string
	classifier    *event.Classifier
	pushStrategy  syncer.PushStrategy
	prStrategy    syncer.PRStrategy
	syncer        syncer.Syncer
	bus           bus.Bus
	ing           *ingest.OutcomeIngestor
}

func NewGitHubWebhooksHandler(cfg config.Config, webhookSecret string, s syncer.Syncer, b bus.Bus, ing *ingest.OutcomeIngestor) *GitHubWebhooksHandler {
	return &GitHubWebhooksHandler{
		cfg:           cfg,
		webhookSecret: webhookSecret,
		classifier:    event.NewClassifier(cfg.Marker),
		pushStrategy:  syncer.NewPushStrategy(cfg),
		prStrategy:    syncer.NewPRStrategy(cfg),
		syncer:        s,
		bus:           b,
		ing:           ing,
	}
}

func (h *GitHubWebhooksHandler) Receive() fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := c.Body()
		delivery := strings.TrimSpace(c.Get("X-GitHub-Delivery"))
		if delivery == "" {
			delivery = uuid.NewString()
		}
		eventType := strings.TrimSpace(c.Get("X-GitHub-Event"))
		sig := strings.TrimSpace(c.Get("X-Hub-Signature-256"))

		if h.webhookSecret == "" {
			slog.Error("webhook secret not configured, rejecting delivery",
				"delivery_id", delivery, "event", eventType)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "webhook_secret_not_configured",
			})
		}
		if !verifySignature(h.webhookSecret, body, sig) {
			slog.Warn("webhook signature verification failed",
				"delivery_id", delivery, "event", eventType,
				"has_signature", sig != "", "body_size", len(body))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid_signature",
			})
		}

		ev, err := h.classifier.Classify(eventType, body)
		if err != nil {
			if errors.Is(err, event.ErrMalformedPayload) {
				slog.Warn("malformed webhook payload",
					"delivery_id", delivery, "event", eventType)
				out := syncer.Failed("classify", err)
				h.record(c.Context(), delivery, eventType, ev, out)
				return c.Status(fiber.StatusBadRequest).JSON(out)
			}
			slog.Error("classify failed", "delivery_id", delivery, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal_error",
			})
		}

		slog.Info("webhook received",
			"delivery_id", delivery, "event", eventType, "repo", ev.Repo)

		out := h.handle(c.Context(), ev)
		h.record(c.Context(), delivery, eventType, ev, out)

		// GitHub's UI flags anything non-2xx red; only a failed sync
		// deserves that.
		status := fiber.StatusOK
		if out.Kind == syncer.OutcomeFailed {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(out)
	}
}

func (h *GitHubWebhooksHandler) handle(ctx context.Context, ev event.Event) syncer.Outcome {
	var (
		target syncer.Target
		author string
		skip   *syncer.Outcome
	)
	switch ev.Kind {
	case event.KindPush:
		target, skip = h.pushStrategy.Plan(ev)
		author = ev.Push.Author.String()
	case event.KindPullRequest:
		target, skip = h.prStrategy.Plan(ev)
	default:
		return syncer.Skipped("unsupported-event")
	}
	if skip != nil {
		return *skip
	}

	ctx, cancel := context.WithTimeout(ctx, syncDeadline)
	defer cancel()
	return h.syncer.Sync(ctx, target, author)
}

// record reports the outcome for auditing: over NATS when configured so the
// request path stays light, inline otherwise. Best-effort either way.
func (h *GitHubWebhooksHandler) record(ctx context.Context, delivery, eventType string, ev event.Event, out syncer.Outcome) {
	rec := events.SyncOutcomeRecorded{
		DeliveryID:   delivery,
		Event:        eventType,
		RepoFullName: ev.Repo,
		Branch:       out.Branch,
		SHA:          out.SHA,
		Outcome:      string(out.Kind),
		Reason:       out.Reason,
		Stage:        out.Stage,
		Error:        out.Err,
		NoOp:         out.NoOp,
		DryRun:       h.cfg.DryRun,
		RecordedAt:   time.Now().UTC(),
	}
	if ev.PullRequest != nil {
		rec.Action = ev.PullRequest.Action
	}

	if h.bus != nil {
		b, err := json.Marshal(rec)
		if err == nil {
			if err := h.bus.Publish(ctx, events.SubjectSyncOutcomeRecorded, b); err == nil {
				return
			}
			slog.Error("outcome publish failed", "delivery_id", delivery, "error", err)
		}
	}
	if h.ing != nil {
		if err := h.ing.Ingest(ctx, rec); err != nil {
			slog.Error("outcome ingest failed", "delivery_id", delivery, "error", err)
		}
	}
}
