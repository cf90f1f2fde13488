package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mdtro/gitbot/internal/db"
)

type DeliveriesHandler struct {
	db *db.DB
}

func NewDeliveriesHandler(d *db.DB) *DeliveriesHandler {
	return &DeliveriesHandler{db: d}
}

// List returns the most recent webhook deliveries with their sync outcomes.
// Operator-facing; sits behind RequireAuth.
func (h *DeliveriesHandler) List() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if h.db == nil || h.db.Pool == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "db_not_configured"})
		}

		rows, err := h.db.Pool.Query(c.Context(), `
SELECT d.delivery_id, d.event, d.action, d.repo_full_name, d.received_at,
       o.branch, o.sha, o.outcome, o.reason, o.stage, o.error, o.no_op, o.dry_run
FROM webhook_deliveries d
LEFT JOIN sync_outcomes o ON o.delivery_id = d.delivery_id
ORDER BY d.received_at DESC
LIMIT 50
`)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "deliveries_list_failed"})
		}
		defer rows.Close()

		var out []fiber.Map
		for rows.Next() {
			var deliveryID, eventType string
			var action, repo, branch, sha, outcome, reason, stage, errMsg *string
			var receivedAt time.Time
			var noOp, dryRun *bool
			if err := rows.Scan(&deliveryID, &eventType, &action, &repo, &receivedAt,
				&branch, &sha, &outcome, &reason, &stage, &errMsg, &noOp, &dryRun); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "deliveries_list_failed"})
			}
			out = append(out, fiber.Map{
				"delivery_id": deliveryID,
				"event":       eventType,
				"action":      action,
				"repo":        repo,
				"received_at": receivedAt,
				"branch":      branch,
				"sha":         sha,
				"outcome":     outcome,
				"reason":      reason,
				"stage":       stage,
				"error":       errMsg,
				"no_op":       noOp,
				"dry_run":     dryRun,
			})
		}

		return c.Status(fiber.StatusOK).JSON(fiber.Map{"deliveries": out})
	}
}
