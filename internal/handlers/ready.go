package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mdtro/gitbot/internal/db"
)

// Ready reports whether dependencies are reachable. The DB is optional;
// when it is not configured readiness only reflects the process itself.
func Ready(d *db.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d == nil || d.Pool == nil {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"ok":    true,
				"audit": "disabled",
			})
		}

		ctx, cancel := context.WithTimeout(c.Context(), 1*time.Second)
		defer cancel()

		if err := d.Pool.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"ok":     false,
				"reason": "db_unreachable",
			})
		}

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"ok": true,
		})
	}
}
