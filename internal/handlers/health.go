package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mdtro/gitbot/internal/config"
)

func Health(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"ok":      true,
			"env":     cfg.Env,
			"dry_run": cfg.DryRun,
		})
	}
}
