package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mdtro/gitbot/internal/gitx"
)

const revertDeadline = 2 * time.Minute

// Reverter is the slice of gitx.Workspace the revert API drives.
type Reverter interface {
	Revert(ctx context.Context, sha, requester string) (gitx.RevertResult, error)
}

// RevertHandler lets deploy tooling back out a commit from either tracked
// repo without anyone touching a local checkout.
type RevertHandler struct {
	apiSecret string
	repos     map[string]Reverter
}

// NewRevertHandler keys workspaces by short repo name ("sentry",
// "getsentry").
func NewRevertHandler(apiSecret string, repos map[string]Reverter) *RevertHandler {
	return &RevertHandler{apiSecret: apiSecret, repos: repos}
}

type revertRequest struct {
	Repo string `json:"repo"`
	SHA  string `json:"sha"`
	// Who asked; lands in the revert commit as Co-authored-by.
	Name string `json:"name"`
}

func (h *RevertHandler) Revert() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if h.apiSecret == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "api_secret_not_configured",
			})
		}
		if !verifySignature(h.apiSecret, c.Body(), c.Get("X-Signature")) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid_signature",
			})
		}

		var req revertRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
		}
		ws, ok := h.repos[req.Repo]
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_repo"})
		}
		if req.SHA == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_sha"})
		}

		slog.Info("revert requested", "repo", req.Repo, "sha", req.SHA, "name", req.Name)

		ctx, cancel := context.WithTimeout(c.Context(), revertDeadline)
		defer cancel()

		res, err := ws.Revert(ctx, req.SHA, req.Name)
		if err != nil {
			slog.Error("revert failed", "repo", req.Repo, "sha", req.SHA, "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"reason": "Failed to revert.",
				"detail": err.Error(),
			})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"reason":     res.Reason,
			"revert_sha": res.RevertSHA,
		})
	}
}
