package handlers

import (
	"github.com/gofiber/fiber/v2"

	"html2image/internal/infra/chrome"
)

// StatsSource exposes browser pool usage.
type StatsSource interface {
	Stats() chrome.Stats
	EngineName() string
}

// Stats handles GET /ops/stats.
func Stats(src StatsSource, timeoutSecs int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := src.Stats()
		return c.JSON(fiber.Map{
			"engine":       src.EngineName(),
			"enabled":      s.Enabled,
			"capacity":     s.Capacity,
			"idle":         s.Idle,
			"in_use":       s.InUse,
			"served":       s.Served,
			"failed":       s.Failed,
			"timeout_secs": timeoutSecs,
		})
	}
}
