// Package server builds the fiber application: middleware, routes and the
// JSON error handler.
package server

import (
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"html2image/internal/config"
	"html2image/internal/http/handlers"
	"html2image/internal/http/middleware"
	"html2image/internal/http/response"
	"html2image/internal/infra/logging"
	"html2image/internal/tokens"
)

// Deps are the collaborators the app is built from. Tokens and RateStore may be nil.
type Deps struct {
	Config    config.Config
	Converter handlers.Converter
	Stats     handlers.StatsSource
	Tokens    *tokens.Cache
	RateStore fiber.Storage
}

// New creates and configures a new Fiber app instance.
func New(d Deps) *fiber.App {
	cfg := d.Config
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             cfg.Server.BodyLimitMB << 20,
		ErrorHandler:          errorHandler,
	})

	middleware.Register(app, cfg, middleware.Deps{
		Tokens: d.Tokens,
		Store:  d.RateStore,
		Ready:  readiness(cfg, d.Tokens),
	})

	app.Post("/convert", handlers.Convert(d.Converter))
	app.Get("/ops/stats", handlers.Stats(d.Stats, int(cfg.Render.Timeout.Seconds())))
	app.Get("/ops/monitor", monitor.New(monitor.Config{Title: "html2image"}))

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}

	logging.Warn("Request failed",
		"path", c.Path(),
		"status", code,
		"message", msg,
		"request_id", response.RequestID(c),
	)

	return response.Error(c, code, response.CodeForStatus(code), msg, "")
}

// readiness reports whether the output root is usable and, when keys are
// mandatory, whether the token store has loaded.
func readiness(cfg config.Config, cache *tokens.Cache) func() bool {
	root := cfg.Output.Root
	needTokens := cfg.Auth.Enabled && cfg.Auth.Required && cache != nil
	return func() bool {
		st, err := os.Stat(root)
		if err != nil || !st.IsDir() {
			return false
		}
		return !needTokens || cache.Ready()
	}
}
