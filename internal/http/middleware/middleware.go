// Package middleware assembles the global fiber middleware stack.
package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	"github.com/rs/xid"

	"html2image/internal/config"
	"html2image/internal/http/response"
	"html2image/internal/infra/logging"
	"html2image/internal/tokens"
)

const (
	HealthPath = "/ops/health"
	ReadyPath  = "/ops/ready"
)

// Deps are the collaborators of the middleware stack. Zero values are valid:
// a nil Store means in-memory limits, nil Tokens disables API keys and a nil
// Ready probe always reports ready.
type Deps struct {
	Tokens *tokens.Cache
	Store  fiber.Storage
	Ready  func() bool
}

// Register attaches global middleware to the app.
func Register(app *fiber.App, cfg config.Config, deps Deps) {
	store := deps.Store
	if store == nil {
		store = memoryStorage.New()
	}

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(RequestLogger())

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  HealthPath,
		ReadinessEndpoint: ReadyPath,
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return deps.Ready == nil || deps.Ready()
		},
	}))

	if cfg.Auth.Enabled && deps.Tokens != nil {
		app.Use(APIKeyAuth(deps.Tokens, cfg.Auth.Required))
		app.Use(TokenRateLimit(RateLimitConfig{
			RateInterval:           cfg.RateLimiter.Interval,
			EnableTokenRateLimiter: true,
		}, deps.Tokens, store, NewLimiterCache()))
	}

	if cfg.RateLimiter.EnableUserLimiter || cfg.RateLimiter.UserLimit > 0 {
		app.Use(UserRateLimit(RateLimitConfig{
			RateInterval:      cfg.RateLimiter.Interval,
			EnableUserLimiter: true,
			UserLimit:         cfg.RateLimiter.UserLimit,
		}, store))
	}
}

// RequestLogger logs every request once it has been handled.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		logging.Info("Request handled",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", response.RequestID(c),
		)
		return err
	}
}
