package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"html2image/internal/http/response"
	"html2image/internal/infra/logging"
)

type RateLimitConfig struct {
	RateInterval           time.Duration
	EnableTokenRateLimiter bool
	EnableUserLimiter      bool
	UserLimit              int
}

// TokenRater returns the per-interval request budget of an API key.
type TokenRater interface {
	RateLimit(token string) int
}

// LimiterCache holds one limiter per distinct token limit.
type LimiterCache struct {
	mu       sync.RWMutex
	handlers map[int]fiber.Handler
}

func NewLimiterCache() *LimiterCache {
	return &LimiterCache{handlers: make(map[int]fiber.Handler)}
}

func (lc *LimiterCache) get(limit int, build func() fiber.Handler) fiber.Handler {
	lc.mu.RLock()
	h, ok := lc.handlers[limit]
	lc.mu.RUnlock()
	if ok {
		return h
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	if h, ok := lc.handlers[limit]; ok {
		return h
	}
	h = build()
	lc.handlers[limit] = h
	return h
}

func tooManyRequests(c *fiber.Ctx) error {
	return response.Error(c, fiber.StatusTooManyRequests, response.CodeRateLimited, "Too many requests", "")
}

func apiKey(c *fiber.Ctx) string {
	token, _ := c.Locals(apiKeyLocal).(string)
	return token
}

func clientKey(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get(fiber.HeaderUserAgent)))
	return hex.EncodeToString(sum[:])
}

// TokenRateLimit applies the sliding-window budget of the caller's API key.
// Requests without a key, or keys with limit 0, pass through.
func TokenRateLimit(cfg RateLimitConfig, rater TokenRater, store fiber.Storage, cache *LimiterCache) fiber.Handler {
	if !cfg.EnableTokenRateLimiter {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return func(c *fiber.Ctx) error {
		token := apiKey(c)
		if token == "" {
			return c.Next()
		}
		limit := rater.RateLimit(token)
		if limit <= 0 {
			return c.Next()
		}
		h := cache.get(limit, func() fiber.Handler {
			return limiter.New(limiter.Config{
				Max:               limit,
				Expiration:        cfg.RateInterval,
				LimiterMiddleware: limiter.SlidingWindow{},
				Storage:           store,
				KeyGenerator: func(c *fiber.Ctx) string {
					return "token:" + apiKey(c)
				},
				LimitReached: func(c *fiber.Ctx) error {
					logging.Warn("Rate limit exceeded", "mode", "token", "path", c.Path(), "request_id", response.RequestID(c))
					return tooManyRequests(c)
				},
			})
		})
		return h(c)
	}
}

// UserRateLimit limits anonymous clients keyed by IP and User-Agent.
// Authenticated requests are limited by TokenRateLimit instead.
func UserRateLimit(cfg RateLimitConfig, store fiber.Storage) fiber.Handler {
	if !cfg.EnableUserLimiter || cfg.UserLimit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	userLimiter := limiter.New(limiter.Config{
		Max:               cfg.UserLimit,
		Expiration:        cfg.RateInterval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "user:" + clientKey(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "mode", "user", "user", clientKey(c), "path", c.Path())
			return tooManyRequests(c)
		},
	})
	return func(c *fiber.Ctx) error {
		if apiKey(c) != "" {
			return c.Next()
		}
		return userLimiter(c)
	}
}
