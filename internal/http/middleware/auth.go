package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	"html2image/internal/http/response"
	"html2image/internal/infra/logging"
	"html2image/internal/tokens"
)

const (
	apiKeyHeader = "X-API-Key"
	apiKeyLocal  = "api_key"
)

// TokenValidator checks an API key for a scope.
type TokenValidator interface {
	Validate(token, scope string) error
}

// APIKeyAuth validates X-API-Key against the token cache. Keyless requests
// pass unless required is set; /ops routes are never authenticated.
func APIKeyAuth(validator TokenValidator, required bool) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + apiKeyHeader,
		ContextKey: apiKeyLocal,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if err := validator.Validate(key, tokens.ScopeConvert); err != nil {
				return false, err
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			if c.Method() == fiber.MethodOptions || strings.HasPrefix(c.Path(), "/ops") {
				return true
			}
			return !required && c.Get(apiKeyHeader) == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Keyauth can call ErrorHandler with a nil error.
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			status := fiber.StatusUnauthorized
			switch {
			case errors.Is(err, tokens.ErrTokenStoreNotReady):
				status = fiber.StatusServiceUnavailable
			case errors.Is(err, tokens.ErrScopeDenied):
				status = fiber.StatusForbidden
			}
			logging.Warn("API key rejected", "status", status, "error", err, "path", c.Path(), "request_id", response.RequestID(c))
			return response.Error(c, status, response.CodeForStatus(status), err.Error(), "")
		},
	})
}
