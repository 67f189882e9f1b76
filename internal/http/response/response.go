// Package response writes the JSON error envelope shared by every route.
package response

import (
	"github.com/gofiber/fiber/v2"
)

// ErrorBody is the payload of every failed request.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// Transport level codes. Conversion failures use domain.Kind values instead.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// CodeForStatus maps an HTTP status to its transport code.
func CodeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return CodeBadRequest
	case fiber.StatusUnauthorized:
		return CodeUnauthorized
	case fiber.StatusForbidden:
		return CodeForbidden
	case fiber.StatusNotFound:
		return CodeNotFound
	case fiber.StatusMethodNotAllowed:
		return CodeMethodNotAllowed
	case fiber.StatusRequestEntityTooLarge:
		return CodePayloadTooLarge
	case fiber.StatusTooManyRequests:
		return CodeRateLimited
	case fiber.StatusServiceUnavailable:
		return CodeServiceUnavailable
	default:
		return CodeInternal
	}
}

// Error sends status with the envelope.
func Error(c *fiber.Ctx, status int, code, message, details string) error {
	return c.Status(status).JSON(ErrorBody{Error: message, Code: code, Details: details})
}

// RequestID returns the id assigned by the requestid middleware, falling
// back to the request and response headers.
func RequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		return id
	}
	if id := c.Get(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}
