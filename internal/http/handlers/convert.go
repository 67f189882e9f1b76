package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"html2image/internal/convert"
	"html2image/internal/domain"
	"html2image/internal/http/response"
	"html2image/internal/infra/logging"
)

// Converter turns a request into a stored image.
type Converter interface {
	Convert(ctx context.Context, req domain.ConversionRequest) (domain.ConversionResult, error)
}

const invalidBodyMessage = "Request body must be a JSON object with string fields html, destPath, filename"

// Convert handles POST /convert.
func Convert(svc Converter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := response.RequestID(c)

		var req domain.ConversionRequest
		// An empty body is treated like {} so it fails with missing fields.
		if body := c.Body(); len(body) > 0 {
			if err := c.App().Config().JSONDecoder(body, &req); err != nil {
				logging.Warn("Invalid request body", "request_id", rid, "error", err)
				return response.Error(c, fiber.StatusBadRequest, string(domain.KindInvalidBody), invalidBodyMessage, "")
			}
		}

		ctx := convert.WithRequestID(c.UserContext(), rid)
		res, err := svc.Convert(ctx, req)
		if err != nil {
			return writeConversionError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(res)
	}
}

func writeConversionError(c *fiber.Ctx, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.ConversionError(err)
	}
	status := de.Kind.Status()
	details := ""
	if status >= fiber.StatusInternalServerError {
		details = de.Details()
	}
	return response.Error(c, status, string(de.Kind), de.Message, details)
}
