package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders handler errors as {"msg": ...}. Anything that is not a
// *fiber.Error is logged and reported as a 500 without leaking details.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"msg": fe.Message})
		}
		if logger != nil {
			logger.ErrorContext(c.UserContext(), "unhandled error",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Any("error", err),
			)
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"msg": "internal error"})
	}
}
