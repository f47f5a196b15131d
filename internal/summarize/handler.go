package summarize

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler serves POST /ai/summarize. Errors use the {"error": ...} shape
// the note editor expects from this endpoint.
type Handler struct {
	summarizer Summarizer
	logger     *slog.Logger
}

// NewHandler builds the handler. A nil summarizer answers 503.
func NewHandler(s Summarizer, logger *slog.Logger) *Handler {
	return &Handler{summarizer: s, logger: logger}
}

type request struct {
	Text string `json:"text"`
}

// Summarize condenses the posted text.
func (h *Handler) Summarize(c *fiber.Ctx) error {
	if h.summarizer == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "summarizer not configured"})
	}
	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": ErrEmptyText.Error()})
	}

	summary, err := h.summarizer.Summarize(c.UserContext(), req.Text)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"summary": summary})
	case errors.Is(err, ErrEmptyText):
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": ErrEmptyText.Error()})
	case errors.Is(err, ErrQuota):
		h.logger.WarnContext(c.UserContext(), "summarizer quota exceeded", slog.Any("error", err))
		return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{"error": "OpenAI quota exceeded. Please check your plan."})
	default:
		h.logger.ErrorContext(c.UserContext(), "summarize failed", slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to summarize note"})
	}
}
