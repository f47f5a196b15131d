package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/notely/notely/internal/summarize"
)

// RegisterAIRoutes wires note summarization.
func RegisterAIRoutes(r fiber.Router, h *summarize.Handler, session fiber.Handler) {
	r.Post("/ai/summarize", session, h.Summarize)
}
