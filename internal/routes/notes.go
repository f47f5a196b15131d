package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/notely/notely/internal/notes"
)

// RegisterNoteRoutes wires note CRUD behind the session middleware.
func RegisterNoteRoutes(r fiber.Router, h *notes.Handler, session, idempotency fiber.Handler) {
	group := r.Group("/notes", session)
	group.Get("/", h.List)
	group.Post("/", idempotency, h.Create)
	group.Put("/:id", h.Update)
	group.Delete("/:id", h.Delete)
}
