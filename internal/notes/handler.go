package notes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/notely/notely/internal/middleware"
)

// Handler exposes note HTTP endpoints. Routes must sit behind the session
// middleware, which stores the subject under the "user_id" local.
type Handler struct {
	service *Service
}

// NewHandler builds a note HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type noteResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toResponse(n Note) noteResponse {
	return noteResponse{ID: n.ID, Title: n.Title, Content: n.Content, CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt}
}

// List returns the caller's notes.
func (h *Handler) List(c *fiber.Ctx) error {
	list, err := h.service.List(c.UserContext(), owner(c))
	if err != nil {
		return mapError(err)
	}
	out := make([]noteResponse, 0, len(list))
	for _, n := range list {
		out = append(out, toResponse(n))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Create stores a new note.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req noteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	n, err := h.service.Create(c.UserContext(), owner(c), Input(req))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"message": "Note created", "note": toResponse(n)})
}

// Update replaces a note's title and content.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req noteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	n, err := h.service.Update(c.UserContext(), owner(c), c.Params("id"), Input(req))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "Note updated", "note": toResponse(n)})
}

// Delete removes a note.
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), owner(c), c.Params("id")); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "Note deleted"})
}

func owner(c *fiber.Ctx) string {
	uid, _ := c.Locals(middleware.LocalUserID).(string)
	return uid
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "Note not found")
	case errors.Is(err, ErrInvalid):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
