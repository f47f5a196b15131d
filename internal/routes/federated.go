package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/notely/notely/internal/federated"
)

// RegisterFederatedRoutes wires Google login. Without a bridge the endpoints
// answer 404 so clients can tell the feature is off.
func RegisterFederatedRoutes(r fiber.Router, b *federated.Bridge) {
	group := r.Group("/auth/google")
	if b == nil {
		group.All("/*", func(c *fiber.Ctx) error {
			return fiber.NewError(http.StatusNotFound, "google login is not configured")
		})
		return
	}
	group.Get("/", b.Begin)
	group.Get("/callback", b.Callback)
	group.Post("/exchange", b.Exchange)
}
