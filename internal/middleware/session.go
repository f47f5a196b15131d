package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/notely/notely/internal/auth"
)

// Locals keys populated by RequireSession.
const (
	LocalUserID = "user_id"
	LocalEmail  = "email"
)

// RequireSession validates the bearer session token and exposes its subject
// to downstream handlers. Tokens are stateless; no store lookup happens here.
func RequireSession(issuer *auth.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := issuer.Verify(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(LocalUserID, claims.Subject)
		c.Locals(LocalEmail, claims.Email)
		return c.Next()
	}
}
