package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/notely/notely/internal/auth"
)

// RegisterAuthRoutes wires the OTP signup and signin endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	post := func(path string, handler fiber.Handler) {
		if rateLimiter != nil {
			group.Post(path, rateLimiter, handler)
			return
		}
		group.Post(path, handler)
	}
	post("/signup/request-otp", h.SignupRequest)
	post("/signup/verify-otp", h.SignupVerify)
	post("/signin/request-otp", h.SigninRequest)
	post("/signin/verify-otp", h.SigninVerify)
}
