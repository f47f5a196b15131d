package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/notely/notely/internal/identity"
	"github.com/notely/notely/internal/metrics"
	"github.com/notely/notely/internal/otp"
)

const (
	flowSignup = "signup"
	flowSignin = "signin"
)

// Handler exposes the OTP signup and signin endpoints.
type Handler struct {
	otps   *otp.Manager
	issuer *Issuer
	echo   bool
	logger *slog.Logger
}

// NewHandler builds the OTP HTTP handler. When echo is set the generated code
// is returned in the response body, standing in for a delivery channel.
func NewHandler(otps *otp.Manager, issuer *Issuer, echo bool, logger *slog.Logger) *Handler {
	return &Handler{otps: otps, issuer: issuer, echo: echo, logger: logger}
}

type signupRequest struct {
	Name  string `json:"name"`
	DOB   string `json:"dob"`
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type otpResponse struct {
	Message string `json:"message"`
	OTP     string `json:"otp,omitempty"`
}

// UserResponse is the public view of an identity.
type UserResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type sessionResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    UserResponse `json:"user"`
}

// SignupRequest issues or re-issues a code, creating the identity on first use.
func (h *Handler) SignupRequest(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	issued, err := h.otps.RequestSignup(c.UserContext(), req.Email, otp.Signup{Name: req.Name, DOB: req.DOB})
	if err != nil {
		switch {
		case errors.Is(err, otp.ErrValidation):
			if req.Name == "" || req.Email == "" {
				return fiber.NewError(http.StatusBadRequest, "Name and Email required")
			}
			return fiber.NewError(http.StatusBadRequest, "Invalid date of birth")
		default:
			return h.internal(c, "signup request", err)
		}
	}
	metrics.OTPIssued(flowSignup)
	return c.Status(http.StatusOK).JSON(h.otpResponse(issued))
}

// SignupVerify checks the code and returns a session token.
func (h *Handler) SignupVerify(c *fiber.Ctx) error {
	return h.verify(c, flowSignup, "Signup successful", "invalid OTP")
}

// SigninRequest issues a code for an existing identity.
func (h *Handler) SigninRequest(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	issued, err := h.otps.RequestSignin(c.UserContext(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, otp.ErrValidation):
			return fiber.NewError(http.StatusBadRequest, "Email required")
		case errors.Is(err, identity.ErrNotFound):
			return fiber.NewError(http.StatusBadRequest, "invalid account")
		default:
			return h.internal(c, "signin request", err)
		}
	}
	metrics.OTPIssued(flowSignin)
	return c.Status(http.StatusOK).JSON(h.otpResponse(issued))
}

// SigninVerify checks the code and returns a session token.
func (h *Handler) SigninVerify(c *fiber.Ctx) error {
	return h.verify(c, flowSignin, "Signin successful", "Invalid or expired OTP")
}

func (h *Handler) verify(c *fiber.Ctx, flow, okMessage, invalidMessage string) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	id, err := h.otps.Verify(c.UserContext(), req.Email, req.OTP)
	if err != nil {
		switch {
		case errors.Is(err, otp.ErrValidation), errors.Is(err, identity.ErrNotFound):
			metrics.OTPVerified(flow, "unknown_identity")
			return fiber.NewError(http.StatusBadRequest, "User not found")
		case errors.Is(err, otp.ErrInvalidOrExpired):
			metrics.OTPVerified(flow, "invalid")
			return fiber.NewError(http.StatusBadRequest, invalidMessage)
		default:
			return h.internal(c, flow+" verify", err)
		}
	}
	metrics.OTPVerified(flow, "ok")

	session, err := h.issuer.Issue(id)
	if err != nil {
		return h.internal(c, "issue session", err)
	}
	metrics.SessionIssued("otp")

	return c.Status(http.StatusOK).JSON(sessionResponse{
		Message: okMessage,
		Token:   session.Token,
		User:    UserResponse{Name: id.Name, Email: id.Email},
	})
}

func (h *Handler) otpResponse(issued otp.Issued) otpResponse {
	resp := otpResponse{Message: issued.Message}
	if h.echo {
		resp.OTP = issued.Code
	}
	return resp
}

func (h *Handler) internal(c *fiber.Ctx, op string, err error) error {
	if h.logger != nil {
		h.logger.ErrorContext(c.UserContext(), op+" failed", slog.Any("error", err))
	}
	return fiber.NewError(http.StatusInternalServerError, "internal error")
}
