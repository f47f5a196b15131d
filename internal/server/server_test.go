package server

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/notely/notely/internal/config"
	"github.com/notely/notely/internal/logging"
)

func TestNewServesJSONErrors(t *testing.T) {
	cfg := config.Config{AppName: "notely-test", AppEnv: "test", JWTSecret: "s", OTPEcho: true, SessionTTL: time.Hour, OTPTTL: 5 * time.Minute}
	srv, err := New(cfg, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer srv.Shutdown(context.Background()) //nolint:errcheck

	req := httptest.NewRequest(fiber.MethodPost, "/api/auth/signin/request-otp", strings.NewReader(`{"email":"ghost@x.com"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusBadRequest || string(body) != `{"msg":"invalid account"}` {
		t.Fatalf("unexpected %d %s", resp.StatusCode, body)
	}
}

func TestNewFailsWithoutSecret(t *testing.T) {
	cfg := config.Config{AppEnv: "test"}
	if _, err := New(cfg, nil, nil, logging.Discard()); err == nil {
		t.Fatalf("expected error without JWT secret")
	}
}
