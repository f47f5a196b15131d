package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/notely/notely/internal/logging"
)

func TestErrorHandlerShapes(t *testing.T) {
	var logs bytes.Buffer
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.NewText(&logs, "debug"))})
	app.Use(RequestID())
	app.Use(Audit(logging.NewText(&logs, "debug")))
	app.Get("/bad", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusBadRequest, "Email required") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db exploded") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/bad", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusBadRequest || string(body) != `{"msg":"Email required"}` {
		t.Fatalf("unexpected %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusInternalServerError || strings.Contains(string(body), "exploded") {
		t.Fatalf("internal details must not leak: %d %s", resp.StatusCode, body)
	}
	if !strings.Contains(logs.String(), "db exploded") || !strings.Contains(logs.String(), "request completed") {
		t.Fatalf("expected error and audit lines in logs, got %s", logs.String())
	}
}
