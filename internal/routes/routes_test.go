package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/notely/notely/internal/config"
	"github.com/notely/notely/internal/logging"
	"github.com/notely/notely/internal/metrics"
	"github.com/notely/notely/internal/middleware"
)

type echoSummarizer struct{}

func (echoSummarizer) Summarize(_ context.Context, text string) (string, error) {
	return "- " + text, nil
}

func testConfig() config.Config {
	return config.Config{
		AppName:        "notely-test",
		AppEnv:         "test",
		JWTSecret:      "test-secret",
		SessionTTL:     time.Hour,
		OTPTTL:         5 * time.Minute,
		OTPEcho:        true,
		OTPRateLimit:   50,
		IdempotencyTTL: time.Minute,
		HandoffMode:    config.HandoffExchange,
	}
}

func setupApp(t *testing.T, withRedis bool) *fiber.App {
	t.Helper()
	metrics.Init()
	logger := logging.Discard()
	deps := Deps{Cfg: testConfig(), Logger: logger, Summarizer: echoSummarizer{}}
	if withRedis {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("start miniredis: %v", err)
		}
		cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() {
			cache.Close()
			mr.Close()
		})
		deps.Cache = cache
	}
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logger)})
	if err := Setup(app, deps); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

func signup(t *testing.T, app *fiber.App, name, email string) string {
	t.Helper()
	status, raw := doJSON(t, app, fiber.MethodPost, "/api/auth/signup/request-otp", "", `{"name":"`+name+`","email":"`+email+`"}`)
	if status != http.StatusOK {
		t.Fatalf("request otp: %d %s", status, raw)
	}
	var issued struct {
		OTP string `json:"otp"`
	}
	_ = json.Unmarshal(raw, &issued)

	status, raw = doJSON(t, app, fiber.MethodPost, "/api/auth/signup/verify-otp", "", `{"email":"`+email+`","otp":"`+issued.OTP+`"}`)
	if status != http.StatusOK {
		t.Fatalf("verify otp: %d %s", status, raw)
	}
	var session struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(raw, &session)
	return session.Token
}

func TestSignupThenNotes(t *testing.T) {
	for _, withRedis := range []bool{false, true} {
		app := setupApp(t, withRedis)
		token := signup(t, app, "Ann", "ann@x.com")

		status, raw := doJSON(t, app, fiber.MethodGet, "/api/notes", "", "")
		if status != http.StatusUnauthorized || !strings.Contains(string(raw), `"msg"`) {
			t.Fatalf("expected 401 without session, got %d %s", status, raw)
		}

		status, raw = doJSON(t, app, fiber.MethodPost, "/api/notes", token, `{"title":"New Note","content":"Write something here..."}`)
		if status != http.StatusCreated {
			t.Fatalf("create: %d %s", status, raw)
		}
		var created struct {
			Note struct {
				ID string `json:"id"`
			} `json:"note"`
		}
		_ = json.Unmarshal(raw, &created)

		status, raw = doJSON(t, app, fiber.MethodPut, "/api/notes/"+created.Note.ID, token, `{"title":"T","content":"C"}`)
		if status != http.StatusOK {
			t.Fatalf("update: %d %s", status, raw)
		}

		other := signup(t, app, "Bob", "bob@x.com")
		status, raw = doJSON(t, app, fiber.MethodGet, "/api/notes", other, "")
		if status != http.StatusOK || strings.TrimSpace(string(raw)) != "[]" {
			t.Fatalf("other user must see no notes, got %d %s", status, raw)
		}

		status, _ = doJSON(t, app, fiber.MethodDelete, "/api/notes/"+created.Note.ID, token, "")
		if status != http.StatusOK {
			t.Fatalf("delete: %d", status)
		}
	}
}

func TestSummarizeRequiresSession(t *testing.T) {
	app := setupApp(t, false)

	status, _ := doJSON(t, app, fiber.MethodPost, "/api/ai/summarize", "", `{"text":"hi"}`)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}

	token := signup(t, app, "Ann", "ann@x.com")
	status, raw := doJSON(t, app, fiber.MethodPost, "/api/ai/summarize", token, `{"text":"hi"}`)
	if status != http.StatusOK || !strings.Contains(string(raw), `"summary":"- hi"`) {
		t.Fatalf("unexpected %d %s", status, raw)
	}
}

func TestGoogleRoutesDisabledWithoutConfig(t *testing.T) {
	app := setupApp(t, false)
	status, _ := doJSON(t, app, fiber.MethodGet, "/api/auth/google/", "", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app := setupApp(t, true)

	status, raw := doJSON(t, app, fiber.MethodGet, "/healthz", "", "")
	if status != http.StatusOK || !strings.Contains(string(raw), `"redis":"ok"`) || !strings.Contains(string(raw), `"postgres":"disabled"`) {
		t.Fatalf("unexpected health %d %s", status, raw)
	}

	signup(t, app, "Ann", "ann@x.com")
	status, raw = doJSON(t, app, fiber.MethodGet, "/metrics", "", "")
	if status != http.StatusOK || !strings.Contains(string(raw), "otp_verifications_total") {
		t.Fatalf("expected otp metrics in exposition, got %d", status)
	}
}

func TestSetupRequiresStoresOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	err := Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard()})
	if err == nil {
		t.Fatalf("expected error without database in production")
	}
}
