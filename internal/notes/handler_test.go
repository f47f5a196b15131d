package notes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/notely/notely/internal/auth"
	"github.com/notely/notely/internal/identity"
	"github.com/notely/notely/internal/middleware"
)

func setupNotesApp(t *testing.T) *fiber.App {
	t.Helper()
	h := NewHandler(newService())
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, c.Get("X-Test-User"))
		return c.Next()
	})
	app.Get("/notes", h.List)
	app.Post("/notes", h.Create)
	app.Put("/notes/:id", h.Update)
	app.Delete("/notes/:id", h.Delete)
	return app
}

func call(t *testing.T, app *fiber.App, method, path, user, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Test-User", user)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

func TestNotesCRUD(t *testing.T) {
	app := setupNotesApp(t)

	status, raw := call(t, app, fiber.MethodPost, "/notes", "u1", `{"title":"New Note","content":"Write something here..."}`)
	if status != fiber.StatusCreated {
		t.Fatalf("create: expected 201 got %d (%s)", status, raw)
	}
	var created struct {
		Message string       `json:"message"`
		Note    noteResponse `json:"note"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Note.ID == "" || created.Note.Title != "New Note" {
		t.Fatalf("unexpected note %+v", created.Note)
	}

	status, raw = call(t, app, fiber.MethodPut, "/notes/"+created.Note.ID, "u1", `{"title":"T","content":"C"}`)
	if status != fiber.StatusOK || !strings.Contains(string(raw), `"title":"T"`) {
		t.Fatalf("update: %d %s", status, raw)
	}

	status, raw = call(t, app, fiber.MethodGet, "/notes", "u1", "")
	var list []noteResponse
	if err := json.Unmarshal(raw, &list); err != nil || status != fiber.StatusOK {
		t.Fatalf("list: %d %s", status, raw)
	}
	if len(list) != 1 || list[0].Content != "C" {
		t.Fatalf("unexpected list %+v", list)
	}

	status, _ = call(t, app, fiber.MethodGet, "/notes", "u2", "")
	if status != fiber.StatusOK {
		t.Fatalf("list for other user: %d", status)
	}

	status, _ = call(t, app, fiber.MethodDelete, "/notes/"+created.Note.ID, "u2", "")
	if status != fiber.StatusNotFound {
		t.Fatalf("foreign delete: expected 404 got %d", status)
	}
	status, _ = call(t, app, fiber.MethodDelete, "/notes/"+created.Note.ID, "u1", "")
	if status != fiber.StatusOK {
		t.Fatalf("delete: expected 200 got %d", status)
	}
}

func TestCreateWithoutBodyUsesDefaults(t *testing.T) {
	app := setupNotesApp(t)

	status, raw := call(t, app, fiber.MethodPost, "/notes", "u1", "")
	if status != fiber.StatusCreated || !strings.Contains(string(raw), DefaultContent) {
		t.Fatalf("unexpected response %d %s", status, raw)
	}
}

func TestHandlerOwnerComesFromSession(t *testing.T) {
	issuer, err := auth.NewIssuer("test-secret")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	ann, err := issuer.Issue(identity.Identity{ID: "ann-id", Email: "ann@x.com", Name: "Ann"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	bob, _ := issuer.Issue(identity.Identity{ID: "bob-id", Email: "bob@x.com", Name: "Bob"})

	h := NewHandler(newService())
	app := fiber.New()
	app.Use(middleware.RequireSession(issuer))
	app.Get("/notes", h.List)
	app.Post("/notes", h.Create)

	send := func(method, token string) (int, []byte) {
		req := httptest.NewRequest(method, "/notes", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, raw
	}

	if status, raw := send(fiber.MethodPost, ann.Token); status != fiber.StatusCreated {
		t.Fatalf("create: expected 201 got %d (%s)", status, raw)
	}
	var listed []noteResponse
	_, raw := send(fiber.MethodGet, ann.Token)
	if err := json.Unmarshal(raw, &listed); err != nil || len(listed) != 1 {
		t.Fatalf("owner should see the note: %s (%v)", raw, err)
	}
	listed = nil
	_, raw = send(fiber.MethodGet, bob.Token)
	if err := json.Unmarshal(raw, &listed); err != nil || len(listed) != 0 {
		t.Fatalf("another session must not see it: %s (%v)", raw, err)
	}
}
