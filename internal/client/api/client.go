// Package api is the HTTP client for the notely server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/notely/notely/internal/logging"
)

// DefaultTimeout bounds every request so a hung save cannot stay "saving" forever.
const DefaultTimeout = 15 * time.Second

var (
	// ErrUnauthorized means the session is missing, expired or rejected.
	ErrUnauthorized = errors.New("session expired or missing")
	// ErrRequestFailed wraps every non-2xx answer other than 401.
	ErrRequestFailed = errors.New("request failed")
)

// Error is a non-2xx response. It matches ErrRequestFailed, or ErrUnauthorized for 401.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return e.Message
}

// Is lets errors.Is match the sentinel for the status class.
func (e *Error) Is(target error) bool {
	if e.Status == http.StatusUnauthorized {
		return target == ErrUnauthorized
	}
	return target == ErrRequestFailed
}

// Client talks to the server's /api routes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout overrides the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the server at baseURL, e.g. http://localhost:5000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// User is the public profile returned with a session.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session is a freshly issued token and its owner.
type Session struct {
	Message string `json:"message,omitempty"`
	Token   string `json:"token"`
	User    User   `json:"user"`
}

// OTPResponse is returned by the request-otp endpoints. OTP is only present
// when the server echoes codes.
type OTPResponse struct {
	Message string `json:"message"`
	OTP     string `json:"otp,omitempty"`
}

// Note mirrors the server's note representation.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SignupRequest starts an OTP signup.
type SignupRequest struct {
	Name  string `json:"name"`
	DOB   string `json:"dob,omitempty"`
	Email string `json:"email"`
}

// RequestSignupOTP asks the server to issue a signup code.
func (c *Client) RequestSignupOTP(ctx context.Context, req SignupRequest) (OTPResponse, error) {
	var out OTPResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/signup/request-otp", "", req, &out)
	return out, err
}

// VerifySignupOTP redeems a signup code for a session.
func (c *Client) VerifySignupOTP(ctx context.Context, email, code string) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/api/auth/signup/verify-otp", "", map[string]string{"email": email, "otp": code}, &out)
	return out, err
}

// RequestSigninOTP asks the server to issue a signin code.
func (c *Client) RequestSigninOTP(ctx context.Context, email string) (OTPResponse, error) {
	var out OTPResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/signin/request-otp", "", map[string]string{"email": email}, &out)
	return out, err
}

// VerifySigninOTP redeems a signin code for a session.
func (c *Client) VerifySigninOTP(ctx context.Context, email, code string) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/api/auth/signin/verify-otp", "", map[string]string{"email": email, "otp": code}, &out)
	return out, err
}

// ExchangeCode redeems a one-time code from the Google login redirect.
func (c *Client) ExchangeCode(ctx context.Context, code string) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/api/auth/google/exchange", "", map[string]string{"code": code}, &out)
	return out, err
}

// GoogleLoginURL is where a browser starts the Google login.
func (c *Client) GoogleLoginURL() string {
	return c.baseURL + "/api/auth/google/"
}

// ListNotes returns the caller's notes, newest first.
func (c *Client) ListNotes(ctx context.Context, token string) ([]Note, error) {
	var out []Note
	err := c.do(ctx, http.MethodGet, "/api/notes", token, nil, &out)
	return out, err
}

// CreateNote stores a new note.
func (c *Client) CreateNote(ctx context.Context, token, title, content string) (Note, error) {
	var out struct {
		Note Note `json:"note"`
	}
	err := c.do(ctx, http.MethodPost, "/api/notes", token, map[string]string{"title": title, "content": content}, &out)
	return out.Note, err
}

// UpdateNote replaces a note's title and content.
func (c *Client) UpdateNote(ctx context.Context, token string, n Note) (Note, error) {
	var out struct {
		Note Note `json:"note"`
	}
	err := c.do(ctx, http.MethodPut, "/api/notes/"+url.PathEscape(n.ID), token, map[string]string{"title": n.Title, "content": n.Content}, &out)
	return out.Note, err
}

// DeleteNote removes a note.
func (c *Client) DeleteNote(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(id), token, nil, nil)
}

// Summarize asks the server for a bullet-point summary.
func (c *Client) Summarize(ctx context.Context, token, text string) (string, error) {
	var out struct {
		Summary string `json:"summary"`
	}
	err := c.do(ctx, http.MethodPost, "/api/ai/summarize", token, map[string]string{"text": text}, &out)
	return out.Summary, err
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrRequestFailed, err)
	}
	c.logger.Debug("api call", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrRequestFailed, err)
	}
	return nil
}

// errorMessage pulls the message out of {"msg": ...} or {"error": ...} bodies.
func errorMessage(raw []byte) string {
	var body struct {
		Msg   string `json:"msg"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	if body.Msg != "" {
		return body.Msg
	}
	return body.Error
}
