// Package federated lets users sign in with Google and hands the resulting
// session to the browser, either through a one-time exchange code or directly
// in the redirect query string.
package federated

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/notely/notely/internal/auth"
	"github.com/notely/notely/internal/identity"
	"github.com/notely/notely/internal/logging"
	"github.com/notely/notely/internal/metrics"
	"github.com/notely/notely/internal/ticket"
)

// Handoff modes.
const (
	HandoffExchange = "exchange"
	HandoffQuery    = "query"
)

const (
	// GoogleUserInfoURL is the OpenID Connect userinfo endpoint.
	GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	stateTTL        = 10 * time.Minute
	handoffTTL      = 60 * time.Second
	providerTimeout = 15 * time.Second

	statePrefix   = "state:"
	handoffPrefix = "handoff:"
)

// ErrInvalidCode is returned when a handoff code is unknown, expired or spent.
var ErrInvalidCode = errors.New("invalid or expired code")

// Handoff is what the browser receives after a successful federated login.
type Handoff struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Options configures a Bridge.
type Options struct {
	OAuth        *oauth2.Config
	UserInfoURL  string
	DashboardURL string
	LoginURL     string
	Mode         string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Bridge runs the OAuth2 authorization-code flow and converts a provider
// profile into a local session equivalent to an OTP login.
type Bridge struct {
	oauth      *oauth2.Config
	userInfo   string
	dashboard  string
	login      string
	mode       string
	httpClient *http.Client
	identities *identity.Service
	issuer     *auth.Issuer
	tickets    ticket.Store
	logger     *slog.Logger
}

// GoogleOAuthConfig builds the OAuth client registration for Google.
func GoogleOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     endpoints.Google,
		Scopes:       []string{"openid", "profile", "email"},
	}
}

// NewBridge wires the flow to the identity store, the session issuer and the
// ticket store used for state and handoff codes.
func NewBridge(opts Options, identities *identity.Service, issuer *auth.Issuer, tickets ticket.Store) (*Bridge, error) {
	if opts.OAuth == nil {
		return nil, errors.New("oauth config is required")
	}
	if identities == nil || issuer == nil || tickets == nil {
		return nil, errors.New("identity service, issuer and ticket store are required")
	}
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	switch mode {
	case "":
		mode = HandoffExchange
	case HandoffExchange, HandoffQuery:
	default:
		return nil, fmt.Errorf("unknown handoff mode %q", opts.Mode)
	}
	b := &Bridge{
		oauth:      opts.OAuth,
		userInfo:   opts.UserInfoURL,
		dashboard:  opts.DashboardURL,
		login:      opts.LoginURL,
		mode:       mode,
		httpClient: opts.HTTPClient,
		identities: identities,
		issuer:     issuer,
		tickets:    tickets,
		logger:     opts.Logger,
	}
	if b.userInfo == "" {
		b.userInfo = GoogleUserInfoURL
	}
	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: providerTimeout}
	}
	if b.logger == nil {
		b.logger = logging.Discard()
	}
	return b, nil
}

// Begin redirects the browser to the provider's consent page. The state is
// stored one-time together with the PKCE verifier for the callback.
func (b *Bridge) Begin(c *fiber.Ctx) error {
	state, err := ticket.NewKey()
	if err != nil {
		return err
	}
	verifier := oauth2.GenerateVerifier()
	if err := b.tickets.Put(c.UserContext(), statePrefix+state, verifier, stateTTL); err != nil {
		return fmt.Errorf("store oauth state: %w", err)
	}
	target := b.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
	return c.Redirect(target, http.StatusFound)
}

// Callback completes the flow. Any failure sends the browser to the login page.
func (b *Bridge) Callback(c *fiber.Ctx) error {
	handoff, err := b.complete(c.UserContext(), c.Query("state"), c.Query("code"), c.Query("error"))
	if err != nil {
		b.logger.WarnContext(c.UserContext(), "federated login failed", slog.Any("error", err))
		return c.Redirect(b.login, http.StatusFound)
	}

	target, err := b.handoffURL(c.UserContext(), handoff)
	if err != nil {
		b.logger.ErrorContext(c.UserContext(), "federated handoff failed", slog.Any("error", err))
		return c.Redirect(b.login, http.StatusFound)
	}
	return c.Redirect(target, http.StatusFound)
}

type exchangeRequest struct {
	Code string `json:"code"`
}

type exchangeResponse struct {
	Token string            `json:"token"`
	User  auth.UserResponse `json:"user"`
}

// Exchange redeems a handoff code for the session it stands for.
func (b *Bridge) Exchange(c *fiber.Ctx) error {
	var req exchangeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	h, err := b.Redeem(c.UserContext(), req.Code)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return fiber.NewError(http.StatusBadRequest, ErrInvalidCode.Error())
		}
		return err
	}
	return c.JSON(exchangeResponse{Token: h.Token, User: auth.UserResponse{Name: h.Name, Email: h.Email}})
}

// Redeem takes a handoff code exactly once.
func (b *Bridge) Redeem(ctx context.Context, code string) (Handoff, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Handoff{}, ErrInvalidCode
	}
	raw, err := b.tickets.Take(ctx, handoffPrefix+code)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return Handoff{}, ErrInvalidCode
		}
		return Handoff{}, err
	}
	var h Handoff
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return Handoff{}, fmt.Errorf("decode handoff: %w", err)
	}
	return h, nil
}

func (b *Bridge) complete(ctx context.Context, state, code, providerErr string) (Handoff, error) {
	if providerErr != "" {
		return Handoff{}, fmt.Errorf("provider returned %q", providerErr)
	}
	if state == "" || code == "" {
		return Handoff{}, errors.New("missing state or code")
	}
	verifier, err := b.tickets.Take(ctx, statePrefix+state)
	if err != nil {
		return Handoff{}, fmt.Errorf("oauth state: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)

	tok, err := b.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Handoff{}, fmt.Errorf("exchange code: %w", err)
	}
	profile, err := b.fetchProfile(ctx, tok)
	if err != nil {
		return Handoff{}, err
	}

	id, err := b.identities.Upsert(ctx, identity.Profile{
		Name:     profile.Name,
		Email:    profile.Email,
		Provider: identity.ProviderGoogle,
	})
	if err != nil {
		return Handoff{}, fmt.Errorf("upsert identity: %w", err)
	}
	session, err := b.issuer.Issue(id)
	if err != nil {
		return Handoff{}, err
	}
	metrics.SessionIssued("google")
	b.logger.InfoContext(ctx, "federated login", "email", id.Email, "user_id", id.ID)

	return Handoff{Token: session.Token, Name: id.Name, Email: id.Email}, nil
}

func (b *Bridge) handoffURL(ctx context.Context, h Handoff) (string, error) {
	u, err := url.Parse(b.dashboard)
	if err != nil {
		return "", fmt.Errorf("parse dashboard url: %w", err)
	}
	q := u.Query()
	switch b.mode {
	case HandoffQuery:
		q.Set("token", h.Token)
		q.Set("name", h.Name)
		q.Set("email", h.Email)
	default:
		code, err := ticket.NewKey()
		if err != nil {
			return "", err
		}
		payload, err := json.Marshal(h)
		if err != nil {
			return "", err
		}
		if err := b.tickets.Put(ctx, handoffPrefix+code, string(payload), handoffTTL); err != nil {
			return "", fmt.Errorf("store handoff: %w", err)
		}
		q.Set("code", code)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type userInfo struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
}

func (b *Bridge) fetchProfile(ctx context.Context, tok *oauth2.Token) (userInfo, error) {
	client := b.oauth.Client(ctx, tok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.userInfo, nil)
	if err != nil {
		return userInfo{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return userInfo{}, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return userInfo{}, fmt.Errorf("fetch profile: status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return userInfo{}, fmt.Errorf("decode profile: %w", err)
	}
	if info.Email == "" {
		return userInfo{}, errors.New("profile has no email")
	}
	if info.EmailVerified != nil && !*info.EmailVerified {
		return userInfo{}, errors.New("email not verified by provider")
	}
	if info.Name == "" {
		info.Name = info.Email
	}
	return info, nil
}
