// Package otp issues and verifies short-lived numeric passcodes stored on the
// identity record. Each identity moves through NoChallenge -> Pending ->
// NoChallenge: a request always replaces the pending code, a successful
// verify clears it, a failed verify changes nothing.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/notely/notely/internal/identity"
	"github.com/notely/notely/internal/logging"
	"github.com/notely/notely/internal/notification"
)

const (
	// DefaultTTL is how long a code stays valid after issuance.
	DefaultTTL = 5 * time.Minute

	codeMin   = 100000
	codeMax   = 999999
	dobFormat = "2006-01-02"

	msgSent   = "OTP sent to email"
	msgResent = "OTP resent to email"
)

var (
	// ErrValidation marks requests rejected before any state mutation.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidOrExpired covers a missing, mismatched or expired challenge.
	ErrInvalidOrExpired = errors.New("invalid or expired OTP")
)

// Signup carries the profile fields required to create an identity.
type Signup struct {
	Name string
	DOB  string
}

// Issued is the outcome of a successful challenge request.
type Issued struct {
	Code      string
	Message   string
	ExpiresAt time.Time
	Created   bool
}

// Manager creates, resends and verifies OTP challenges.
type Manager struct {
	repo     identity.Repository
	notifier notification.Notifier
	logger   *slog.Logger
	ttl      time.Duration
	hashCost int
	now      func() time.Time
	generate func() (string, error)
}

// Option configures Manager behaviour.
type Option func(*Manager)

// WithTTL overrides the challenge lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithGenerator overrides code generation (useful for tests).
func WithGenerator(fn func() (string, error)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.generate = fn
		}
	}
}

// WithHashCost sets the bcrypt cost used to store codes.
func WithHashCost(cost int) Option {
	return func(m *Manager) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			m.hashCost = cost
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager builds a Manager. A nil notifier disables delivery, leaving the
// returned code as the only channel.
func NewManager(repo identity.Repository, notifier notification.Notifier, opts ...Option) *Manager {
	m := &Manager{
		repo:     repo,
		notifier: notifier,
		logger:   logging.Discard(),
		ttl:      DefaultTTL,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
		generate: GenerateCode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateCode returns a uniformly random 6-digit code in [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

// RequestSignup issues a challenge, creating the identity on first use.
func (m *Manager) RequestSignup(ctx context.Context, email string, profile Signup) (Issued, error) {
	return m.Request(ctx, email, &profile)
}

// RequestSignin issues a challenge for an existing identity.
func (m *Manager) RequestSignin(ctx context.Context, email string) (Issued, error) {
	return m.Request(ctx, email, nil)
}

// Request looks the identity up by email and stores a fresh challenge on it,
// overwriting any previous one. Without a profile an unknown email fails with
// identity.ErrNotFound and nothing is created.
func (m *Manager) Request(ctx context.Context, email string, profile *Signup) (Issued, error) {
	email = identity.NormalizeEmail(email)
	if err := validate(email, profile); err != nil {
		return Issued{}, err
	}

	code, err := m.generate()
	if err != nil {
		return Issued{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), m.hashCost)
	if err != nil {
		return Issued{}, fmt.Errorf("hash otp: %w", err)
	}
	expiresAt := m.now().Add(m.ttl).UTC()

	set := func(rec *identity.Identity) error {
		rec.OTPHash = string(hash)
		rec.OTPExpiresAt = expiresAt
		return nil
	}

	issued := Issued{Code: code, ExpiresAt: expiresAt, Message: msgSent}

	_, err = m.repo.Update(ctx, email, set)
	switch {
	case err == nil:
		if profile != nil {
			issued.Message = msgResent
		}
	case errors.Is(err, identity.ErrNotFound) && profile != nil:
		created := identity.New(identity.Profile{Name: profile.Name, Email: email, DOB: profile.DOB, Provider: identity.ProviderOTP}, m.now())
		_ = set(&created)
		if err := m.repo.Create(ctx, created); err != nil {
			if !errors.Is(err, identity.ErrExists) {
				return Issued{}, err
			}
			if _, err := m.repo.Update(ctx, email, set); err != nil {
				return Issued{}, err
			}
			issued.Message = msgResent
		} else {
			issued.Created = true
		}
	default:
		return Issued{}, err
	}

	if err := m.deliver(ctx, email, code); err != nil {
		return Issued{}, err
	}

	m.logger.InfoContext(ctx, "otp issued", "email", email, "created", issued.Created, "expires_at", expiresAt)
	return issued, nil
}

// Verify checks the submitted code against the pending challenge and clears
// it on success. Check and clear happen inside one repository update so a
// code cannot be spent twice.
func (m *Manager) Verify(ctx context.Context, email, code string) (identity.Identity, error) {
	email = identity.NormalizeEmail(email)
	if email == "" {
		return identity.Identity{}, fmt.Errorf("%w: email required", ErrValidation)
	}

	id, err := m.repo.Update(ctx, email, func(rec *identity.Identity) error {
		if !rec.HasChallenge() || m.now().After(rec.OTPExpiresAt) {
			return ErrInvalidOrExpired
		}
		if len(code) != 6 || bcrypt.CompareHashAndPassword([]byte(rec.OTPHash), []byte(code)) != nil {
			return ErrInvalidOrExpired
		}
		rec.ClearChallenge()
		return nil
	})
	if err != nil {
		m.logger.InfoContext(ctx, "otp verification failed", "email", email, "error", err)
		return identity.Identity{}, err
	}

	m.logger.InfoContext(ctx, "otp verified", "email", email, "user_id", id.ID)
	return id, nil
}

func (m *Manager) deliver(ctx context.Context, email, code string) error {
	if m.notifier == nil {
		return nil
	}
	err := m.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindOTP,
		Destination: email,
		Subject:     "Your sign-in code",
		Body:        fmt.Sprintf("Your code is %s. It expires in %s.", code, m.ttl),
	})
	if err != nil {
		return fmt.Errorf("deliver otp: %w", err)
	}
	return nil
}

func validate(email string, profile *Signup) error {
	if profile == nil {
		if email == "" {
			return fmt.Errorf("%w: Email required", ErrValidation)
		}
		return nil
	}
	if email == "" || profile.Name == "" {
		return fmt.Errorf("%w: Name and Email required", ErrValidation)
	}
	if profile.DOB != "" {
		if _, err := time.Parse(dobFormat, profile.DOB); err != nil {
			return fmt.Errorf("%w: dob must be YYYY-MM-DD", ErrValidation)
		}
	}
	return nil
}
