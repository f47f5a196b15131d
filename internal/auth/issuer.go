package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/notely/notely/internal/identity"
)

const (
	issuer = "notely"

	// DefaultSessionTTL is the absolute lifetime of a session token.
	DefaultSessionTTL = time.Hour
)

var (
	// ErrInvalidToken indicates the token failed signature, issuer or expiry checks.
	ErrInvalidToken  = errors.New("invalid token")
	errMissingSecret = errors.New("session secret is not configured")
)

// Claims are carried by every session token.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Session is a freshly minted token with its expiry.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Issuer mints and verifies stateless HS256 session tokens. There is no
// revocation list; a token dies only by expiring.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer builds an Issuer signing with the process-wide secret.
func NewIssuer(secret string, opts ...IssuerOption) (*Issuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errMissingSecret
	}
	iss := &Issuer{secret: []byte(secret), ttl: DefaultSessionTTL, now: time.Now}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// Issue signs a session for a verified identity, whichever way it was verified.
func (i *Issuer) Issue(id identity.Identity) (Session, error) {
	if strings.TrimSpace(id.ID) == "" {
		return Session{}, errors.New("subject is required")
	}
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	claims := Claims{
		Name:  id.Name,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, ExpiresAt: exp}, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the claims.
func (i *Issuer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
