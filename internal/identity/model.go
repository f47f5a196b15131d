package identity

import (
	"strings"
	"time"
)

// Providers an identity can originate from.
const (
	ProviderOTP    = "otp"
	ProviderGoogle = "google"
)

// Identity is the durable record per contact address. It carries at most one
// live OTP challenge.
type Identity struct {
	ID           string
	Name         string
	Email        string
	DOB          string
	Provider     string
	OTPHash      string
	OTPExpiresAt time.Time
	CreatedAt    time.Time
}

// HasChallenge reports whether a challenge is stored, regardless of expiry.
func (i Identity) HasChallenge() bool {
	return i.OTPHash != ""
}

// ClearChallenge drops the stored challenge.
func (i *Identity) ClearChallenge() {
	i.OTPHash = ""
	i.OTPExpiresAt = time.Time{}
}

// Profile is the externally supplied part of an identity.
type Profile struct {
	Name     string
	Email    string
	DOB      string
	Provider string
}

// NormalizeEmail lower-cases and trims a contact address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
