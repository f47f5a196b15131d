package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "notely"
	defaultAppEnv          = "development"
	defaultPort            = "5000"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultSessionTTL      = time.Hour
	defaultOTPTTL          = 5 * time.Minute
	defaultOTPRateLimit    = 5
	defaultDashboardURL    = "http://localhost:5173/dashboard"
	defaultLoginURL        = "http://localhost:5173/login"
	defaultHandoffMode     = HandoffExchange
	defaultOpenAIBaseURL   = "https://api.openai.com"
	defaultOpenAIModel     = "gpt-3.5-turbo"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	sessionTTLEnvVar       = "SESSION_TTL"
	otpTTLEnvVar           = "OTP_TTL"
	otpEchoEnvVar          = "OTP_ECHO"
	otpRateLimitEnvVar     = "OTP_RATE_LIMIT"
	handoffModeEnvVar      = "HANDOFF_MODE"
)

// Handoff modes for delivering a federated session to the browser.
const (
	HandoffExchange = "exchange"
	HandoffQuery    = "query"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret    string
	SessionTTL   time.Duration
	OTPTTL       time.Duration
	OTPEcho      bool
	OTPRateLimit int

	Google       GoogleConfig
	DashboardURL string
	LoginURL     string
	HandoffMode  string

	OpenAI OpenAIConfig
}

// GoogleConfig holds the OAuth client registration used for federated login.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether federated login has been configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RedirectURL != ""
}

// OpenAIConfig points the summarizer at an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		JWTSecret:      os.Getenv("JWT_SECRET"),
		SessionTTL:     defaultSessionTTL,
		OTPTTL:         defaultOTPTTL,
		OTPEcho:        true,
		OTPRateLimit:   defaultOTPRateLimit,
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		},
		DashboardURL: getEnv("DASHBOARD_URL", defaultDashboardURL),
		LoginURL:     getEnv("LOGIN_URL", defaultLoginURL),
		HandoffMode:  strings.ToLower(getEnv(handoffModeEnvVar, defaultHandoffMode)),
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: getEnv("OPENAI_BASE_URL", defaultOpenAIBaseURL),
			Model:   getEnv("OPENAI_MODEL", defaultOpenAIModel),
		},
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = durationFromEnv("", sessionTTLEnvVar, cfg.SessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.OTPTTL, err = durationFromEnv("", otpTTLEnvVar, cfg.OTPTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(otpEchoEnvVar); v != "" {
		echo, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", otpEchoEnvVar, err)
		}
		cfg.OTPEcho = echo
	}

	if v := os.Getenv(otpRateLimitEnvVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", otpRateLimitEnvVar, err)
		}
		cfg.OTPRateLimit = n
	}

	switch cfg.HandoffMode {
	case HandoffExchange, HandoffQuery:
	default:
		return Config{}, fmt.Errorf("invalid %s: %q", handoffModeEnvVar, cfg.HandoffMode)
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development-like environment where
// Postgres and Redis may be replaced by in-memory stores.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// durationFromEnv prefers the integer seconds variable over the Go duration one.
func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
