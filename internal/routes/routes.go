package routes

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/notely/notely/internal/auth"
	"github.com/notely/notely/internal/config"
	"github.com/notely/notely/internal/federated"
	"github.com/notely/notely/internal/identity"
	"github.com/notely/notely/internal/metrics"
	"github.com/notely/notely/internal/middleware"
	"github.com/notely/notely/internal/notes"
	"github.com/notely/notely/internal/notification"
	"github.com/notely/notely/internal/otp"
	"github.com/notely/notely/internal/summarize"
	"github.com/notely/notely/internal/ticket"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *sql.DB
	Cache  *redis.Client
	Logger *slog.Logger

	// Summarizer overrides the OpenAI client built from Cfg.OpenAI.
	Summarizer summarize.Summarizer
	// OTPGenerator overrides random code generation.
	OTPGenerator func() (string, error)
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(metrics.Middleware())
	if d.Cfg.IsDev() {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", metrics.Handler())

	// Services and handlers
	var identityRepo identity.Repository
	var noteRepo notes.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
		noteRepo = notes.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
		noteRepo = notes.NewMemoryRepository()
	}

	var tickets ticket.Store
	if d.Cache != nil {
		tickets = ticket.NewRedisStore(d.Cache, "ticket:v1:")
	} else {
		tickets = ticket.NewMemoryStore(nil)
	}

	issuer, err := auth.NewIssuer(d.Cfg.JWTSecret, auth.WithTTL(d.Cfg.SessionTTL))
	if err != nil {
		return err
	}

	otpOpts := []otp.Option{otp.WithTTL(d.Cfg.OTPTTL), otp.WithLogger(d.Logger)}
	if d.OTPGenerator != nil {
		otpOpts = append(otpOpts, otp.WithGenerator(d.OTPGenerator))
	}
	otps := otp.NewManager(identityRepo, notification.NewLoggerNotifier(d.Logger), otpOpts...)
	authHandler := auth.NewHandler(otps, issuer, d.Cfg.OTPEcho, d.Logger)

	var bridge *federated.Bridge
	if d.Cfg.Google.Enabled() {
		bridge, err = federated.NewBridge(federated.Options{
			OAuth:        federated.GoogleOAuthConfig(d.Cfg.Google.ClientID, d.Cfg.Google.ClientSecret, d.Cfg.Google.RedirectURL),
			DashboardURL: d.Cfg.DashboardURL,
			LoginURL:     d.Cfg.LoginURL,
			Mode:         d.Cfg.HandoffMode,
			Logger:       d.Logger,
		}, identity.NewService(identityRepo), issuer, tickets)
		if err != nil {
			return err
		}
	} else {
		d.Logger.Info("google login disabled: GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URL are not all set")
	}

	summarizer := d.Summarizer
	if summarizer == nil && d.Cfg.OpenAI.APIKey != "" {
		summarizer = summarize.NewClient(d.Cfg.OpenAI.BaseURL, d.Cfg.OpenAI.APIKey, d.Cfg.OpenAI.Model, nil)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterAuthRoutes(api, authHandler, middleware.OTPRateLimit(d.Cache, d.Cfg.OTPRateLimit))
	RegisterFederatedRoutes(api, bridge)

	// Protected routes
	session := middleware.RequireSession(issuer)
	RegisterNoteRoutes(api, notes.NewHandler(notes.NewService(noteRepo)), session, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	RegisterAIRoutes(api, summarize.NewHandler(summarizer, d.Logger), session)

	return nil
}
