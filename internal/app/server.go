package app

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-accounts/internal/auth"
	"github.com/odyssey-erp/odyssey-accounts/internal/observability"
	"github.com/odyssey-erp/odyssey-accounts/internal/passwords"
	"github.com/odyssey-erp/odyssey-accounts/internal/registrations"
	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
	"github.com/odyssey-erp/odyssey-accounts/internal/view"
	"github.com/odyssey-erp/odyssey-accounts/jobs"
)

// Dependencies are the long lived resources the HTTP application is built from.
type Dependencies struct {
	Config     *Config
	Logger     *slog.Logger
	Storage    *Storage
	Redis      redis.UniversalClient
	Notifier   passwords.Notifier
	JobHandler *jobs.Handler
	Metrics    *observability.Metrics
	// HashCost overrides the bcrypt cost when non-zero.
	HashCost int
}

// NewHTTPHandler wires services and handlers into the router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Config == nil || deps.Storage == nil || deps.Redis == nil {
		return nil, errors.New("app: config, storage and redis are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	sessionManager := shared.NewSessionManager(deps.Redis, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return nil, err
	}
	responder := view.Responder{Templates: templates, CSRF: csrfManager, Logger: logger}

	usersService := users.NewService(deps.Storage.Users, users.PasswordPolicy{MinLength: cfg.PasswordMinLength})
	if deps.HashCost != 0 {
		usersService.WithHashCost(deps.HashCost)
	}
	authService := auth.NewService(deps.Storage.Sessions, usersService, sessionManager, csrfManager)

	tokens := passwords.NewTokenStore(deps.Redis, cfg.PasswordResetTTL)
	passwordService := passwords.NewService(usersService, tokens, deps.Notifier, logger)

	return NewRouter(RouterParams{
		Logger:              logger,
		Config:              cfg,
		Responder:           responder,
		SessionManager:      sessionManager,
		CSRFManager:         csrfManager,
		AuthService:         authService,
		AuthHandler:         auth.NewHandler(logger, authService, responder, deps.Metrics),
		RegistrationHandler: registrations.NewHandler(logger, usersService, authService, responder, deps.Metrics),
		PasswordHandler:     passwords.NewHandler(logger, passwordService, authService, responder, deps.Metrics),
		JobHandler:          deps.JobHandler,
		Metrics:             deps.Metrics,
	}), nil
}
