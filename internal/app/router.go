package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ziplyhq/ziply/internal/accounts"
	"github.com/ziplyhq/ziply/internal/apperrors"
	"github.com/ziplyhq/ziply/internal/audit"
	"github.com/ziplyhq/ziply/internal/auth"
	"github.com/ziplyhq/ziply/internal/business"
	"github.com/ziplyhq/ziply/internal/config"
	"github.com/ziplyhq/ziply/internal/mailer"
	"github.com/ziplyhq/ziply/internal/members"
	"github.com/ziplyhq/ziply/internal/signing"
	"github.com/ziplyhq/ziply/internal/tenantctx"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(pool *pgxpool.Pool, cfg *config.Config, mail *mailer.Mailer) *chi.Mux {
	r := chi.NewRouter()

	// Services
	signer := signing.NewSigner(cfg.SigningSecret)
	users := accounts.NewService(pool)
	businesses := business.NewService(pool)
	registration := accounts.NewRegistrationService(pool, users, signer, mail)
	invites := business.NewInviteService(pool, signer, mail)
	auditor := audit.NewWriter(pool)
	resolver := tenantctx.NewResolver(businesses)

	tokens := accounts.TokenConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		RefreshTTL: time.Duration(cfg.RefreshTokenTTLDays) * 24 * time.Hour,
	}

	// Middleware stack
	r.Use(middleware.RealIP)                 // Set RemoteAddr to real IP
	r.Use(apperrors.RequestIDMiddleware)     // Add request ID to context
	r.Use(LoggingMiddleware)                 // Structured request logging
	r.Use(RecoveryMiddleware)                // Recover from panics
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", tenantctx.SlugHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.Middleware(cfg.JWTSecret)) // Parse bearer tokens into context
	r.Use(resolver.Middleware)            // Resolve the active business from the slug header

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteNotFound(w, r, "Resource not found")
	})

	// Health check routes (no authentication required)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))

	// Account routes
	r.Route("/accounts", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.With(EmailStartRateLimitMiddleware()).Post("/email-start/", accounts.HandleEmailStart(registration, auditor))
		r.Post("/register/", accounts.HandleRegister(registration, auditor, tokens))

		r.With(LoginRateLimitMiddleware()).Post("/api/token/", accounts.HandleLogin(users, auditor, tokens))
		r.Post("/api/token/refresh/", accounts.HandleTokenRefresh(tokens))

		r.With(auth.RequireAuth).Get("/me/", accounts.HandleMe(users))
	})

	// Member and invitation routes
	r.Route("/members", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.With(auth.RequireAuth, tenantctx.RequireRole(business.RoleManager)).
			Get("/", members.HandleList(businesses))
		r.With(auth.RequireAuth, tenantctx.RequireRole(business.RoleManager)).
			Post("/invite/", members.HandleInvite(invites, auditor))

		// Token-gated endpoints used by invited users who have no account yet
		r.Post("/invite-confirm/", members.HandleInviteConfirm(invites))
		r.Post("/invite-accept/", members.HandleInviteAccept(invites, auditor))
	})

	return r
}

// handleHealthz returns a simple liveness check
// Always returns 200 OK if the service is running
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database connectivity
// Returns 200 OK if service is ready to accept traffic, 503 if not
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
