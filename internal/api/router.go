// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

// Package api exposes the credential services over HTTP.
package api

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/oops"

	"github.com/Lugadilu/TaskFlow/internal/auth"
)

// Authenticator is the part of auth.Service the HTTP layer uses.
type Authenticator interface {
	Register(ctx context.Context, username, email, password string) (*auth.Account, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateSession(token string) (*auth.SessionClaims, error)
	CurrentAccount(ctx context.Context, claims *auth.SessionClaims) (*auth.Account, error)
}

// PasswordResetter is the part of auth.PasswordResetService the HTTP layer uses.
type PasswordResetter interface {
	RequestReset(ctx context.Context, email string) string
	ResetWithToken(ctx context.Context, token, newPassword string) error
	ValidateToken(ctx context.Context, token string) error
}

// RequestRecorder receives one call per finished API request.
type RequestRecorder interface {
	RecordHTTPRequest(method, route string, status int)
}

// Config wires the router to its collaborators. Auth and Reset are required.
type Config struct {
	Auth  Authenticator
	Reset PasswordResetter

	// IPThrottle limits requests per client address on /api/auth. Nil
	// disables it.
	IPThrottle auth.Throttle
	// TrustProxyHeaders keys the IP throttle and logs on X-Forwarded-For,
	// X-Real-IP and True-Client-IP. Off, the peer address is used, since
	// any client can set those headers.
	TrustProxyHeaders bool
	Recorder          RequestRecorder
	Logger     *slog.Logger

	CORSOrigins []string
}

// NewRouter creates the API router.
func NewRouter(cfg Config) (*chi.Mux, error) {
	if cfg.Auth == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if cfg.Reset == nil {
		return nil, oops.Errorf("password reset service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &handlers{auth: cfg.Auth, reset: cfg.Reset, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(cfg.Logger, cfg.Recorder))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/auth", func(r chi.Router) {
		if cfg.IPThrottle != nil {
			r.Use(throttleByIP(cfg.IPThrottle, cfg.Logger))
		}

		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)
		r.Get("/reset-password/validate", h.validateResetToken)

		r.With(requireSession(cfg.Auth, cfg.Logger)).Get("/me", h.me)
	})

	return r, nil
}
