// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Lugadilu/TaskFlow/internal/auth"
	"github.com/Lugadilu/TaskFlow/pkg/errutil"
)

type contextKey struct{}

var claimsKey contextKey

// ClaimsFromContext returns the session claims stored by the session
// middleware.
func ClaimsFromContext(ctx context.Context) (*auth.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.SessionClaims)
	return claims, ok && claims != nil
}

// requireSession rejects requests without a valid Bearer session token.
func requireSession(sessions Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			claims, err := sessions.ValidateSession(strings.TrimSpace(token))
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

// clientIP returns the host part of RemoteAddr: the peer address, or the
// forwarded one when RealIP is installed.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// throttleByIP answers 429 once a client address exceeds its budget. A failing
// throttle lets the request through.
func throttleByIP(throttle auth.Throttle, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := throttle.Allow(r.Context(), clientIP(r))
			if err != nil {
				errutil.LogErrorContext(r.Context(), logger, "ip throttle unavailable, allowing request", err)
			} else if !allowed {
				writeMessage(w, http.StatusTooManyRequests, msgRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs and counts each request by its route pattern.
func requestLogger(logger *slog.Logger, rec RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			if rec != nil {
				rec.RecordHTTPRequest(r.Method, route, status)
			}
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"route", route,
				"status", status,
				"remote", clientIP(r),
				"duration", time.Since(start))
		})
	}
}
