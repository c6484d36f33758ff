// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package api

import (
	"log/slog"
	"net/http"
	"time"
)

// Response messages.
const (
	msgRegistered    = "User registered successfully"
	msgPasswordReset = "Password has been reset successfully"
)

type handlers struct {
	auth   Authenticator
	reset  PasswordResetter
	logger *slog.Logger
}

// RegisterPayload is the body of POST /api/auth/register.
type RegisterPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginPayload is the body of POST /api/auth/login.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordPayload is the body of POST /api/auth/forgot-password.
type ForgotPasswordPayload struct {
	Email string `json:"email"`
}

// ResetPasswordPayload is the body of POST /api/auth/reset-password.
type ResetPasswordPayload struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// MessageResponse carries a human-readable result.
type MessageResponse struct {
	Message string `json:"message"`
}

// TokenResponse carries a session token.
type TokenResponse struct {
	Token string `json:"token"`
}

// SessionResponse describes the caller of GET /api/auth/me.
type SessionResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	if _, err := h.auth.Register(r.Context(), payload.Username, payload.Email, payload.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgRegistered})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	token, err := h.auth.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

func (h *handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload ForgotPasswordPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: h.reset.RequestReset(r.Context(), payload.Email)})
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload ResetPasswordPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	if err := h.reset.ResetWithToken(r.Context(), payload.Token, payload.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgPasswordReset})
}

func (h *handlers) validateResetToken(w http.ResponseWriter, r *http.Request) {
	if err := h.reset.ValidateToken(r.Context(), r.URL.Query().Get("token")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	account, err := h.auth.CurrentAccount(r.Context(), claims)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := SessionResponse{
		ID:       account.ID.String(),
		Email:    account.Email,
		Username: account.Username,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}
