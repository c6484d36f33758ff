// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Lugadilu/TaskFlow/internal/auth"
	"github.com/Lugadilu/TaskFlow/pkg/errutil"
)

// maxBodyBytes bounds request bodies; every payload is a handful of short
// strings.
const maxBodyBytes = 64 << 10

// Error messages. They never carry internal detail.
const (
	msgInvalidBody        = "Invalid request body"
	msgAlreadyExists      = "User already exists"
	msgInvalidRequest     = "Invalid request"
	msgInvalidCredentials = "Invalid credentials"
	msgInvalidResetToken  = "Invalid or expired token"
	msgUnauthorized       = "Unauthorized"
	msgRateLimited        = "Too many attempts. Please try again later."
	msgInternal           = "An unexpected error occurred"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errchkjson // the client is gone if encoding to the wire fails
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageResponse{Message: msg})
}

// decodeJSON reads the request body into dst. On failure it writes a 400 and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

// statusFor maps a service error to its HTTP status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrAlreadyExists):
		return http.StatusConflict, msgAlreadyExists
	case errors.Is(err, auth.ErrInvalidRequest):
		return http.StatusBadRequest, msgInvalidRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, msgInvalidCredentials
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, msgInvalidResetToken
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, msgUnauthorized
	case errors.Is(err, auth.ErrRateLimited):
		return http.StatusTooManyRequests, msgRateLimited
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), logger, "request failed", err)
	}
	writeMessage(w, status, msg)
}
