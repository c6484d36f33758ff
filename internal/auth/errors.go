// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Sentinel errors. Service methods return them wrapped in an oops error that
// carries a stable code; use errors.Is to classify.
var (
	// ErrNotFound is returned by repositories when a requested account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when registering an email that is already taken.
	ErrAlreadyExists = errors.New("user already exists")

	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRequest is returned for missing or malformed input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidOrExpiredToken covers wrong, consumed and expired reset tokens alike.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")

	// ErrInvalidToken is returned when a session token fails verification.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrRateLimited is returned when an identity exceeded its attempt budget.
	ErrRateLimited = errors.New("too many attempts")
)

// Error codes attached to the sentinels above.
const (
	CodeAlreadyExists         = "AUTH_ALREADY_EXISTS"
	CodeInvalidCredentials    = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidRequest        = "AUTH_INVALID_REQUEST"
	CodeInvalidOrExpiredToken = "RESET_TOKEN_INVALID"
	CodeInvalidToken          = "SESSION_TOKEN_INVALID"
	CodeRateLimited           = "AUTH_RATE_LIMITED"
	CodeNotFound              = "ACCOUNT_NOT_FOUND"
)

func errInvalidRequest(field string) error {
	return oops.Code(CodeInvalidRequest).With("field", field).Wrap(ErrInvalidRequest)
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

func errInvalidOrExpiredToken() error {
	return oops.Code(CodeInvalidOrExpiredToken).Wrap(ErrInvalidOrExpiredToken)
}

func errRateLimited(operation string) error {
	return oops.Code(CodeRateLimited).With("operation", operation).Wrap(ErrRateLimited)
}
