// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package auth

import (
	"context"
)

// Throttle counts attempts per key inside a fixed window.
//
// Allow records one attempt for key and reports whether the attempt is within
// the budget. Reset forgets the key's attempts.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// Throttle key prefixes.
const (
	loginThrottlePrefix = "login:"
	resetThrottlePrefix = "reset-request:"
)

// LoginThrottleKey returns the throttle key for login attempts on an email.
func LoginThrottleKey(email string) string {
	return loginThrottlePrefix + NormalizeEmail(email)
}

// ResetThrottleKey returns the throttle key for reset requests on an email.
func ResetThrottleKey(email string) string {
	return resetThrottlePrefix + NormalizeEmail(email)
}

// NoThrottle allows every attempt.
type NoThrottle struct{}

// Allow always returns true.
func (NoThrottle) Allow(context.Context, string) (bool, error) { return true, nil }

// Reset is a no-op.
func (NoThrottle) Reset(context.Context, string) error { return nil }
