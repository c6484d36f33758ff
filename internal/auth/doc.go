// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

// Package auth provides credential handling and session authorization for
// TaskFlow.
//
// # Domain Types
//
// Accounts should be created with NewAccount, which validates the username,
// normalizes the email and assigns an ID. Direct struct initialization
// bypasses validation. Repository implementations receive pre-validated
// accounts.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - registration and login
//   - PasswordResetService - forgot-password and reset-password flow
//   - ResetSweeper - clears expired reset windows
//
// Services are created with New*Service constructors that validate dependencies
// and accept Option values for logging, throttling, clock and metrics.
//
// # Errors
//
// Per-request failures wrap one of the sentinels in errors.go. Use errors.Is
// to classify them; the oops code on the outermost error is stable.
package auth
