// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxUsernameLength bounds the display name stored with an account.
const MaxUsernameLength = 64

// Account represents a registered user.
type Account struct {
	ID           ulid.ULID
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// ResetTokenHash and ResetTokenExpiry describe an open reset window.
	// They are both nil or both set.
	ResetTokenHash   *string
	ResetTokenExpiry *time.Time
}

// NewAccount creates a validated Account with a fresh ID.
func NewAccount(username, email, passwordHash string, now time.Time) (*Account, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if now.IsZero() {
		return nil, oops.Code("ACCOUNT_INVALID_TIME").Errorf("creation time cannot be zero")
	}

	now = now.UTC()
	return &Account{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasPendingReset reports whether a reset window is open at t.
func (a *Account) HasPendingReset(t time.Time) bool {
	return a.ResetTokenHash != nil && a.ResetTokenExpiry != nil && a.ResetTokenExpiry.After(t)
}

// SetResetToken opens a reset window.
func (a *Account) SetResetToken(tokenHash string, expiry time.Time) {
	expiry = expiry.UTC()
	a.ResetTokenHash = &tokenHash
	a.ResetTokenExpiry = &expiry
}

// ClearResetToken closes the reset window.
func (a *Account) ClearResetToken() {
	a.ResetTokenHash = nil
	a.ResetTokenExpiry = nil
}

// LogValue keeps the password digest and reset hash out of logs.
func (a *Account) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", a.ID.String()),
		slog.String("username", a.Username),
		slog.Bool("reset_pending", a.ResetTokenHash != nil),
	)
}

// NormalizeEmail trims and lower-cases an email address. Every lookup and
// insert goes through it so uniqueness and lookup agree on case.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername checks the display name stored with an account.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("ACCOUNT_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	for _, r := range username {
		if unicode.IsControl(r) {
			return oops.Code("ACCOUNT_INVALID_USERNAME").
				Errorf("username cannot contain control characters")
		}
	}
	return nil
}

// AccountRepository manages account persistence. Every method is atomic.
type AccountRepository interface {
	// Create stores a new account. Returns an error wrapping ErrAlreadyExists
	// when the email is taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by normalized email.
	// Returns ErrNotFound if no account has the given email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByResetToken retrieves the account whose reset window matches
	// tokenHash and is still open at now.
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*Account, error)

	// Update writes username, password hash, reset fields and updated_at.
	Update(ctx context.Context, account *Account) error

	// UpgradePasswordHash replaces oldHash with newHash only while the stored
	// hash is still oldHash. The reset window is left untouched. Returns
	// ErrNotFound when the account is gone or its hash has changed.
	UpgradePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) error

	// SetResetToken opens a reset window for the account.
	SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiry time.Time) error

	// ConsumeResetToken sets a new password hash and clears the reset window in
	// one conditional write, only where tokenHash matches and the window is
	// open at now. Returns ErrNotFound when no account matched.
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (ulid.ULID, error)

	// ClearExpiredResetTokens closes every reset window that ended before now.
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}
