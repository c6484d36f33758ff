// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

// Package authtest provides in-memory collaborators for exercising the auth
// services without a database or mail server.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/Lugadilu/TaskFlow/internal/auth"
)

// AccountRepository is an in-memory auth.AccountRepository. Accounts are
// copied on the way in and out so callers cannot mutate stored state.
type AccountRepository struct {
	mu       sync.Mutex
	byID     map[ulid.ULID]*auth.Account
	byEmail  map[string]ulid.ULID
	failNext error
}

// NewAccountRepository creates an empty repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:    make(map[ulid.ULID]*auth.Account),
		byEmail: make(map[string]ulid.ULID),
	}
}

// FailNext makes the next call return err.
func (r *AccountRepository) FailNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

func (r *AccountRepository) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

// Len returns the number of stored accounts.
func (r *AccountRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func clone(a *auth.Account) *auth.Account {
	c := *a
	if a.ResetTokenHash != nil {
		h := *a.ResetTokenHash
		c.ResetTokenHash = &h
	}
	if a.ResetTokenExpiry != nil {
		e := *a.ResetTokenExpiry
		c.ResetTokenExpiry = &e
	}
	return &c
}

func notFound(key string, value any) error {
	return oops.Code(auth.CodeNotFound).With(key, value).Wrap(auth.ErrNotFound)
}

// Create implements auth.AccountRepository.
func (r *AccountRepository) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}

	email := auth.NormalizeEmail(account.Email)
	if _, taken := r.byEmail[email]; taken {
		return oops.Code(auth.CodeAlreadyExists).With("email", email).Wrap(auth.ErrAlreadyExists)
	}
	stored := clone(account)
	stored.Email = email
	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID
	return nil
}

// GetByID implements auth.AccountRepository.
func (r *AccountRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}

	a, ok := r.byID[id]
	if !ok {
		return nil, notFound("account_id", id.String())
	}
	return clone(a), nil
}

// GetByEmail implements auth.AccountRepository.
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}

	id, ok := r.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, notFound("email", email)
	}
	return clone(r.byID[id]), nil
}

// GetByResetToken implements auth.AccountRepository.
func (r *AccountRepository) GetByResetToken(_ context.Context, tokenHash string, now time.Time) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}

	if a := r.findOpenWindow(tokenHash, now); a != nil {
		return clone(a), nil
	}
	return nil, notFound("operation", "get by reset token")
}

func (r *AccountRepository) findOpenWindow(tokenHash string, now time.Time) *auth.Account {
	for _, a := range r.byID {
		if a.ResetTokenHash != nil && *a.ResetTokenHash == tokenHash && a.HasPendingReset(now) {
			return a
		}
	}
	return nil
}

// Update implements auth.AccountRepository.
func (r *AccountRepository) Update(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}

	stored, ok := r.byID[account.ID]
	if !ok {
		return notFound("account_id", account.ID.String())
	}
	updated := clone(account)
	updated.Email = stored.Email
	updated.CreatedAt = stored.CreatedAt
	r.byID[account.ID] = updated
	return nil
}

// UpgradePasswordHash swaps the password hash when it still equals oldHash.
func (r *AccountRepository) UpgradePasswordHash(_ context.Context, id ulid.ULID, oldHash, newHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}

	stored, ok := r.byID[id]
	if !ok || stored.PasswordHash != oldHash {
		return notFound("account_id", id.String())
	}
	stored.PasswordHash = newHash
	stored.UpdatedAt = now
	return nil
}

// SetResetToken implements auth.AccountRepository.
func (r *AccountRepository) SetResetToken(_ context.Context, id ulid.ULID, tokenHash string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}

	a, ok := r.byID[id]
	if !ok {
		return notFound("account_id", id.String())
	}
	a.SetResetToken(tokenHash, expiry)
	return nil
}

// ConsumeResetToken implements auth.AccountRepository. The compare and clear
// happen under one lock.
func (r *AccountRepository) ConsumeResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (ulid.ULID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return ulid.ULID{}, err
	}

	a := r.findOpenWindow(tokenHash, now)
	if a == nil {
		return ulid.ULID{}, notFound("operation", "consume reset token")
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = now.UTC()
	a.ClearResetToken()
	return a.ID, nil
}

// ClearExpiredResetTokens implements auth.AccountRepository.
func (r *AccountRepository) ClearExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return 0, err
	}

	var cleared int64
	for _, a := range r.byID {
		if a.ResetTokenExpiry != nil && !a.ResetTokenExpiry.After(now) {
			a.ClearResetToken()
			cleared++
		}
	}
	return cleared, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
