// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package authtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lugadilu/TaskFlow/internal/auth"
)

// RepositoryFactory returns an empty repository. It is called once per
// subtest; the factory owns any cleanup.
type RepositoryFactory func(t *testing.T) auth.AccountRepository

// contractNow is truncated to microseconds, the coarsest precision of the
// supported stores.
var contractNow = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

// RunRepositoryContract exercises the behavior every auth.AccountRepository
// must share. Store packages call it from their own tests.
func RunRepositoryContract(t *testing.T, newRepo RepositoryFactory) {
	t.Helper()

	newAccount := func(t *testing.T, repo auth.AccountRepository, username, email string) *auth.Account {
		t.Helper()
		a, err := auth.NewAccount(username, email, "$argon2id$stored", contractNow)
		require.NoError(t, err)
		require.NoError(t, repo.Create(context.Background(), a))
		return a
	}

	t.Run("create and get by id", func(t *testing.T) {
		repo := newRepo(t)
		a := newAccount(t, repo, "alice", "alice@example.com")

		got, err := repo.GetByID(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "alice@example.com", got.Email)
		assert.Equal(t, "$argon2id$stored", got.PasswordHash)
		assert.True(t, got.CreatedAt.Equal(contractNow), "created_at %v", got.CreatedAt)
		assert.Nil(t, got.ResetTokenHash)
		assert.Nil(t, got.ResetTokenExpiry)
	})

	t.Run("get by id of unknown account", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(context.Background(), ulid.Make())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("email lookup ignores case", func(t *testing.T) {
		repo := newRepo(t)
		a := newAccount(t, repo, "alice", "alice@example.com")

		got, err := repo.GetByEmail(context.Background(), "Alice@Example.COM")
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)

		_, err = repo.GetByEmail(context.Background(), "bob@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("duplicate email differing in case is rejected", func(t *testing.T) {
		repo := newRepo(t)
		newAccount(t, repo, "alice", "alice@example.com")

		dup, err := auth.NewAccount("alice2", "ALICE@example.com", "$argon2id$other", contractNow)
		require.NoError(t, err)
		err = repo.Create(context.Background(), dup)
		assert.ErrorIs(t, err, auth.ErrAlreadyExists)
	})

	t.Run("update writes password and username", func(t *testing.T) {
		repo := newRepo(t)
		a := newAccount(t, repo, "alice", "alice@example.com")

		a.Username = "alice-renamed"
		a.PasswordHash = "$argon2id$rehashed"
		a.UpdatedAt = contractNow.Add(time.Minute)
		require.NoError(t, repo.Update(context.Background(), a))

		got, err := repo.GetByID(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice-renamed", got.Username)
		assert.Equal(t, "$argon2id$rehashed", got.PasswordHash)
		assert.True(t, got.UpdatedAt.Equal(a.UpdatedAt))
	})

	t.Run("update of unknown account", func(t *testing.T) {
		repo := newRepo(t)
		ghost, err := auth.NewAccount("ghost", "ghost@example.com", "$argon2id$x", contractNow)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Update(context.Background(), ghost), auth.ErrNotFound)
	})

	t.Run("reset window lookup respects expiry", func(t *testing.T) {
		repo := newRepo(t)
		a := newAccount(t, repo, "alice", "alice@example.com")
		expiry := contractNow.Add(time.Hour)
		require.NoError(t, repo.SetResetToken(context.Background(), a.ID, "hash-1", expiry))

		got, err := repo.GetByResetToken(context.Background(), "hash-1", contractNow)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		require.NotNil(t, got.ResetTokenHash)
		assert.Equal(t, "hash-1", *got.ResetTokenHash)
		require.NotNil(t, got.ResetTokenExpiry)
		assert.True(t, got.ResetTokenExpiry.Equal(expiry))

		_, err = repo.GetByResetToken(context.Background(), "hash-1", expiry)
		assert.ErrorIs(t, err, auth.ErrNotFound, "window is closed at its expiry instant")

		_, err = repo.GetByResetToken(context.Background(), "other-hash", contractNow)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("set reset token for unknown account", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.SetResetToken(context.Background(), ulid.Make(), "hash", contractNow.Add(time.Hour))
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("new reset token replaces the old one", func(t *testing.T) {
		repo := newRepo(t)
		a := newAccount(t, repo, "alice", "alice@example.com")
		require.NoError(t, repo.SetResetToken(context.Background(), a.ID, "first", contractNow.Add(time.Hour)))
		require.NoError(t, repo.SetResetToken(context.Background(), a.ID, "second", contractNow.Add(time.Hour)))

		_, err := repo.ConsumeResetToken(context.Background(), "first", "$argon2id$new", contractNow)
		assert.ErrorIs(t, err, auth.ErrNotFound)

		id, err := repo.ConsumeResetToken(context.Background(), "second", "$argon2id$new", contractNow)
		require.NoError(t, err)
		assert.Equal(t, a.ID, id)
	})

	t.Run("consume writes password and closes window once", func(t *testing.T) {
		repo := newRepo(t)
		a := newAccount(t, repo, "alice", "alice@example.com")
		require.NoError(t, repo.SetResetToken(context.Background(), a.ID, "hash-1", contractNow.Add(time.Hour)))

		id, err := repo.ConsumeResetToken(context.Background(), "hash-1", "$argon2id$new", contractNow)
		require.NoError(t, err)
		assert.Equal(t, a.ID, id)

		got, err := repo.GetByID(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, "$argon2id$new", got.PasswordHash)
		assert.Nil(t, got.ResetTokenHash)
		assert.Nil(t, got.ResetTokenExpiry)

		_, err = repo.ConsumeResetToken(context.Background(), "hash-1", "$argon2id$again", contractNow)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("consume of expired window", func(t *testing.T) {
		repo := newRepo(t)
		a := newAccount(t, repo, "alice", "alice@example.com")
		require.NoError(t, repo.SetResetToken(context.Background(), a.ID, "hash-1", contractNow.Add(time.Hour)))

		_, err := repo.ConsumeResetToken(context.Background(), "hash-1", "$argon2id$new", contractNow.Add(2*time.Hour))
		assert.ErrorIs(t, err, auth.ErrNotFound)

		got, err := repo.GetByID(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, "$argon2id$stored", got.PasswordHash)
	})

	t.Run("upgrade swaps hash and keeps reset window", func(t *testing.T) {
		repo := newRepo(t)
		a := newAccount(t, repo, "alice", "alice@example.com")
		expiry := contractNow.Add(time.Hour)
		require.NoError(t, repo.SetResetToken(context.Background(), a.ID, "hash-1", expiry))

		require.NoError(t, repo.UpgradePasswordHash(context.Background(), a.ID,
			"$argon2id$stored", "$argon2id$upgraded", contractNow))

		got, err := repo.GetByID(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, "$argon2id$upgraded", got.PasswordHash)
		require.NotNil(t, got.ResetTokenHash)
		assert.Equal(t, "hash-1", *got.ResetTokenHash)
		require.NotNil(t, got.ResetTokenExpiry)
		assert.True(t, expiry.Equal(*got.ResetTokenExpiry))
	})

	t.Run("upgrade after a completed reset changes nothing", func(t *testing.T) {
		repo := newRepo(t)
		a := newAccount(t, repo, "alice", "alice@example.com")
		require.NoError(t, repo.SetResetToken(context.Background(), a.ID, "hash-1", contractNow.Add(time.Hour)))
		_, err := repo.ConsumeResetToken(context.Background(), "hash-1", "$argon2id$reset", contractNow)
		require.NoError(t, err)

		err = repo.UpgradePasswordHash(context.Background(), a.ID,
			"$argon2id$stored", "$argon2id$upgraded", contractNow)
		assert.ErrorIs(t, err, auth.ErrNotFound)

		got, err := repo.GetByID(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, "$argon2id$reset", got.PasswordHash)
		assert.Nil(t, got.ResetTokenHash)
		assert.Nil(t, got.ResetTokenExpiry)

		_, err = repo.ConsumeResetToken(context.Background(), "hash-1", "$argon2id$again", contractNow)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("upgrade of unknown account", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.UpgradePasswordHash(context.Background(), ulid.Make(), "a", "b", contractNow)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("concurrent consumers succeed exactly once", func(t *testing.T) {
		repo := newRepo(t)
		a := newAccount(t, repo, "alice", "alice@example.com")
		require.NoError(t, repo.SetResetToken(context.Background(), a.ID, "hash-1", contractNow.Add(time.Hour)))

		var wg sync.WaitGroup
		var wins, misses atomic.Int32
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.ConsumeResetToken(context.Background(), "hash-1", "$argon2id$new", contractNow)
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, auth.ErrNotFound):
					misses.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(7), misses.Load())
	})

	t.Run("clear expired reset tokens", func(t *testing.T) {
		repo := newRepo(t)
		expired := newAccount(t, repo, "alice", "alice@example.com")
		open := newAccount(t, repo, "bob", "bob@example.com")
		newAccount(t, repo, "carol", "carol@example.com")
		require.NoError(t, repo.SetResetToken(context.Background(), expired.ID, "old", contractNow.Add(-time.Minute)))
		require.NoError(t, repo.SetResetToken(context.Background(), open.ID, "new", contractNow.Add(time.Hour)))

		cleared, err := repo.ClearExpiredResetTokens(context.Background(), contractNow)
		require.NoError(t, err)
		assert.Equal(t, int64(1), cleared)

		got, err := repo.GetByID(context.Background(), expired.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ResetTokenHash)
		assert.Nil(t, got.ResetTokenExpiry)

		_, err = repo.GetByResetToken(context.Background(), "new", contractNow)
		assert.NoError(t, err)
	})
}
