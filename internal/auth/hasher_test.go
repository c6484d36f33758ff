// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Lugadilu/TaskFlow/internal/auth"
	"github.com/Lugadilu/TaskFlow/pkg/errutil"
)

// cheapParams keeps argon2 fast in tests.
var cheapParams = auth.Argon2Params{Memory: 1024, Time: 1, Threads: 1}

func newTestHasher(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasherWithParams(cheapParams)
	require.NoError(t, err)
	return h
}

func TestHashPassword(t *testing.T) {
	hasher := newTestHasher(t)

	t.Run("produces PHC encoded argon2id digest", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
		assert.Len(t, strings.Split(hash, "$"), 6)
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.ErrorIs(t, err, auth.ErrEmptyPassword)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := newTestHasher(t)

	hash, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		assert.True(t, hasher.Verify("correctpassword", hash))
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		assert.False(t, hasher.Verify("wrongpassword", hash))
	})

	t.Run("empty password fails", func(t *testing.T) {
		assert.False(t, hasher.Verify("", hash))
	})

	t.Run("digest from other parameters still verifies", func(t *testing.T) {
		other, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Memory: 2048, Time: 2, Threads: 2})
		require.NoError(t, err)
		otherHash, err := other.Hash("correctpassword")
		require.NoError(t, err)

		assert.True(t, hasher.Verify("correctpassword", otherHash))
	})
}

func TestVerifyPassword_MalformedDigests(t *testing.T) {
	hasher := newTestHasher(t)

	tests := []struct {
		name   string
		digest string
	}{
		{"empty", ""},
		{"not a PHC string", "invalid"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"invalid version format", "$argon2id$vX$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"unsupported version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"invalid parameters format", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"zero memory", "$argon2id$v=19$m=0,t=1,p=4$c2FsdA$aGFzaA"},
		{"memory above maximum", "$argon2id$v=19$m=4294967295,t=1,p=4$c2FsdA$aGFzaA"},
		{"memory just above maximum", "$argon2id$v=19$m=1048577,t=1,p=4$c2FsdA$aGFzaA"},
		{"time above maximum", "$argon2id$v=19$m=8,t=4294967295,p=1$c2FsdA$aGFzaA"},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA"},
		{"invalid salt base64", "$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA"},
		{"invalid hash base64", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!"},
		{"empty key", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, hasher.Verify("password", tt.digest))
			})
		})
	}
}

func TestVerifyBcryptUpgrade(t *testing.T) {
	hasher := newTestHasher(t)

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("verifies bcrypt digest", func(t *testing.T) {
		assert.True(t, hasher.Verify("legacy-password", string(legacy)))
		assert.False(t, hasher.Verify("other-password", string(legacy)))
	})

	t.Run("bcrypt digest needs upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade(string(legacy)))
	})

	t.Run("argon2id digest with current parameters does not need upgrade", func(t *testing.T) {
		hash, err := hasher.Hash("password")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsUpgrade(hash))
	})

	t.Run("argon2id digest with other parameters needs upgrade", func(t *testing.T) {
		other, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Memory: 2048, Time: 1, Threads: 1})
		require.NoError(t, err)
		hash, err := other.Hash("password")
		require.NoError(t, err)
		assert.True(t, hasher.NeedsUpgrade(hash))
	})
}

func TestNewArgon2idHasherWithParams(t *testing.T) {
	t.Run("rejects zero cost", func(t *testing.T) {
		_, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Memory: 0, Time: 1, Threads: 1})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_HASHER_PARAMS")
	})

	t.Run("rejects cost it would refuse to verify", func(t *testing.T) {
		_, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Memory: auth.MaxArgon2Memory + 1, Time: 1, Threads: 1})
		errutil.AssertErrorCode(t, err, "AUTH_HASHER_PARAMS")
		_, err = auth.NewArgon2idHasherWithParams(auth.Argon2Params{Memory: 8, Time: auth.MaxArgon2Time + 1, Threads: 1})
		errutil.AssertErrorCode(t, err, "AUTH_HASHER_PARAMS")
	})

	t.Run("fills salt and key length defaults", func(t *testing.T) {
		h, err := auth.NewArgon2idHasherWithParams(cheapParams)
		require.NoError(t, err)
		hash, err := h.Hash("pw")
		require.NoError(t, err)

		// 16-byte salt and 32-byte key in unpadded base64.
		parts := strings.Split(hash, "$")
		assert.Len(t, parts[4], 22)
		assert.Len(t, parts[5], 43)
	})

	t.Run("default hasher uses recommended parameters", func(t *testing.T) {
		assert.Equal(t, auth.Argon2Params{Memory: 64 * 1024, Time: 1, Threads: 4, SaltLen: 16, KeyLen: 32},
			auth.DefaultArgon2Params())
	})
}
