// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lugadilu/TaskFlow/internal/auth"
	"github.com/Lugadilu/TaskFlow/pkg/errutil"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func newTestIssuer(t *testing.T, now func() time.Time) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{SigningKey: testSigningKey, Now: now})
	require.NoError(t, err)
	return issuer
}

func TestNewTokenIssuer(t *testing.T) {
	t.Run("requires a signing key", func(t *testing.T) {
		_, err := auth.NewTokenIssuer(auth.IssuerConfig{})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		errutil.AssertErrorContext(t, err, "field", "jwt.key")
	})

	t.Run("rejects short keys", func(t *testing.T) {
		_, err := auth.NewTokenIssuer(auth.IssuerConfig{SigningKey: []byte("short")})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("applies defaults", func(t *testing.T) {
		issuer := newTestIssuer(t, nil)
		assert.Equal(t, auth.SessionTokenTTL, issuer.TTL())
	})

	t.Run("copies the key", func(t *testing.T) {
		key := append([]byte(nil), testSigningKey...)
		issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{SigningKey: key})
		require.NoError(t, err)
		token, err := issuer.Issue(ulid.Make(), "a@x.com", "a")
		require.NoError(t, err)

		key[0] ^= 0xff
		_, err = issuer.Verify(token)
		assert.NoError(t, err)
	})
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, func() time.Time { return now })
	id := ulid.Make()

	token, err := issuer.Issue(id, "alice@x.com", "alice")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)

	gotID, err := claims.AccountID()
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "alice@x.com", claims.Email)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, auth.DefaultIssuer, claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{auth.DefaultAudience}, claims.Audience)
	assert.True(t, claims.IssuedAt.Equal(now))
	assert.True(t, claims.ExpiresAt.Equal(now.Add(24*time.Hour)))
	_, err = uuid.Parse(claims.ID)
	assert.NoError(t, err, "jti is a UUID")
}

func TestTokenIssuer_Issue_RejectsZeroAccount(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	_, err := issuer.Issue(ulid.ULID{}, "a@x.com", "a")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID_ACCOUNT")
}

func TestTokenIssuer_Verify_Rejects(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, func() time.Time { return now })
	valid, err := issuer.Issue(ulid.Make(), "alice@x.com", "alice")
	require.NoError(t, err)

	signWith := func(t *testing.T, method jwt.SigningMethod, key any, mutate func(*jwt.RegisteredClaims)) string {
		t.Helper()
		claims := auth.SessionClaims{
			Email: "alice@x.com",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   ulid.Make().String(),
				Issuer:    auth.DefaultIssuer,
				Audience:  jwt.ClaimStrings{auth.DefaultAudience},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
		if mutate != nil {
			mutate(&claims.RegisteredClaims)
		}
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}

	tamper := func(token string) string {
		parts := strings.Split(token, ".")
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		parts[2] = string(sig)
		return strings.Join(parts, ".")
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"tampered signature", tamper(valid)},
		{"other key", signWith(t, jwt.SigningMethodHS256, []byte("ffffffffffffffffffffffffffffffff"), nil)},
		{"other algorithm", signWith(t, jwt.SigningMethodHS512, testSigningKey, nil)},
		{"none algorithm", signWith(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, nil)},
		{"expired", signWith(t, jwt.SigningMethodHS256, testSigningKey, func(c *jwt.RegisteredClaims) {
			c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
		})},
		{"missing expiry", signWith(t, jwt.SigningMethodHS256, testSigningKey, func(c *jwt.RegisteredClaims) {
			c.ExpiresAt = nil
		})},
		{"wrong issuer", signWith(t, jwt.SigningMethodHS256, testSigningKey, func(c *jwt.RegisteredClaims) {
			c.Issuer = "someone-else"
		})},
		{"wrong audience", signWith(t, jwt.SigningMethodHS256, testSigningKey, func(c *jwt.RegisteredClaims) {
			c.Audience = jwt.ClaimStrings{"other-client"}
		})},
		{"subject is not an account ID", signWith(t, jwt.SigningMethodHS256, testSigningKey, func(c *jwt.RegisteredClaims) {
			c.Subject = "42"
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := issuer.Verify(tt.token)
			require.Error(t, err)
			assert.Nil(t, claims)
			assert.True(t, errors.Is(err, auth.ErrInvalidToken))
			errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
		})
	}
}

func TestTokenIssuer_Verify_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := now
	issuer := newTestIssuer(t, func() time.Time { return clock })

	token, err := issuer.Issue(ulid.Make(), "alice@x.com", "alice")
	require.NoError(t, err)

	clock = now.Add(24*time.Hour - time.Second)
	_, err = issuer.Verify(token)
	require.NoError(t, err)

	clock = now.Add(24*time.Hour + time.Second)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
