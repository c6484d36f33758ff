// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenTTL    = 24 * time.Hour
	MinSigningKeyBytes = 32
	DefaultIssuer      = "TaskFlowServer"
	DefaultAudience    = "TaskFlowClient"
)

// IssuerConfig is the process-wide signing configuration. It is built once at
// startup and never re-read.
type IssuerConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	TTL        time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	Email    string `json:"email"`
	Username string `json:"name"`
	jwt.RegisteredClaims
}

// AccountID parses the subject claim.
func (c *SessionClaims) AccountID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).With("operation", "parse subject").Wrap(ErrInvalidToken)
	}
	return id, nil
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

// NewTokenIssuer validates cfg and creates a TokenIssuer.
func NewTokenIssuer(cfg IssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, oops.Code("CONFIG_INVALID").With("field", "jwt.key").Errorf("signing key is required")
	}
	if len(cfg.SigningKey) < MinSigningKeyBytes {
		return nil, oops.Code("CONFIG_INVALID").
			With("field", "jwt.key").
			With("min_bytes", MinSigningKeyBytes).
			Errorf("signing key must be at least %d bytes", MinSigningKeyBytes)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.TTL <= 0 {
		cfg.TTL = SessionTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	return &TokenIssuer{
		key:      key,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      cfg.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(cfg.Now),
		),
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for the account that expires TTL after issuance.
func (i *TokenIssuer) Issue(accountID ulid.ULID, email, username string) (string, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return "", oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}

	now := i.now().UTC().Truncate(time.Second)
	claims := SessionClaims{
		Email:    email,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID.String(),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", oops.Code("SESSION_SIGN_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, expiry, issuer and audience. Any failure
// yields ErrInvalidToken.
func (i *TokenIssuer) Verify(token string) (*SessionClaims, error) {
	if token == "" {
		return nil, oops.Code(CodeInvalidToken).With("reason", "empty").Wrap(ErrInvalidToken)
	}

	claims := &SessionClaims{}
	parsed, err := i.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	})
	if err != nil {
		return nil, oops.Code(CodeInvalidToken).With("reason", err.Error()).Wrap(ErrInvalidToken)
	}
	if !parsed.Valid {
		return nil, oops.Code(CodeInvalidToken).With("reason", "invalid").Wrap(ErrInvalidToken)
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, err
	}
	return claims, nil
}
