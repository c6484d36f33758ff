// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"github.com/samber/oops"
)

// MinTokenBytes is the minimum entropy of a generated token (256 bits).
const MinTokenBytes = 32

// GenerateToken returns byteLength bytes from crypto/rand encoded as
// unpadded URL-safe base64.
func GenerateToken(byteLength int) (string, error) {
	if byteLength < MinTokenBytes {
		return "", oops.Code("TOKEN_TOO_SHORT").
			With("requested_bytes", byteLength).
			With("min_bytes", MinTokenBytes).
			Errorf("token must carry at least %d random bytes", MinTokenBytes)
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", byteLength).
			Wrap(err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken computes the hex SHA-256 of a token. Stores keep this value,
// never the plaintext token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyToken checks a plaintext token against a stored hash in constant time.
func VerifyToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}
