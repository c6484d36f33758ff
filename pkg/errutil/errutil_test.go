// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lugadilu/TaskFlow/pkg/errutil"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"standard error", errors.New("plain"), ""},
		{"oops without code", oops.Errorf("no code"), ""},
		{"oops with code", oops.Code("AUTH_RATE_LIMITED").Errorf("slow down"), "AUTH_RATE_LIMITED"},
		{"wrapped by fmt", fmt.Errorf("outer: %w", oops.Code("INNER").Errorf("inner")), "INNER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.Code(tt.err))
		})
	}
}

func TestContext(t *testing.T) {
	assert.Nil(t, errutil.Context(errors.New("plain")))

	err := oops.With("field", "jwt.ttl").Errorf("invalid")
	assert.Equal(t, "jwt.ttl", errutil.Context(err)["field"])
}

func decodeLog(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("MIGRATIONS_PENDING").
		With("pending", 2).
		Hint("run `taskflow migrate up`").
		Errorf("schema is behind")

	errutil.LogError(logger, "startup failed", err)

	entry := decodeLog(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "startup failed", entry["msg"])
	assert.Equal(t, "MIGRATIONS_PENDING", entry["code"])
	assert.Equal(t, "run `taskflow migrate up`", entry["hint"])
	require.IsType(t, map[string]any{}, entry["context"])
	assert.InDelta(t, 2, entry["context"].(map[string]any)["pending"], 0)
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	entry := decodeLog(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
	assert.NotContains(t, entry, "code")
}

type ctxKey struct{}

// ctxHandler copies a context value into the record so tests can see which
// context reached the handler.
type ctxHandler struct{ slog.Handler }

func (h ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		r.AddAttrs(slog.String("request_id", v))
	}
	return h.Handler.Handle(ctx, r)
}

func TestLogErrorContext_PassesContextToHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ctxHandler{slog.NewJSONHandler(&buf, nil)})
	ctx := context.WithValue(context.Background(), ctxKey{}, "req-42")

	errutil.LogErrorContext(ctx, logger, "request failed", oops.Code("X").Errorf("boom"))

	assert.Equal(t, "req-42", decodeLog(t, &buf)["request_id"])
}

func TestAssertHelpers(t *testing.T) {
	err := oops.Code("MY_CODE").With("user_id", "123").Errorf("test error")
	errutil.AssertErrorCode(t, err, "MY_CODE")
	errutil.AssertErrorContext(t, err, "user_id", "123")
}

func TestHint(t *testing.T) {
	assert.Empty(t, errutil.Hint(errors.New("plain")))
	assert.Equal(t, "run `taskflow migrate up`",
		errutil.Hint(oops.Hint("run `taskflow migrate up`").Errorf("pending")))
}
