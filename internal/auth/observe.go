// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package auth

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Operation names reported to a Recorder and used as span names.
const (
	OpRegister      = "register"
	OpLogin         = "login"
	OpRequestReset  = "request_reset"
	OpResetPassword = "reset_password"
	OpValidateReset = "validate_reset"
	OpSweepResets   = "sweep_resets"
)

// Outcomes reported to a Recorder.
const (
	OutcomeSuccess            = "success"
	OutcomeAlreadyExists      = "already_exists"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeInvalidRequest     = "invalid_request"
	OutcomeInvalidToken       = "invalid_token"
	OutcomeRateLimited        = "rate_limited"
	OutcomeError              = "error"
)

// Recorder receives one call per finished service operation.
type Recorder interface {
	RecordOperation(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string) {}

var tracer = otel.Tracer("github.com/Lugadilu/TaskFlow/internal/auth")

func startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "auth."+operation, trace.WithAttributes(
		attribute.String("auth.operation", operation),
	))
}

// OutcomeOf classifies an operation result for metrics and spans.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrAlreadyExists):
		return OutcomeAlreadyExists
	case errors.Is(err, ErrInvalidCredentials):
		return OutcomeInvalidCredentials
	case errors.Is(err, ErrInvalidRequest):
		return OutcomeInvalidRequest
	case errors.Is(err, ErrInvalidOrExpiredToken), errors.Is(err, ErrInvalidToken):
		return OutcomeInvalidToken
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	default:
		return OutcomeError
	}
}

// endSpan closes span with the outcome of err and reports it.
func endSpan(span trace.Span, rec Recorder, operation string, err error) {
	outcome := OutcomeOf(err)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if outcome == OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
	rec.RecordOperation(operation, outcome)
}
