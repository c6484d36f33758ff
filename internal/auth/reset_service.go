// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package auth

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/Lugadilu/TaskFlow/internal/mail"
	"github.com/Lugadilu/TaskFlow/pkg/errutil"
)

// Reset flow defaults.
const (
	ResetTokenTTL      = time.Hour
	DefaultFrontendURL = "http://localhost:5173"

	// ResetRequestedMessage is returned by RequestReset whether or not the
	// email belongs to an account.
	ResetRequestedMessage = "If an account with that email exists, a password reset link has been sent."

	resetSubject = "Reset your TaskFlow password"
	resetPath    = "reset-password"
)

// Mailer hands a message to the delivery pipeline. Send returns once the
// message is queued, not when it is delivered.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// WithResetTTL sets how long a reset token stays valid.
func WithResetTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.resetTTL = ttl
		}
	}
}

// WithFrontendURL sets the base URL reset links point at.
func WithFrontendURL(base string) Option {
	return func(o *options) {
		if base != "" {
			o.frontendURL = base
		}
	}
}

var resetBody = template.Must(template.New("reset").Parse(`<p>Hello {{.Username}},</p>
<p>We received a request to reset the password for your TaskFlow account.</p>
<p><a href="{{.Link}}">Reset your password</a></p>
<p>This link expires in {{.Minutes}} minutes. If you did not ask for a reset, you can ignore this email.</p>
`))

// PasswordResetService handles the forgot-password and reset-password flow.
type PasswordResetService struct {
	accounts AccountRepository
	hasher   PasswordHasher
	mailer   Mailer
	resetURL *url.URL
	opts     options
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	accounts AccountRepository,
	hasher PasswordHasher,
	mailer Mailer,
	opts ...Option,
) (*PasswordResetService, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}

	o := applyOptions(opts)
	base, err := url.Parse(o.frontendURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, oops.Code("CONFIG_INVALID").
			With("field", "frontend.url").
			With("value", o.frontendURL).
			Errorf("frontend URL must be absolute")
	}

	return &PasswordResetService{
		accounts: accounts,
		hasher:   hasher,
		mailer:   mailer,
		resetURL: base.JoinPath(resetPath),
		opts:     o,
	}, nil
}

// RequestReset opens a reset window for the account with the given email and
// mails it a link. It returns ResetRequestedMessage on every path; failures
// are logged, never returned.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) string {
	ctx, span := startSpan(ctx, OpRequestReset)
	err := s.requestReset(ctx, NormalizeEmail(email))
	endSpan(span, s.opts.recorder, OpRequestReset, err)

	if err != nil && !errors.Is(err, ErrRateLimited) {
		errutil.LogErrorContext(ctx, s.opts.logger, "password reset request failed", err)
	}
	return ResetRequestedMessage
}

func (s *PasswordResetService) requestReset(ctx context.Context, email string) error {
	if email == "" {
		return nil
	}

	allowed, err := s.opts.throttle.Allow(ctx, ResetThrottleKey(email))
	if err != nil {
		errutil.LogErrorContext(ctx, s.opts.logger, "reset throttle unavailable, allowing request", err)
	} else if !allowed {
		return errRateLimited(OpRequestReset)
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "get account by email").Wrap(err)
	}

	token, err := GenerateToken(MinTokenBytes)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "generate token").Wrap(err)
	}

	expiry := s.opts.now().UTC().Add(s.opts.resetTTL)
	if err := s.accounts.SetResetToken(ctx, account.ID, HashToken(token), expiry); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "set reset token").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	msg, err := s.resetMessage(account, token)
	if err != nil {
		return err
	}
	// The token stays valid if queueing fails; the user can ask again.
	if err := s.mailer.Send(ctx, msg); err != nil {
		return oops.Code("RESET_MAIL_FAILED").
			With("operation", "send reset mail").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.opts.logger.InfoContext(ctx, "password reset requested", "account_id", account.ID.String())
	return nil
}

// ResetLink returns the frontend link that carries token.
func (s *PasswordResetService) ResetLink(token string) string {
	link := *s.resetURL
	q := link.Query()
	q.Set("token", token)
	link.RawQuery = q.Encode()
	return link.String()
}

func (s *PasswordResetService) resetMessage(account *Account, token string) (mail.Message, error) {
	var body bytes.Buffer
	err := resetBody.Execute(&body, struct {
		Username string
		Link     string
		Minutes  int
	}{
		Username: account.Username,
		Link:     s.ResetLink(token),
		Minutes:  int(s.opts.resetTTL / time.Minute),
	})
	if err != nil {
		return mail.Message{}, oops.Code("RESET_REQUEST_FAILED").With("operation", "render reset mail").Wrap(err)
	}
	return mail.Message{
		To:       account.Email,
		Subject:  resetSubject,
		HTMLBody: body.String(),
	}, nil
}

// ResetWithToken sets a new password for the account whose open reset window
// matches token, closing the window in the same write. Wrong, consumed and
// expired tokens all fail with ErrInvalidOrExpiredToken.
func (s *PasswordResetService) ResetWithToken(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := startSpan(ctx, OpResetPassword)
	defer func() { endSpan(span, s.opts.recorder, OpResetPassword, err) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return errInvalidRequest("token")
	}
	if newPassword == "" {
		return errInvalidRequest("newPassword")
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	id, err := s.accounts.ConsumeResetToken(ctx, HashToken(token), digest, s.opts.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errInvalidOrExpiredToken()
		}
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "consume reset token").Wrap(err)
	}

	s.opts.logger.InfoContext(ctx, "password reset completed", "account_id", id.String())
	return nil
}

// ValidateToken reports whether token matches an open reset window without
// consuming it.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) (err error) {
	ctx, span := startSpan(ctx, OpValidateReset)
	defer func() { endSpan(span, s.opts.recorder, OpValidateReset, err) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return errInvalidOrExpiredToken()
	}

	account, err := s.accounts.GetByResetToken(ctx, HashToken(token), s.opts.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errInvalidOrExpiredToken()
		}
		return oops.Code("RESET_VALIDATE_FAILED").With("operation", "get account by reset token").Wrap(err)
	}
	if !account.HasPendingReset(s.opts.now().UTC()) {
		return errInvalidOrExpiredToken()
	}
	return nil
}
