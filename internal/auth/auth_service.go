// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/Lugadilu/TaskFlow/pkg/errutil"
)

// Option configures a Service or PasswordResetService.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	throttle    Throttle
	now         func() time.Time
	recorder    Recorder
	resetTTL    time.Duration
	frontendURL string
}

func defaultOptions() options {
	return options{
		logger:      slog.Default(),
		throttle:    NoThrottle{},
		now:         time.Now,
		recorder:    nopRecorder{},
		resetTTL:    ResetTokenTTL,
		frontendURL: DefaultFrontendURL,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithThrottle sets the attempt throttle.
func WithThrottle(t Throttle) Option {
	return func(o *options) {
		if t != nil {
			o.throttle = t
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRecorder sets the operation recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// Service registers accounts and logs them in.
type Service struct {
	accounts AccountRepository
	hasher   PasswordHasher
	issuer   *TokenIssuer
	opts     options

	// dummyDigest is verified against when the email is unknown so both
	// failure paths cost one hash verification.
	dummyDigest string
}

// NewAuthService creates a new Service.
func NewAuthService(accounts AccountRepository, hasher PasswordHasher, issuer *TokenIssuer, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}

	filler, err := GenerateToken(MinTokenBytes)
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").With("operation", "generate dummy password").Wrap(err)
	}
	dummy, err := hasher.Hash(filler)
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").With("operation", "hash dummy password").Wrap(err)
	}

	return &Service{
		accounts:    accounts,
		hasher:      hasher,
		issuer:      issuer,
		opts:        applyOptions(opts),
		dummyDigest: dummy,
	}, nil
}

// Register creates an account. No session token is issued; the caller must
// log in separately.
func (s *Service) Register(ctx context.Context, username, email, password string) (account *Account, err error) {
	ctx, span := startSpan(ctx, OpRegister)
	defer func() { endSpan(span, s.opts.recorder, OpRegister, err) }()

	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)
	switch {
	case username == "":
		return nil, errInvalidRequest("username")
	case email == "":
		return nil, errInvalidRequest("email")
	case password == "":
		return nil, errInvalidRequest("password")
	}
	if vErr := ValidateUsername(username); vErr != nil {
		return nil, oops.Code(CodeInvalidRequest).
			With("field", "username").
			With("reason", vErr.Error()).
			Wrap(ErrInvalidRequest)
	}

	_, lookupErr := s.accounts.GetByEmail(ctx, email)
	switch {
	case lookupErr == nil:
		return nil, oops.Code(CodeAlreadyExists).Wrap(ErrAlreadyExists)
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "get account by email").
			Wrap(lookupErr)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	account, err = NewAccount(username, email, digest, s.opts.now())
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "new account").Wrap(err)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code(CodeAlreadyExists).Wrap(ErrAlreadyExists)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create account").Wrap(err)
	}

	s.opts.logger.InfoContext(ctx, "account registered", "account", account)
	return account, nil
}

// Login verifies an email and password and returns a signed session token.
// Unknown emails and wrong passwords fail identically with ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (token string, err error) {
	ctx, span := startSpan(ctx, OpLogin)
	defer func() { endSpan(span, s.opts.recorder, OpLogin, err) }()

	email = NormalizeEmail(email)
	throttleKey := LoginThrottleKey(email)

	allowed, throttleErr := s.opts.throttle.Allow(ctx, throttleKey)
	if throttleErr != nil {
		errutil.LogErrorContext(ctx, s.opts.logger, "login throttle unavailable, allowing attempt", throttleErr)
	} else if !allowed {
		return "", errRateLimited(OpLogin)
	}

	var account *Account
	if email != "" {
		found, lookupErr := s.accounts.GetByEmail(ctx, email)
		switch {
		case lookupErr == nil:
			account = found
		case !errors.Is(lookupErr, ErrNotFound):
			return "", oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get account by email").
				Wrap(lookupErr)
		}
	}

	if account == nil {
		// Spend the same verification cost as a real account.
		s.hasher.Verify(password, s.dummyDigest)
		return "", errInvalidCredentials()
	}
	// Verify runs even for an empty password so a known email costs the
	// same as an unknown one.
	if ok := s.hasher.Verify(password, account.PasswordHash); !ok || password == "" {
		return "", errInvalidCredentials()
	}

	if resetErr := s.opts.throttle.Reset(ctx, throttleKey); resetErr != nil {
		s.opts.logger.WarnContext(ctx, "best-effort throttle reset failed",
			"operation", "reset_login_throttle",
			"error", resetErr)
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeDigest(ctx, account, password)
	}

	token, err = s.issuer.Issue(account.ID, account.Email, account.Username)
	if err != nil {
		return "", oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue session token").Wrap(err)
	}
	return token, nil
}

// upgradeDigest rehashes a legacy or outdated digest. The write only lands
// while the stored digest is still the one verified, so a reset completed in
// the meantime wins. Login succeeds regardless of the outcome.
func (s *Service) upgradeDigest(ctx context.Context, account *Account, password string) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		s.opts.logger.WarnContext(ctx, "best-effort digest upgrade failed",
			"operation", "hash_password",
			"account_id", account.ID.String(),
			"error", err)
		return
	}

	err = s.accounts.UpgradePasswordHash(ctx, account.ID, account.PasswordHash, digest, s.opts.now().UTC())
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		s.opts.logger.DebugContext(ctx, "digest changed since login, upgrade skipped",
			"account_id", account.ID.String())
	default:
		s.opts.logger.WarnContext(ctx, "best-effort digest upgrade failed",
			"operation", "upgrade_password_hash",
			"account_id", account.ID.String(),
			"error", err)
	}
}

// ValidateSession verifies a session token issued by Login.
func (s *Service) ValidateSession(token string) (*SessionClaims, error) {
	return s.issuer.Verify(token)
}

// CurrentAccount loads the account a verified session belongs to. A session
// whose account no longer exists is an invalid session.
func (s *Service) CurrentAccount(ctx context.Context, claims *SessionClaims) (*Account, error) {
	id, err := claims.AccountID()
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code(CodeInvalidToken).
			With("operation", "load session account").
			With("account_id", id.String()).
			Wrap(ErrInvalidToken)
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOOKUP_FAILED").
			With("operation", "load session account").
			With("account_id", id.String()).
			Wrap(err)
	}
	return account, nil
}
