// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package auth

import (
	"context"

	"github.com/samber/oops"
)

// ResetSweeper closes reset windows whose expiry has passed. Expired tokens
// are already unusable; sweeping only tidies the stored pair.
type ResetSweeper struct {
	accounts AccountRepository
	opts     options
}

// NewResetSweeper creates a new ResetSweeper.
func NewResetSweeper(accounts AccountRepository, opts ...Option) (*ResetSweeper, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	return &ResetSweeper{accounts: accounts, opts: applyOptions(opts)}, nil
}

// Sweep clears every expired reset pair and returns how many were cleared.
func (s *ResetSweeper) Sweep(ctx context.Context) (cleared int64, err error) {
	ctx, span := startSpan(ctx, OpSweepResets)
	defer func() { endSpan(span, s.opts.recorder, OpSweepResets, err) }()

	cleared, err = s.accounts.ClearExpiredResetTokens(ctx, s.opts.now().UTC())
	if err != nil {
		return 0, oops.Code("RESET_SWEEP_FAILED").Wrap(err)
	}
	if cleared > 0 {
		s.opts.logger.InfoContext(ctx, "expired reset tokens cleared", "count", cleared)
	}
	return cleared, nil
}

// Run sweeps once and logs failures. It fits a cron job signature.
func (s *ResetSweeper) Run() {
	if _, err := s.Sweep(context.Background()); err != nil {
		s.opts.logger.Error("reset sweep failed", "error", err)
	}
}
