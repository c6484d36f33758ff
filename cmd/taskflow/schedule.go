// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package main

import (
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/samber/oops"

	"github.com/Lugadilu/TaskFlow/internal/config"
)

// pruneSchedule drops ended in-process throttle windows.
const pruneSchedule = "@every 1m"

// cronLogger routes cron's logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// scheduler registers the background jobs. The caller starts and stops it.
func (a *app) scheduler() (*cron.Cron, error) {
	logger := cronLogger{logger: a.logger.With("component", "cron")}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(a.cfg.Reset.Sweep, a.sweeper.Run); err != nil {
		return nil, oops.Code(config.CodeInvalid).
			With("field", "reset.sweep").
			With("value", a.cfg.Reset.Sweep).
			Wrap(err)
	}
	if len(a.limiters) > 0 {
		if _, err := c.AddFunc(pruneSchedule, a.pruneLimiters); err != nil {
			return nil, oops.With("job", "prune throttles").Wrap(err)
		}
	}
	return c, nil
}

func (a *app) pruneLimiters() {
	dropped := 0
	for _, l := range a.limiters {
		dropped += l.Prune()
	}
	if dropped > 0 {
		a.logger.Debug("pruned throttle windows", "count", dropped)
	}
}
