// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/Lugadilu/TaskFlow/internal/api"
	"github.com/Lugadilu/TaskFlow/internal/auth"
	"github.com/Lugadilu/TaskFlow/internal/auth/postgres"
	"github.com/Lugadilu/TaskFlow/internal/auth/sqlite"
	"github.com/Lugadilu/TaskFlow/internal/config"
	"github.com/Lugadilu/TaskFlow/internal/mail"
	"github.com/Lugadilu/TaskFlow/internal/observability"
	"github.com/Lugadilu/TaskFlow/internal/ratelimit"
	"github.com/Lugadilu/TaskFlow/internal/store"
)

// ipThrottlePrefix namespaces per-address counters. Login and reset keys
// carry their own prefix.
const ipThrottlePrefix = "ip:"

// app is a fully wired service. Nothing in it listens until serve starts it.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	accounts auth.AccountRepository
	auth     *auth.Service
	resets   *auth.PasswordResetService
	sweeper  *auth.ResetSweeper

	// limiters are the in-process throttles; they need periodic pruning.
	limiters []*ratelimit.MemoryLimiter

	// worker delivers queued mail when Redis is configured.
	worker *mail.QueueWorker

	obs     *observability.Server
	handler http.Handler
	ready   atomic.Bool

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

func (a *app) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("error releasing resource", "resource", c.name, "error", err)
		}
	}
	a.closers = nil
}

// buildApp wires every component from cfg. On error, whatever was already
// acquired is released.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	a.obs = observability.NewServer(cfg.Metrics.Addr, a.ready.Load, logger)
	metrics := a.obs.Metrics()

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	loginThrottle, resetThrottle, ipThrottle, err := a.throttles()
	if err != nil {
		return nil, err
	}

	mailer, err := a.mailer(metrics)
	if err != nil {
		return nil, err
	}

	hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{
		Memory:  cfg.Argon2.Memory,
		Time:    cfg.Argon2.Time,
		Threads: cfg.Argon2.Threads,
	})
	if err != nil {
		return nil, err
	}

	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		SigningKey: []byte(cfg.JWT.Key),
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		TTL:        cfg.JWT.TTL,
	})
	if err != nil {
		return nil, err
	}

	common := []auth.Option{auth.WithLogger(logger), auth.WithRecorder(metrics)}

	a.auth, err = auth.NewAuthService(a.accounts, hasher, issuer,
		append(common, auth.WithThrottle(loginThrottle))...)
	if err != nil {
		return nil, err
	}
	a.resets, err = auth.NewPasswordResetService(a.accounts, hasher, mailer,
		append(common,
			auth.WithThrottle(resetThrottle),
			auth.WithResetTTL(cfg.Reset.TTL),
			auth.WithFrontendURL(cfg.Frontend.URL))...)
	if err != nil {
		return nil, err
	}
	a.sweeper, err = auth.NewResetSweeper(a.accounts, common...)
	if err != nil {
		return nil, err
	}

	router, err := api.NewRouter(api.Config{
		Auth:        a.auth,
		Reset:       a.resets,
		IPThrottle:        ipThrottle,
		TrustProxyHeaders: cfg.HTTP.TrustProxy,
		Recorder:          metrics,
		Logger:            logger,
		CORSOrigins:       cfg.CORS.Origins,
	})
	if err != nil {
		return nil, err
	}
	a.handler = router
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, a.cfg.Database.URL)
		if err != nil {
			return err
		}
		a.onClose("sqlite", func(context.Context) error { return db.Close() })
		a.obs.AddCheck("store", db.PingContext)
		a.accounts = sqlite.NewAccountRepository(db)

	case config.DriverPostgres:
		if err := checkSchema(a.cfg.Database.URL); err != nil {
			return err
		}
		pool, err := store.Connect(ctx, a.cfg.Database.URL, store.ConnectOptions{Logger: a.logger})
		if err != nil {
			return err
		}
		a.onClose("postgres", func(context.Context) error { pool.Close(); return nil })
		a.obs.AddCheck("store", pool.Ping)
		a.accounts = postgres.NewAccountRepository(pool)

	default:
		return oops.Code(config.CodeInvalid).
			With("field", "database.driver").
			With("value", a.cfg.Database.Driver).
			Wrap(config.ErrInvalid)
	}

	a.logger.Info("account store ready", "driver", a.cfg.Database.Driver)
	return nil
}

// checkSchema refuses to serve against a PostgreSQL schema that is behind the
// embedded migrations.
func checkSchema(databaseURL string) (err error) {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	pending, err := m.Pending()
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return oops.Code("MIGRATIONS_PENDING").
			With("pending", pending).
			Hint("run `taskflow migrate up`").
			Errorf("database schema has %d pending migration(s)", len(pending))
	}
	return nil
}

// throttles builds the login, reset and per-IP limiters. With a Redis URL
// they share counters across instances; otherwise they live in process.
func (a *app) throttles() (login, reset, ip auth.Throttle, err error) {
	t := a.cfg.Throttle
	configs := []ratelimit.Config{
		{Max: t.LoginMax, Window: t.Window},
		{Max: t.ResetMax, Window: t.Window},
		{Prefix: ipThrottlePrefix, Max: t.IPMax, Window: t.Window},
	}
	out := make([]auth.Throttle, 0, len(configs))

	if a.cfg.Redis.URL == "" {
		for _, c := range configs {
			l, err := ratelimit.NewMemoryLimiter(c, nil)
			if err != nil {
				return nil, nil, nil, err
			}
			a.limiters = append(a.limiters, l)
			out = append(out, l)
		}
		return out[0], out[1], out[2], nil
	}

	opts, err := redis.ParseURL(a.cfg.Redis.URL)
	if err != nil {
		return nil, nil, nil, oops.Code(config.CodeInvalid).With("field", "redis.url").Wrap(err)
	}
	client := redis.NewClient(opts)
	a.onClose("redis", func(context.Context) error { return client.Close() })
	a.obs.AddCheck("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })

	for _, c := range configs {
		l, err := ratelimit.NewRedisLimiter(client, c)
		if err != nil {
			return nil, nil, nil, err
		}
		out = append(out, l)
	}
	return out[0], out[1], out[2], nil
}

// mailer builds the delivery pipeline: SMTP when a host is configured,
// logging otherwise, behind the asynq queue when Redis is configured and an
// in-process dispatcher when it is not.
func (a *app) mailer(metrics *observability.Metrics) (auth.Mailer, error) {
	var sender mail.Sender
	if a.cfg.SMTP.Host == "" {
		a.logger.Warn("no smtp host configured, reset mail will be logged instead of sent")
		sender = mail.NewLogSender(a.logger)
	} else {
		smtp, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:        a.cfg.SMTP.Host,
			Port:        a.cfg.SMTP.Port,
			Username:    a.cfg.SMTP.Username,
			Password:    a.cfg.SMTP.Password,
			FromAddress: a.cfg.Mail.FromAddress,
			FromName:    a.cfg.Mail.FromName,
		})
		if err != nil {
			return nil, err
		}
		sender = smtp
	}

	if a.cfg.Redis.URL == "" {
		d, err := mail.NewAsyncDispatcher(sender,
			mail.WithDispatchLogger(a.logger),
			mail.WithDeliveryRecorder(metrics))
		if err != nil {
			return nil, err
		}
		a.onClose("mail dispatcher", d.Close)
		return d, nil
	}

	connOpt, err := asynq.ParseRedisURI(a.cfg.Redis.URL)
	if err != nil {
		return nil, oops.Code(config.CodeInvalid).With("field", "redis.url").Wrap(err)
	}
	client := asynq.NewClient(connOpt)
	a.onClose("mail queue client", func(context.Context) error { return client.Close() })

	a.worker, err = mail.NewQueueWorker(sender, mail.QueueWorkerConfig{
		Redis:    connOpt,
		Logger:   a.logger,
		Recorder: metrics,
	})
	if err != nil {
		return nil, err
	}
	dispatcher, err := mail.NewQueueDispatcher(client)
	if err != nil {
		return nil, err
	}
	return dispatcher, nil
}
