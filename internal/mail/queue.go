// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package mail

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"
)

// TypeSendEmail is the asynq task type carrying a Message.
const TypeSendEmail = "email:send"

const (
	queueName      = "mail"
	taskMaxRetry   = 5
	taskTimeout    = 30 * time.Second
	taskRetention  = time.Hour
	defaultWorkers = 2
)

// Enqueuer is the part of *asynq.Client QueueDispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueDispatcher hands messages to a Redis-backed asynq queue. Delivery
// happens in a QueueWorker, possibly in another process, and survives
// restarts.
type QueueDispatcher struct {
	client Enqueuer
}

// NewQueueDispatcher creates a QueueDispatcher.
func NewQueueDispatcher(client Enqueuer) (*QueueDispatcher, error) {
	if client == nil {
		return nil, oops.Errorf("asynq client is required")
	}
	return &QueueDispatcher{client: client}, nil
}

// NewSendEmailTask encodes msg as an asynq task.
func NewSendEmailTask(msg Message) (*asynq.Task, error) {
	payload, err := msg.marshal()
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSendEmail, payload,
		asynq.Queue(queueName),
		asynq.MaxRetry(taskMaxRetry),
		asynq.Timeout(taskTimeout),
		asynq.Retention(taskRetention),
	), nil
}

// Send implements Sender by enqueueing msg.
func (d *QueueDispatcher) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	task, err := NewSendEmailTask(msg)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return oops.Code("MAIL_ENQUEUE_FAILED").With("to", msg.To, "subject", msg.Subject).Wrap(err)
	}
	return nil
}

// DeliveryHandler processes TypeSendEmail tasks by delivering them through a
// Sender.
type DeliveryHandler struct {
	sender   Sender
	recorder DeliveryRecorder
}

// NewDeliveryHandler creates a DeliveryHandler. A nil recorder counts nothing.
func NewDeliveryHandler(sender Sender, recorder DeliveryRecorder) *DeliveryHandler {
	if recorder == nil {
		recorder = nopDeliveryRecorder{}
	}
	return &DeliveryHandler{sender: sender, recorder: recorder}
}

// ProcessTask implements asynq.Handler. Undecodable or invalid payloads are
// not retried.
func (h *DeliveryHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	msg, err := unmarshalMessage(task.Payload())
	if err != nil {
		h.recorder.RecordDelivery(StatusDropped)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err := msg.Validate(); err != nil {
		h.recorder.RecordDelivery(StatusDropped)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err := h.sender.Send(ctx, msg); err != nil {
		h.recorder.RecordDelivery(StatusFailed)
		return err
	}
	h.recorder.RecordDelivery(StatusSent)
	return nil
}

// QueueWorker runs an asynq server delivering queued mail.
type QueueWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// QueueWorkerConfig configures a QueueWorker.
type QueueWorkerConfig struct {
	Redis       asynq.RedisConnOpt
	Concurrency int
	Logger      *slog.Logger
	Recorder    DeliveryRecorder
}

// NewQueueWorker creates a QueueWorker that delivers through sender.
func NewQueueWorker(sender Sender, cfg QueueWorkerConfig) (*QueueWorker, error) {
	if sender == nil {
		return nil, oops.Errorf("mail sender is required")
	}
	if cfg.Redis == nil {
		return nil, oops.Code("CONFIG_INVALID").With("field", "redis.url").Errorf("redis connection is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	server := asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{queueName: 1},
		Logger:      &asynqLogger{logger: cfg.Logger.With("component", "mail_worker")},
		LogLevel:    asynq.WarnLevel,
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeSendEmail, NewDeliveryHandler(sender, cfg.Recorder))
	return &QueueWorker{server: server, mux: mux}, nil
}

// Start begins processing tasks in background goroutines.
func (w *QueueWorker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return oops.Code("MAIL_WORKER_START_FAILED").Wrap(err)
	}
	return nil
}

// Shutdown waits for in-flight tasks and stops the worker.
func (w *QueueWorker) Shutdown() {
	w.server.Shutdown()
}

// asynqLogger routes asynq's logging into slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...), "fatal", true)
	os.Exit(1)
}

var (
	_ Sender        = (*QueueDispatcher)(nil)
	_ asynq.Handler = (*DeliveryHandler)(nil)
	_ asynq.Logger  = (*asynqLogger)(nil)
)
