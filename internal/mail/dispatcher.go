// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package mail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/Lugadilu/TaskFlow/pkg/errutil"
)

// Delivery statuses reported to a DeliveryRecorder.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusDropped = "dropped"
)

// ErrQueueFull is returned by AsyncDispatcher.Send when every queue slot is
// taken.
var ErrQueueFull = errors.New("mail queue full")

// ErrClosed is returned by AsyncDispatcher.Send after Close.
var ErrClosed = errors.New("mail dispatcher closed")

// DeliveryRecorder counts delivery outcomes.
type DeliveryRecorder interface {
	RecordDelivery(status string)
}

type nopDeliveryRecorder struct{}

func (nopDeliveryRecorder) RecordDelivery(string) {}

// DispatcherOption configures an AsyncDispatcher.
type DispatcherOption func(*AsyncDispatcher)

// WithWorkers sets the number of delivery goroutines.
func WithWorkers(n int) DispatcherOption {
	return func(d *AsyncDispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets how many messages may wait for a worker.
func WithQueueSize(n int) DispatcherOption {
	return func(d *AsyncDispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithSendTimeout bounds each delivery attempt.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *AsyncDispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithDispatchLogger sets the logger for delivery failures.
func WithDispatchLogger(logger *slog.Logger) DispatcherOption {
	return func(d *AsyncDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDeliveryRecorder sets the delivery outcome recorder.
func WithDeliveryRecorder(r DeliveryRecorder) DispatcherOption {
	return func(d *AsyncDispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// AsyncDispatcher queues messages in memory and delivers them from a fixed
// pool of workers. Queued messages are lost if the process exits before
// Close drains them.
type AsyncDispatcher struct {
	sender      Sender
	workers     int
	queueSize   int
	sendTimeout time.Duration
	logger      *slog.Logger
	recorder    DeliveryRecorder

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup
}

// NewAsyncDispatcher creates an AsyncDispatcher and starts its workers.
func NewAsyncDispatcher(sender Sender, opts ...DispatcherOption) (*AsyncDispatcher, error) {
	if sender == nil {
		return nil, oops.Errorf("mail sender is required")
	}
	d := &AsyncDispatcher{
		sender:      sender,
		workers:     2,
		queueSize:   100,
		sendTimeout: 30 * time.Second,
		logger:      slog.Default(),
		recorder:    nopDeliveryRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}

	d.queue = make(chan Message, d.queueSize)
	d.wg.Add(d.workers)
	for range d.workers {
		go d.work()
	}
	return d, nil
}

// Send queues msg and returns without waiting for delivery.
func (d *AsyncDispatcher) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return oops.Code("MAIL_DISPATCHER_CLOSED").Wrap(ErrClosed)
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		d.recorder.RecordDelivery(StatusDropped)
		return oops.Code("MAIL_QUEUE_FULL").With("queue_size", d.queueSize).Wrap(ErrQueueFull)
	}
}

func (d *AsyncDispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *AsyncDispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		d.recorder.RecordDelivery(StatusFailed)
		errutil.LogErrorContext(ctx, d.logger, "mail delivery failed", err)
		return
	}
	d.recorder.RecordDelivery(StatusSent)
}

// Close stops accepting messages and waits for queued ones to be delivered,
// or for ctx to end.
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("MAIL_DRAIN_TIMEOUT").With("pending", len(d.queue)).Wrap(ctx.Err())
	}
}
