// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package mail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lugadilu/TaskFlow/pkg/errutil"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestQueueDispatcher_Send(t *testing.T) {
	enq := &fakeEnqueuer{}
	d, err := NewQueueDispatcher(enq)
	require.NoError(t, err)

	require.NoError(t, d.Send(context.Background(), resetMail))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TypeSendEmail, enq.tasks[0].Type())

	decoded, err := unmarshalMessage(enq.tasks[0].Payload())
	require.NoError(t, err)
	assert.Equal(t, resetMail, decoded)
}

func TestQueueDispatcher_Errors(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	d, err := NewQueueDispatcher(enq)
	require.NoError(t, err)

	errutil.AssertErrorCode(t, d.Send(context.Background(), resetMail), "MAIL_ENQUEUE_FAILED")
	errutil.AssertErrorCode(t, d.Send(context.Background(), Message{}), "MAIL_INVALID_MESSAGE")

	_, err = NewQueueDispatcher(nil)
	assert.Error(t, err)
}

func TestQueueDispatcher_EnqueueFailureKeepsBodyOutOfLogs(t *testing.T) {
	d, err := NewQueueDispatcher(&fakeEnqueuer{err: errors.New("redis down")})
	require.NoError(t, err)

	sendErr := d.Send(context.Background(), resetMail)
	errutil.AssertErrorContext(t, sendErr, "to", "alice@example.com")
	assert.NotContains(t, errutil.Context(sendErr), "message")

	var buf bytes.Buffer
	errutil.LogError(slog.New(slog.NewJSONHandler(&buf, nil)), "password reset request failed", sendErr)
	assert.Contains(t, buf.String(), "MAIL_ENQUEUE_FAILED")
	assert.NotContains(t, buf.String(), "token=")
	assert.NotContains(t, buf.String(), "html_body")
}

func TestDeliveryHandler_ProcessTask(t *testing.T) {
	t.Run("delivers decoded message", func(t *testing.T) {
		sender := &recordingSender{}
		rec := &countingRecorder{}
		h := NewDeliveryHandler(sender, rec)

		task, err := NewSendEmailTask(resetMail)
		require.NoError(t, err)
		require.NoError(t, h.ProcessTask(context.Background(), task))

		assert.Equal(t, []Message{resetMail}, sender.Sent())
		assert.Equal(t, 1, rec.Count(StatusSent))
	})

	t.Run("delivery failure is retried", func(t *testing.T) {
		rec := &countingRecorder{}
		h := NewDeliveryHandler(&recordingSender{err: errors.New("451 try later")}, rec)

		task, err := NewSendEmailTask(resetMail)
		require.NoError(t, err)
		err = h.ProcessTask(context.Background(), task)
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
		assert.Equal(t, 1, rec.Count(StatusFailed))
	})

	t.Run("bad payload skips retry", func(t *testing.T) {
		rec := &countingRecorder{}
		h := NewDeliveryHandler(&recordingSender{}, rec)

		err := h.ProcessTask(context.Background(), asynq.NewTask(TypeSendEmail, []byte("garbage")))
		assert.ErrorIs(t, err, asynq.SkipRetry)

		err = h.ProcessTask(context.Background(), asynq.NewTask(TypeSendEmail, []byte(`{"to":""}`)))
		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Equal(t, 2, rec.Count(StatusDropped))
	})
}

func TestNewQueueWorker_Validation(t *testing.T) {
	_, err := NewQueueWorker(nil, QueueWorkerConfig{Redis: asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}})
	assert.Error(t, err)

	_, err = NewQueueWorker(&recordingSender{}, QueueWorkerConfig{})
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}
