// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

// Package mail delivers outbound email, either directly over SMTP or through
// an in-process or Redis-backed queue.
package mail

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/samber/oops"
)

// Message is one outbound HTML email.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}

// Validate checks that the message can be delivered.
func (m Message) Validate() error {
	if m.To == "" {
		return oops.Code("MAIL_INVALID_MESSAGE").With("field", "to").Errorf("recipient is required")
	}
	if m.Subject == "" {
		return oops.Code("MAIL_INVALID_MESSAGE").With("field", "subject").Errorf("subject is required")
	}
	return nil
}

// LogValue omits the body, which may carry a reset link.
func (m Message) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("to", m.To),
		slog.String("subject", m.Subject),
	)
}

func (m Message) marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, oops.Code("MAIL_ENCODE_FAILED").Wrap(err)
	}
	return data, nil
}

func unmarshalMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, oops.Code("MAIL_DECODE_FAILED").Wrap(err)
	}
	return m, nil
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
