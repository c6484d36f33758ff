// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package authtest

import (
	"context"
	"net/url"
	"regexp"
	"sync"

	"github.com/Lugadilu/TaskFlow/internal/mail"
)

// Mailer records every message it is handed.
type Mailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

// NewMailer creates a recording mailer.
func NewMailer() *Mailer {
	return &Mailer{}
}

// Send records msg and returns the configured error, if any.
func (m *Mailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// SetError makes subsequent Send calls fail with err.
func (m *Mailer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Sent returns a copy of the recorded messages.
func (m *Mailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

var hrefPattern = regexp.MustCompile(`href="([^"]+)"`)

// LastToken returns the reset token linked in the most recent message, or ""
// when there is none.
func (m *Mailer) LastToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	match := hrefPattern.FindStringSubmatch(m.sent[len(m.sent)-1].HTMLBody)
	if len(match) != 2 {
		return ""
	}
	link, err := url.Parse(match[1])
	if err != nil {
		return ""
	}
	return link.Query().Get("token")
}
