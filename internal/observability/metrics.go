// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Lugadilu/TaskFlow/internal/auth"
	"github.com/Lugadilu/TaskFlow/internal/mail"
)

// Metrics contains the TaskFlow Prometheus counters.
type Metrics struct {
	AuthOperations *prometheus.CounterVec
	MailDeliveries *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// NewMetrics creates the TaskFlow counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		MailDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_mail_deliveries_total",
				Help: "Total number of outbound mail deliveries by status",
			},
			[]string{"status"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_http_requests_total",
				Help: "Total number of API requests by method, route pattern and status code",
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(m.AuthOperations, m.MailDeliveries, m.HTTPRequests)
	return m
}

// RecordOperation implements auth.Recorder.
func (m *Metrics) RecordOperation(operation, outcome string) {
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordDelivery implements mail.DeliveryRecorder.
func (m *Metrics) RecordDelivery(status string) {
	m.MailDeliveries.WithLabelValues(status).Inc()
}

// RecordHTTPRequest counts one API request. route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

var (
	_ auth.Recorder         = (*Metrics)(nil)
	_ mail.DeliveryRecorder = (*Metrics)(nil)
)
