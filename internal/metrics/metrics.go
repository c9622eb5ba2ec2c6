// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks imports, account cleanup and logins.
type Metrics struct {
	ImportRows      *prometheus.CounterVec
	ImportsRejected *prometheus.CounterVec
	ImportDuration  *prometheus.HistogramVec
	UsersCleaned    *prometheus.CounterVec
	Logins          *prometheus.CounterVec
}

// New registers all collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ImportRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "criminology_import_rows_total",
			Help: "CSV rows processed, by import kind and outcome (inserted or failed)",
		}, []string{"kind", "outcome"}),
		ImportsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "criminology_imports_rejected_total",
			Help: "CSV uploads rejected before any row was processed, by kind and reason",
		}, []string{"kind", "reason"}),
		ImportDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "criminology_import_duration_seconds",
			Help:    "Duration of accepted CSV imports",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		UsersCleaned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "criminology_expired_users_total",
			Help: "Expired accounts handled by the cleanup job, by mode",
		}, []string{"mode"}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "criminology_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveImport records the rows of a finished import.
func (m *Metrics) ObserveImport(kind string, inserted, failed int, start time.Time) {
	m.ImportRows.WithLabelValues(kind, "inserted").Add(float64(inserted))
	m.ImportRows.WithLabelValues(kind, "failed").Add(float64(failed))
	m.ImportDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// RejectImport records an upload refused as a whole.
func (m *Metrics) RejectImport(kind, reason string) {
	m.ImportsRejected.WithLabelValues(kind, reason).Inc()
}

// AddCleanedUsers records accounts handled by the cleanup job.
func (m *Metrics) AddCleanedUsers(mode string, n int64) {
	m.UsersCleaned.WithLabelValues(mode).Add(float64(n))
}

// Login records a login attempt.
func (m *Metrics) Login(outcome string) {
	m.Logins.WithLabelValues(outcome).Inc()
}
