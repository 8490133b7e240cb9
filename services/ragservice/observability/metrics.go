// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics for the knowledge store service.
//
// # Description
//
// Two views of the same counters are maintained: Prometheus metrics for
// scraping (exposed on /metrics/prometheus) and plain in-process totals
// for the JSON snapshot served on /metrics. Both count every HTTP request
// by endpoint and outcome.
//
// # Thread Safety
//
// All operations are thread-safe.
package observability

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "oncehuman"

// Subsystem for knowledge store metrics
const ragSubsystem = "rag"

// ServiceMetrics holds the Prometheus metrics and snapshot totals for the
// knowledge store service.
type ServiceMetrics struct {
	// RequestsTotal counts HTTP requests by endpoint and status.
	// Labels: endpoint (query, add, update, delete, ...), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// DocumentCount tracks the number of documents currently held.
	DocumentCount prometheus.Gauge

	// QueryDurationSeconds measures similarity query latency.
	QueryDurationSeconds prometheus.Histogram

	requests  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
}

// DefaultMetrics is the singleton instance of ServiceMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ServiceMetrics

// InitMetrics creates and registers all metrics. Call once at startup;
// duplicate registration panics.
func InitMetrics() *ServiceMetrics {
	DefaultMetrics = &ServiceMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: ragSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		DocumentCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: ragSubsystem,
				Name:      "document_count",
				Help:      "Number of documents currently held by the store",
			},
		),

		QueryDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: ragSubsystem,
				Name:      "query_duration_seconds",
				Help:      "Similarity query latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
		),
	}
	return DefaultMetrics
}

// RecordRequest records one completed HTTP request.
func (m *ServiceMetrics) RecordRequest(endpoint string, success bool) {
	status := "success"
	m.requests.Add(1)
	if success {
		m.successes.Add(1)
	} else {
		status = "error"
		m.failures.Add(1)
	}
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// SetDocumentCount updates the document gauge.
func (m *ServiceMetrics) SetDocumentCount(n int) {
	m.DocumentCount.Set(float64(n))
}

// ObserveQueryDuration records one similarity query latency.
func (m *ServiceMetrics) ObserveQueryDuration(seconds float64) {
	m.QueryDurationSeconds.Observe(seconds)
}

// Snapshot is the JSON view served on /metrics.
type Snapshot struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	Requests      int64   `json:"requests"`
	Successes     int64   `json:"successes"`
	Failures      int64   `json:"failures"`
	DocumentCount int     `json:"document_count"`
}

// SnapshotTotals returns the cumulative request totals.
func (m *ServiceMetrics) SnapshotTotals() (requests, successes, failures int64) {
	return m.requests.Load(), m.successes.Load(), m.failures.Load()
}
