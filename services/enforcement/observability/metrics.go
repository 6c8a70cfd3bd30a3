// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the
// enforcement engine.
//
// # Description
//
// This package implements Prometheus metrics for monitoring enforcement
// dispatch. Metrics include:
//   - Job counters (by trigger type and terminal status)
//   - Rule push counters (by platform and result status)
//   - Push latency histograms (per platform)
//   - Active dispatch gauge
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "guardian"

// Subsystem for enforcement metrics
const enforcementSubsystem = "enforcement"

// EnforcementMetrics holds all Prometheus metrics for dispatch operations.
//
// Initialize once at startup via NewEnforcementMetrics(). Passing a custom
// registerer keeps tests isolated; pass nil for the default registry.
type EnforcementMetrics struct {
	// JobsTotal counts finished jobs.
	// Labels: trigger (manual, auto, retry), status (completed, partial, failed)
	JobsTotal *prometheus.CounterVec

	// RulePushesTotal counts per-rule outcomes.
	// Labels: platform (slug), status (pushed, skipped, failed, unsupported)
	RulePushesTotal *prometheus.CounterVec

	// PushDurationSeconds measures adapter push latency.
	// Labels: platform (slug)
	PushDurationSeconds *prometheus.HistogramVec

	// ActiveDispatches gauges currently running fan-outs.
	ActiveDispatches prometheus.Gauge

	// JobsRejectedTotal counts dispatches refused before job creation.
	// Labels: reason (job_in_progress, no_active_policy, unknown_child)
	JobsRejectedTotal *prometheus.CounterVec
}

// NewEnforcementMetrics creates and registers all enforcement metrics.
func NewEnforcementMetrics(reg prometheus.Registerer) *EnforcementMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &EnforcementMetrics{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: enforcementSubsystem,
			Name:      "jobs_total",
			Help:      "Finished enforcement jobs by trigger and terminal status.",
		}, []string{"trigger", "status"}),

		RulePushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: enforcementSubsystem,
			Name:      "rule_pushes_total",
			Help:      "Per-rule outcomes by platform and result status.",
		}, []string{"platform", "status"}),

		PushDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: enforcementSubsystem,
			Name:      "push_duration_seconds",
			Help:      "Adapter push latency per platform.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform"}),

		ActiveDispatches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: enforcementSubsystem,
			Name:      "active_dispatches",
			Help:      "Fan-outs currently running.",
		}),

		JobsRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: enforcementSubsystem,
			Name:      "jobs_rejected_total",
			Help:      "Dispatches refused before any job was created.",
		}, []string{"reason"}),
	}
}

// ObserveJob records a finished job.
func (m *EnforcementMetrics) ObserveJob(trigger, status string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(trigger, status).Inc()
}

// ObservePush records one rule outcome and its latency.
func (m *EnforcementMetrics) ObservePush(platform, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RulePushesTotal.WithLabelValues(platform, status).Inc()
	m.PushDurationSeconds.WithLabelValues(platform).Observe(duration.Seconds())
}

// ObserveRejection records a dispatch refused before job creation.
func (m *EnforcementMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.JobsRejectedTotal.WithLabelValues(reason).Inc()
}

// DispatchStarted increments the active gauge and returns a done func.
func (m *EnforcementMetrics) DispatchStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveDispatches.Inc()
	return func() { m.ActiveDispatches.Dec() }
}
