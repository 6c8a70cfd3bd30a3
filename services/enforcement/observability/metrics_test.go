// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics builds metrics on an isolated registry so tests never
// collide with the default registry or each other.
func newTestMetrics(t *testing.T) *EnforcementMetrics {
	t.Helper()
	return NewEnforcementMetrics(prometheus.NewRegistry())
}

func TestObserveJob(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveJob("manual", "completed")
	m.ObserveJob("manual", "completed")
	m.ObserveJob("retry", "partial")

	if got := testutil.ToFloat64(m.JobsTotal.WithLabelValues("manual", "completed")); got != 2 {
		t.Errorf("jobs_total{manual,completed} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.JobsTotal.WithLabelValues("retry", "partial")); got != 1 {
		t.Errorf("jobs_total{retry,partial} = %v, want 1", got)
	}
}

func TestObservePush(t *testing.T) {
	m := newTestMetrics(t)

	m.ObservePush("nextdns", "pushed", 120*time.Millisecond)
	m.ObservePush("nextdns", "failed", 30*time.Millisecond)

	if got := testutil.ToFloat64(m.RulePushesTotal.WithLabelValues("nextdns", "pushed")); got != 1 {
		t.Errorf("rule_pushes_total{nextdns,pushed} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.PushDurationSeconds); got != 1 {
		t.Errorf("push_duration_seconds series = %d, want 1", got)
	}
}

func TestDispatchStarted(t *testing.T) {
	m := newTestMetrics(t)

	done := m.DispatchStarted()
	if got := testutil.ToFloat64(m.ActiveDispatches); got != 1 {
		t.Errorf("active_dispatches = %v, want 1", got)
	}
	done()
	if got := testutil.ToFloat64(m.ActiveDispatches); got != 0 {
		t.Errorf("active_dispatches after done = %v, want 0", got)
	}
}

func TestObserveRejection(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveRejection("job_in_progress")
	if got := testutil.ToFloat64(m.JobsRejectedTotal.WithLabelValues("job_in_progress")); got != 1 {
		t.Errorf("jobs_rejected_total{job_in_progress} = %v, want 1", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *EnforcementMetrics

	// The dispatcher runs without metrics in tests; every observation must
	// be a no-op on a nil receiver.
	m.ObserveJob("manual", "completed")
	m.ObservePush("nextdns", "pushed", time.Second)
	m.ObserveRejection("no_active_policy")
	m.DispatchStarted()()
}
