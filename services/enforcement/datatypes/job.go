// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// =============================================================================
// Enforcement Job
// =============================================================================

// TriggerType records what initiated an enforcement job.
type TriggerType string

const (
	TriggerManual TriggerType = "manual"
	TriggerAuto   TriggerType = "auto"
	TriggerRetry  TriggerType = "retry"
)

// JobStatus is the state of an enforcement job.
//
// The state machine is pending -> running -> {completed, partial, failed}.
// Terminal states are immutable; only the dispatcher drives transitions.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobPartial   JobStatus = "partial"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobPartial, JobFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from s
// to next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobRunning
	case JobRunning:
		return next.IsTerminal()
	}
	return false
}

// EnforcementJob is one fan-out attempt of a child's active policy to a set
// of target platforms.
//
// Jobs are created by the dispatcher and mutated only through the job
// tracker. Once a job reaches a terminal status neither the job nor its
// results change again; a retry produces a brand-new job.
type EnforcementJob struct {
	ID          string      `json:"id"`
	ChildID     string      `json:"child_id"`
	TriggerType TriggerType `json:"trigger_type"`
	Status      JobStatus   `json:"status"`

	// TargetPlatforms is the resolved fan-out set, recorded for history and
	// for retry computation.
	TargetPlatforms []string `json:"target_platforms"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// =============================================================================
// Rule Results
// =============================================================================

// ResultStatus is the outcome of pushing one rule to one platform.
type ResultStatus string

const (
	// ResultPushed means the platform accepted and applied the rule.
	ResultPushed ResultStatus = "pushed"

	// ResultSkipped means nothing was enforced programmatically; guided-tier
	// platforms always report skipped.
	ResultSkipped ResultStatus = "skipped"

	// ResultFailed means the adapter could not apply the rule.
	ResultFailed ResultStatus = "failed"

	// ResultUnsupported means the platform has no capability for the
	// category. This is an expected outcome, not a fault.
	ResultUnsupported ResultStatus = "unsupported"
)

// RuleResult is the outcome of one (job, platform, rule category) tuple.
// Results are written once and never mutated; retries create new jobs with
// their own results rather than rewriting history.
type RuleResult struct {
	JobID        string       `json:"job_id"`
	PlatformID   string       `json:"platform_id"`
	Category     RuleCategory `json:"category"`
	Status       ResultStatus `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ResultSummary aggregates result counts for API responses.
type ResultSummary struct {
	RulesApplied     int `json:"rules_applied"`
	RulesSkipped     int `json:"rules_skipped"`
	RulesFailed      int `json:"rules_failed"`
	RulesUnsupported int `json:"rules_unsupported"`
}

// Summarize counts results by status.
func Summarize(results []RuleResult) ResultSummary {
	var s ResultSummary
	for _, r := range results {
		switch r.Status {
		case ResultPushed:
			s.RulesApplied++
		case ResultSkipped:
			s.RulesSkipped++
		case ResultFailed:
			s.RulesFailed++
		case ResultUnsupported:
			s.RulesUnsupported++
		}
	}
	return s
}

// AggregateJobStatus derives the terminal job status from the multiset of
// rule result statuses. It is a pure function:
//
//   - completed: no failed results (an empty result set counts as completed;
//     an empty policy is a valid no-op)
//   - failed: every result failed, and there is at least one
//   - partial: at least one failed alongside at least one non-failed
func AggregateJobStatus(results []RuleResult) JobStatus {
	failed := 0
	for _, r := range results {
		if r.Status == ResultFailed {
			failed++
		}
	}
	switch {
	case failed == 0:
		return JobCompleted
	case failed == len(results):
		return JobFailed
	default:
		return JobPartial
	}
}
