// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package jobs owns the enforcement job lifecycle.
//
// The Tracker is the only component that writes job and result records. The
// dispatcher drives transitions through it; everything else (handlers, the
// CLI, the retry path) reads projections. The state machine is
//
//	pending -> running -> {completed, partial, failed}
//
// and terminal states are immutable — a retry never reopens a job, it
// creates a new one.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/store"
)

// Tracker persists jobs and rule results and enforces the job state machine.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying store serializes writes per key
// and the dispatcher guarantees a single writer per job.
type Tracker struct {
	store  store.JobStore
	logger *slog.Logger
}

// NewTracker wires the tracker to its store.
func NewTracker(jobStore store.JobStore, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: jobStore, logger: logger}
}

// Create persists a new job in the pending state.
func (t *Tracker) Create(ctx context.Context, childID string, trigger datatypes.TriggerType, targetPlatforms []string) (*datatypes.EnforcementJob, error) {
	job := &datatypes.EnforcementJob{
		ID:              uuid.NewString(),
		ChildID:         childID,
		TriggerType:     trigger,
		Status:          datatypes.JobPending,
		TargetPlatforms: targetPlatforms,
		CreatedAt:       time.Now().UTC(),
	}
	if err := t.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	t.logger.Info("enforcement job created",
		"job_id", job.ID, "child_id", childID, "trigger", trigger,
		"platforms", len(targetPlatforms))
	return job, nil
}

// Start transitions a job from pending to running.
func (t *Tracker) Start(ctx context.Context, job *datatypes.EnforcementJob) error {
	if !job.Status.CanTransitionTo(datatypes.JobRunning) {
		return fmt.Errorf("job %s: %s -> running: %w", job.ID, job.Status, store.ErrInvalidTransition)
	}
	now := time.Now().UTC()
	job.Status = datatypes.JobRunning
	job.StartedAt = &now
	return t.store.UpdateJob(ctx, job)
}

// Complete appends the collected results, derives the terminal status from
// their multiset, and closes the job. Returns the terminal status.
func (t *Tracker) Complete(ctx context.Context, job *datatypes.EnforcementJob, results []datatypes.RuleResult) (datatypes.JobStatus, error) {
	if err := t.store.AppendResults(ctx, job.ID, results); err != nil {
		return "", fmt.Errorf("persist results for job %s: %w", job.ID, err)
	}

	terminal := datatypes.AggregateJobStatus(results)
	if !job.Status.CanTransitionTo(terminal) {
		return "", fmt.Errorf("job %s: %s -> %s: %w", job.ID, job.Status, terminal, store.ErrInvalidTransition)
	}
	now := time.Now().UTC()
	job.Status = terminal
	job.CompletedAt = &now
	if err := t.store.UpdateJob(ctx, job); err != nil {
		return "", err
	}

	summary := datatypes.Summarize(results)
	t.logger.Info("enforcement job finished",
		"job_id", job.ID, "status", terminal,
		"pushed", summary.RulesApplied, "skipped", summary.RulesSkipped,
		"failed", summary.RulesFailed, "unsupported", summary.RulesUnsupported)
	return terminal, nil
}

// Get returns one job by ID.
func (t *Tracker) Get(ctx context.Context, jobID string) (*datatypes.EnforcementJob, error) {
	return t.store.GetJob(ctx, jobID)
}

// List returns a child's jobs, newest first.
func (t *Tracker) List(ctx context.Context, childID string) ([]datatypes.EnforcementJob, error) {
	return t.store.ListJobs(ctx, childID)
}

// Results returns every rule result recorded for a job.
func (t *Tracker) Results(ctx context.Context, jobID string) ([]datatypes.RuleResult, error) {
	return t.store.ListResults(ctx, jobID)
}

// FailedPairs returns the (platform, category) pairs whose result in the
// given job was failed. Retry uses this to compute the re-dispatch subset;
// pushed, skipped, and unsupported results are never re-sent.
func (t *Tracker) FailedPairs(ctx context.Context, jobID string) (map[string][]datatypes.RuleCategory, error) {
	results, err := t.store.ListResults(ctx, jobID)
	if err != nil {
		return nil, err
	}
	pairs := make(map[string][]datatypes.RuleCategory)
	for _, r := range results {
		if r.Status == datatypes.ResultFailed {
			pairs[r.PlatformID] = append(pairs[r.PlatformID], r.Category)
		}
	}
	return pairs, nil
}
