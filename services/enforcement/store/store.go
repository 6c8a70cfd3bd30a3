// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the persistence contracts consumed by the
// enforcement engine, plus the local BadgerDB implementation.
//
// Two kinds of data live behind these interfaces:
//
//   - Collaborator-owned records the engine only reads (policies, rules) or
//     reads plus sync-bookkeeping writes (platforms). In the appliance these
//     are mirrored locally by the management service.
//   - Engine-owned records (enforcement jobs, rule results) whose lifecycle
//     belongs exclusively to the job tracker.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

// Sentinel errors shared by all store implementations.
var (
	// ErrJobNotFound is returned when a job ID does not exist.
	ErrJobNotFound = errors.New("enforcement job not found")

	// ErrPlatformNotFound is returned when a platform slug is not connected
	// for the family in question.
	ErrPlatformNotFound = errors.New("platform not found")

	// ErrChildNotFound is returned when a child ID is unknown.
	ErrChildNotFound = errors.New("child not found")

	// ErrTerminalJob is returned on any attempt to mutate a job that has
	// already reached a terminal status.
	ErrTerminalJob = errors.New("job is in a terminal state")

	// ErrInvalidTransition is returned when a status change violates the
	// job state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// PolicyStore provides read-only access to policies and rules. Owned by the
// policy-management collaborator.
type PolicyStore interface {
	// GetActivePolicy returns the single active policy for a child, or
	// ErrChildNotFound / a nil policy when none exists.
	GetActivePolicy(ctx context.Context, childID string) (*datatypes.Policy, error)

	// ListEnabledRules returns the enabled rules of a policy, unordered.
	ListEnabledRules(ctx context.Context, policyID string) ([]datatypes.Rule, error)
}

// PlatformStore provides access to connected platform records. Owned by the
// connection-management collaborator; the engine writes back only the sync
// bookkeeping fields.
type PlatformStore interface {
	// GetPlatform returns one platform record by slug for a child's family.
	GetPlatform(ctx context.Context, childID, platformID string) (*datatypes.Platform, error)

	// ListConnectedPlatforms returns every platform with status "connected"
	// for the child's family.
	ListConnectedPlatforms(ctx context.Context, childID string) ([]datatypes.Platform, error)

	// RecordSyncOutcome writes the post-job bookkeeping for one platform:
	// on success increments SyncVersion, stamps LastSyncAt, and restores
	// status to connected; on failure flips status to error and stores the
	// first failure message.
	RecordSyncOutcome(ctx context.Context, childID, platformID string, ok bool, errorMessage string) error
}

// JobStore persists enforcement jobs and their rule results. Owned
// exclusively by the job tracker.
type JobStore interface {
	// CreateJob persists a new job record.
	CreateJob(ctx context.Context, job *datatypes.EnforcementJob) error

	// UpdateJob rewrites an existing job record. Implementations must
	// reject updates to jobs already terminal (ErrTerminalJob).
	UpdateJob(ctx context.Context, job *datatypes.EnforcementJob) error

	// GetJob returns a job by ID, or ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*datatypes.EnforcementJob, error)

	// ListJobs returns every job for a child, newest first.
	ListJobs(ctx context.Context, childID string) ([]datatypes.EnforcementJob, error)

	// AppendResults persists rule results for a job. Results are
	// write-once; implementations never overwrite an existing tuple.
	AppendResults(ctx context.Context, jobID string, results []datatypes.RuleResult) error

	// ListResults returns every rule result recorded for a job.
	ListResults(ctx context.Context, jobID string) ([]datatypes.RuleResult, error)
}
