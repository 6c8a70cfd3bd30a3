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

// =============================================================================
// API Request / Response Types
// =============================================================================

// EnforceRequest is the body for POST /v1/enforce.
//
// PlatformIDs is optional: when empty, the dispatcher fans out to every
// platform currently connected for the child's family.
type EnforceRequest struct {
	ChildID     string   `json:"child_id" validate:"required,slug"`
	PlatformIDs []string `json:"platform_ids,omitempty" validate:"omitempty,dive,slug"`
}

// Validate checks the request body.
func (r EnforceRequest) Validate() error {
	return ruleValidate.Struct(r)
}

// SyncMode selects how much of the rule set a source sync pushes.
type SyncMode string

const (
	// SyncFull pushes the entire active rule set.
	SyncFull SyncMode = "full"

	// SyncIncremental pushes only rules changed since the source's last
	// successful sync.
	SyncIncremental SyncMode = "incremental"
)

// SyncRequest is the body for POST /v1/sources/:sourceId/sync.
type SyncRequest struct {
	ChildID string   `json:"child_id" validate:"required,slug"`
	Mode    SyncMode `json:"mode" validate:"required,oneof=full incremental"`
}

// Validate checks the request body.
func (r SyncRequest) Validate() error {
	return ruleValidate.Struct(r)
}

// EnforceResponse is returned by enforce, sync, and retry triggers.
type EnforceResponse struct {
	JobID string `json:"job_id"`
}

// RetryResponse is returned by POST /v1/jobs/:jobId/retry.
type RetryResponse struct {
	NewJobID string `json:"new_job_id"`
}

// JobResultsResponse is returned by GET /v1/jobs/:jobId/results.
type JobResultsResponse struct {
	JobID   string        `json:"job_id"`
	Status  JobStatus     `json:"status"`
	Summary ResultSummary `json:"summary"`
	Results []RuleResult  `json:"results"`
}

// GuidedStepsResponse is returned by GET /v1/platforms/:platformId/steps.
type GuidedStepsResponse struct {
	PlatformID string       `json:"platform_id"`
	Category   RuleCategory `json:"category"`
	Steps      []GuidedStep `json:"steps"`
}
