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
// Platform / Source
// =============================================================================

// Tier distinguishes how a platform is enforced.
type Tier string

const (
	// TierManaged platforms are enforced programmatically through an
	// authenticated API call per rule.
	TierManaged Tier = "managed"

	// TierGuided platforms have no usable API; enforcement is a set of
	// manual steps surfaced to the guardian.
	TierGuided Tier = "guided"
)

// PlatformStatus is the connection state of a platform.
type PlatformStatus string

const (
	PlatformConnected    PlatformStatus = "connected"
	PlatformSyncing      PlatformStatus = "syncing"
	PlatformError        PlatformStatus = "error"
	PlatformPending      PlatformStatus = "pending"
	PlatformDisconnected PlatformStatus = "disconnected"
)

// Platform is one external integration a family has connected.
//
// Platform records are owned by the connection-management service. The
// enforcement engine reads them to pick fan-out targets and writes back only
// the sync bookkeeping fields (Status, SyncVersion, LastSyncAt, ErrorMessage)
// after a job finishes for that platform.
type Platform struct {
	// ID is the platform slug ("netflix", "nextdns", "bark", ...).
	ID       string `json:"id"`
	FamilyID string `json:"family_id"`
	Name     string `json:"name"`
	Tier     Tier   `json:"tier"`

	Status PlatformStatus `json:"status"`

	// SyncVersion is a monotonic counter incremented on each fully
	// successful push to this platform.
	SyncVersion int64      `json:"sync_version"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`

	// ErrorMessage holds the first failure from the most recent job that
	// left this platform in the error state.
	ErrorMessage string `json:"error_message,omitempty"`
}
