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
// Capability
// =============================================================================

// SupportLevel describes how faithfully a platform can apply a category.
type SupportLevel string

const (
	SupportNone    SupportLevel = "none"
	SupportPartial SupportLevel = "partial"
	SupportFull    SupportLevel = "full"
)

// ReadWrite describes the direction a capability can move configuration.
type ReadWrite string

const (
	ReadWritePushOnly      ReadWrite = "push_only"
	ReadWritePullOnly      ReadWrite = "pull_only"
	ReadWriteBidirectional ReadWrite = "bidirectional"
)

// Capability declares what one platform can do with one rule category.
//
// Capability records are immutable catalog data shipped with the binary, not
// user-editable state. At most one entry exists per (platform, category).
type Capability struct {
	PlatformID string       `json:"platform_id" yaml:"platform"`
	Category   RuleCategory `json:"category" yaml:"category"`
	Support    SupportLevel `json:"support_level" yaml:"support_level"`
	ReadWrite  ReadWrite    `json:"read_write" yaml:"read_write"`
	Notes      string       `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Pushable reports whether the capability allows the engine to write
// configuration out to the platform.
func (c Capability) Pushable() bool {
	return c.Support != SupportNone && c.ReadWrite != ReadWritePullOnly
}
