// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package capability loads and resolves the platform capability catalog.
//
// The catalog is static data describing, per platform, which rule categories
// it supports, at what fidelity, and in which direction. It is embedded in
// the binary (see the catalog subpackage), parsed once at startup, and
// read-only thereafter. There is no ambient global: callers construct a
// Registry and hand it to the dispatcher.
package capability

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/capability/catalog"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

// catalogFile is the on-disk/embedded shape of the capability catalog.
type catalogFile struct {
	Version      int                    `yaml:"version"`
	Capabilities []datatypes.Capability `yaml:"capabilities"`
}

type key struct {
	platform string
	category datatypes.RuleCategory
}

// Registry answers capability lookups in O(1) against the preloaded catalog.
//
// # Thread Safety
//
// Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	entries map[key]datatypes.Capability
	// byPlatform preserves catalog order per platform for listing.
	byPlatform map[string][]datatypes.Capability
}

// NewRegistry parses the embedded catalog.
//
// Returns an error if the embedded YAML is malformed, names a category
// outside the closed catalog, or declares the same (platform, category) pair
// twice. These are build defects, so the service refuses to start on them.
func NewRegistry() (*Registry, error) {
	return newRegistryFromBytes(catalog.PlatformCapabilities)
}

func newRegistryFromBytes(raw []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the capability catalog: %w", err)
	}

	r := &Registry{
		entries:    make(map[key]datatypes.Capability, len(file.Capabilities)),
		byPlatform: make(map[string][]datatypes.Capability),
	}
	for _, cap := range file.Capabilities {
		if !cap.Category.IsValid() {
			return nil, fmt.Errorf("capability catalog names unknown category %q for platform %q",
				cap.Category, cap.PlatformID)
		}
		k := key{platform: cap.PlatformID, category: cap.Category}
		if _, dup := r.entries[k]; dup {
			return nil, fmt.Errorf("duplicate capability entry for (%s, %s)", cap.PlatformID, cap.Category)
		}
		r.entries[k] = cap
		r.byPlatform[cap.PlatformID] = append(r.byPlatform[cap.PlatformID], cap)
	}
	return r, nil
}

// Resolve returns the capability entry for a (platform, category) pair.
//
// The second return is false when the platform has no entry for the
// category. That is the expected "this platform simply doesn't support this
// control" outcome, never an error.
func (r *Registry) Resolve(platformID string, category datatypes.RuleCategory) (datatypes.Capability, bool) {
	cap, ok := r.entries[key{platform: platformID, category: category}]
	return cap, ok
}

// ListPlatform returns every capability entry for one platform, in catalog
// order. The returned slice is a copy.
func (r *Registry) ListPlatform(platformID string) []datatypes.Capability {
	src := r.byPlatform[platformID]
	out := make([]datatypes.Capability, len(src))
	copy(out, src)
	return out
}

// Len returns the number of catalog entries.
func (r *Registry) Len() int {
	return len(r.entries)
}
