// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package adapters contains the per-platform integrations that apply rules.
//
// Adapters come in two closed variants selected by the platform's tier:
//
//   - ManagedAdapter: performs an authenticated network call per rule,
//     translating the category config into the platform's native shape.
//   - GuidedAdapter: never touches the network; it produces ordered manual
//     steps for the guardian instead.
//
// Adapters are registered in an explicit Registry constructed at process
// start and handed to the dispatcher. There is no ambient global adapter
// state.
package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianGuardian/pkg/extensions"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

// Adapter fault taxonomy. The dispatcher captures these per rule; they never
// escape a dispatch as a thrown error.
var (
	// ErrAuthFailure means credentials were invalid or expired. The
	// platform is flipped to the error state.
	ErrAuthFailure = errors.New("platform authentication failed")

	// ErrTimeout means the push did not complete within its deadline.
	ErrTimeout = errors.New("platform call timed out")

	// ErrValidation means the rule config could not be translated to the
	// platform's schema.
	ErrValidation = errors.New("rule config rejected by platform")

	// ErrRateLimited means the platform throttled us even after the
	// adapter's own backoff retries.
	ErrRateLimited = errors.New("platform rate limit exceeded")

	// ErrUnsupportedCategory means the adapter was invoked for a category
	// it does not implement. Defensive: the capability resolver should
	// have filtered the pair already.
	ErrUnsupportedCategory = errors.New("category not implemented by adapter")
)

// ManagedAdapter applies rules to a platform through its API.
//
// # Idempotency
//
// Push must use set/upsert semantics: pushing the same rule twice with the
// same config must not double-apply side effects. Retries depend on this.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The dispatcher
// serializes pushes to a single platform, but a retry job and tests may
// construct overlapping calls.
type ManagedAdapter interface {
	// PlatformID returns the platform slug this adapter serves.
	PlatformID() string

	// Push applies one rule. A nil return means the platform accepted and
	// applied the rule. Faults are reported through the taxonomy errors
	// above (wrapped with detail); the dispatcher records them per rule.
	//
	// The context carries the per-call timeout. Credentials are opened
	// only inside the call and never logged.
	Push(ctx context.Context, rule datatypes.Rule, cred extensions.Credential) error
}

// GuidedAdapter produces manual enforcement steps for platforms without a
// usable API. It never performs network calls; the dispatcher records
// skipped for each of its rules.
type GuidedAdapter interface {
	// PlatformID returns the platform slug this adapter serves.
	PlatformID() string

	// Steps returns the ordered manual instructions for applying one
	// category on this platform, or ErrUnsupportedCategory.
	Steps(category datatypes.RuleCategory) ([]datatypes.GuidedStep, error)
}

// =============================================================================
// Registry
// =============================================================================

// Registry maps platform slugs to their adapters.
//
// Built once at startup, read-only afterwards. The dispatcher consults it
// for every push; the guided-steps endpoint consults it for tier checks.
type Registry struct {
	managed map[string]ManagedAdapter
	guided  map[string]GuidedAdapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		managed: make(map[string]ManagedAdapter),
		guided:  make(map[string]GuidedAdapter),
	}
}

// RegisterManaged adds a managed adapter. Registering the same slug twice,
// or a slug already registered as guided, is a wiring bug and returns an
// error so startup fails loudly.
func (r *Registry) RegisterManaged(a ManagedAdapter) error {
	id := a.PlatformID()
	if _, dup := r.managed[id]; dup {
		return fmt.Errorf("managed adapter %q registered twice", id)
	}
	if _, dup := r.guided[id]; dup {
		return fmt.Errorf("adapter %q registered as both managed and guided", id)
	}
	r.managed[id] = a
	return nil
}

// RegisterGuided adds a guided adapter.
func (r *Registry) RegisterGuided(a GuidedAdapter) error {
	id := a.PlatformID()
	if _, dup := r.guided[id]; dup {
		return fmt.Errorf("guided adapter %q registered twice", id)
	}
	if _, dup := r.managed[id]; dup {
		return fmt.Errorf("adapter %q registered as both managed and guided", id)
	}
	r.guided[id] = a
	return nil
}

// Managed returns the managed adapter for a slug.
func (r *Registry) Managed(platformID string) (ManagedAdapter, bool) {
	a, ok := r.managed[platformID]
	return a, ok
}

// Guided returns the guided adapter for a slug.
func (r *Registry) Guided(platformID string) (GuidedAdapter, bool) {
	a, ok := r.guided[platformID]
	return a, ok
}

// Tier reports which tier a slug is registered under.
func (r *Registry) Tier(platformID string) (datatypes.Tier, bool) {
	if _, ok := r.managed[platformID]; ok {
		return datatypes.TierManaged, true
	}
	if _, ok := r.guided[platformID]; ok {
		return datatypes.TierGuided, true
	}
	return "", false
}
