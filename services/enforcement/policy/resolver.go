// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy resolves which rules currently apply to a child.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/store"
)

// ErrNoActivePolicy is returned when a child has no policy in the active
// state. Enforcement fails fast on it; no job is created.
var ErrNoActivePolicy = errors.New("no active policy for child")

// Resolver loads the active rule set for a child. Read-only: resolution has
// no side effects.
type Resolver struct {
	policies store.PolicyStore
}

// NewResolver wires the resolver to its policy source.
func NewResolver(policies store.PolicyStore) *Resolver {
	return &Resolver{policies: policies}
}

// ResolveActiveRules returns the enabled rules of the child's single active
// policy, ordered by category for determinism.
//
// Returns ErrNoActivePolicy when the child exists but no policy is active.
// An active policy with zero enabled rules resolves to an empty slice; an
// empty policy is valid, not an error.
func (r *Resolver) ResolveActiveRules(ctx context.Context, childID string) ([]datatypes.Rule, error) {
	active, err := r.policies.GetActivePolicy(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("load active policy: %w", err)
	}
	if active == nil {
		return nil, fmt.Errorf("child %q: %w", childID, ErrNoActivePolicy)
	}

	rules, err := r.policies.ListEnabledRules(ctx, active.ID)
	if err != nil {
		return nil, fmt.Errorf("load rules for policy %s: %w", active.ID, err)
	}
	datatypes.SortRulesByCategory(rules)
	return rules, nil
}
