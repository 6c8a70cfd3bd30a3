// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

// ErrNotRetryable is returned when the source job's status is not partial
// or failed, or when it left nothing behind to retry.
var ErrNotRetryable = errors.New("job is not retryable")

// Retry re-drives only the failed subset of a previous job.
//
// The subset is the set of (platform, category) pairs whose prior result was
// failed; pushed, skipped, and unsupported results are left untouched and
// never re-sent. Rules are re-resolved from the active policy, so a retry
// pushes the category's current config. The result is a brand-new job — the
// source job and its results are immutable history.
func (d *Dispatcher) Retry(ctx context.Context, jobID string) (*datatypes.EnforcementJob, error) {
	source, err := d.deps.Tracker.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if source.Status != datatypes.JobPartial && source.Status != datatypes.JobFailed {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, source.Status, ErrNotRetryable)
	}

	pairs, err := d.deps.Tracker.FailedPairs(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("job %s has no failed results: %w", jobID, ErrNotRetryable)
	}

	rules, err := d.deps.Rules.ResolveActiveRules(ctx, source.ChildID)
	if err != nil {
		d.observeRejection(err)
		return nil, err
	}

	platformIDs := make([]string, 0, len(pairs))
	for id := range pairs {
		platformIDs = append(platformIDs, id)
	}
	sort.Strings(platformIDs)
	targets, err := d.resolveTargets(ctx, source.ChildID, platformIDs)
	if err != nil {
		return nil, err
	}

	rulesFor := func(p datatypes.Platform) []datatypes.Rule {
		retriable := make(map[datatypes.RuleCategory]bool, len(pairs[p.ID]))
		for _, category := range pairs[p.ID] {
			retriable[category] = true
		}
		var subset []datatypes.Rule
		for _, rule := range rules {
			if retriable[rule.Category] {
				subset = append(subset, rule)
			}
		}
		return subset
	}
	return d.run(ctx, source.ChildID, targets, rulesFor, datatypes.TriggerRetry)
}
