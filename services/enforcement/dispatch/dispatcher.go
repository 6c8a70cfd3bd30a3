// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch orchestrates the enforcement fan-out.
//
// A dispatch resolves the child's active rules, picks the target platforms,
// and pushes each platform's rule subset through its adapter concurrently.
// Platforms proceed independently: a failure on one never blocks or rolls
// back another. Per-rule outcomes are collected into a job whose terminal
// status is a pure function of the result multiset.
//
// # Concurrency
//
// One goroutine per target platform, bounded by a global cap
// (errgroup.SetLimit). Rule pushes within a platform run sequentially so
// concurrent writes can never race on the same platform profile. Every
// adapter call carries an explicit timeout. Cancellation is cooperative:
// in-flight calls finish or time out, and pairs never started are recorded
// as failed so the job still closes with a complete result set.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianGuardian/pkg/extensions"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/adapters"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/capability"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/jobs"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/observability"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/policy"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/store"
)

// ErrPlatformUnavailable is returned when an explicitly targeted platform is
// disconnected. Surfaced synchronously; no job is created.
var ErrPlatformUnavailable = errors.New("platform is disconnected")

const (
	defaultMaxConcurrentPlatforms = 4
	defaultPushTimeout            = 15 * time.Second
)

// Deps are the collaborators a Dispatcher needs. All fields are required
// except Credentials, Audit, and Metrics.
type Deps struct {
	Rules       *policy.Resolver
	Caps        *capability.Registry
	Adapters    *adapters.Registry
	Platforms   store.PlatformStore
	Tracker     *jobs.Tracker
	Credentials extensions.CredentialProvider
	Audit       extensions.AuditLogger
	Metrics     *observability.EnforcementMetrics
	Logger      *slog.Logger
}

// Options tune the fan-out.
type Options struct {
	// MaxConcurrentPlatforms caps simultaneous platform pushes across one
	// dispatch. Zero means the default (4).
	MaxConcurrentPlatforms int

	// PushTimeout bounds each adapter call. Zero means the default (15s).
	PushTimeout time.Duration
}

// Dispatcher runs enforcement fan-outs and is the only writer of job state.
//
// # Thread Safety
//
// Safe for concurrent use. Overlapping dispatches for the same (child,
// platform) are rejected with ErrJobInProgress before a job is created.
type Dispatcher struct {
	deps  Deps
	opts  Options
	guard *platformGuard
}

// New validates deps and builds a Dispatcher.
func New(deps Deps, opts Options) (*Dispatcher, error) {
	switch {
	case deps.Rules == nil:
		return nil, errors.New("dispatch: policy resolver is required")
	case deps.Caps == nil:
		return nil, errors.New("dispatch: capability registry is required")
	case deps.Adapters == nil:
		return nil, errors.New("dispatch: adapter registry is required")
	case deps.Platforms == nil:
		return nil, errors.New("dispatch: platform store is required")
	case deps.Tracker == nil:
		return nil, errors.New("dispatch: job tracker is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Audit == nil {
		deps.Audit = &extensions.NopAuditLogger{}
	}
	if opts.MaxConcurrentPlatforms <= 0 {
		opts.MaxConcurrentPlatforms = defaultMaxConcurrentPlatforms
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = defaultPushTimeout
	}
	return &Dispatcher{deps: deps, opts: opts, guard: newPlatformGuard()}, nil
}

// Enforce resolves the child's active rules and fans them out.
//
// When targetPlatformIDs is empty the fan-out covers every platform
// currently connected for the child's family. Explicit IDs may name any
// platform that is not disconnected.
//
// Resolution failures (no active policy, unknown child) and concurrency
// conflicts return before any job record exists. Everything after job
// creation is captured per rule, never thrown.
func (d *Dispatcher) Enforce(ctx context.Context, childID string, targetPlatformIDs []string, trigger datatypes.TriggerType) (*datatypes.EnforcementJob, error) {
	rules, err := d.deps.Rules.ResolveActiveRules(ctx, childID)
	if err != nil {
		d.observeRejection(err)
		return nil, err
	}

	targets, err := d.resolveTargets(ctx, childID, targetPlatformIDs)
	if err != nil {
		return nil, err
	}

	allRules := func(datatypes.Platform) []datatypes.Rule { return rules }
	return d.run(ctx, childID, targets, allRules, trigger)
}

// SyncSource dispatches to exactly one source. Incremental mode restricts
// the rule set to rules changed since the source's last successful sync.
func (d *Dispatcher) SyncSource(ctx context.Context, childID, sourceID string, mode datatypes.SyncMode) (*datatypes.EnforcementJob, error) {
	rules, err := d.deps.Rules.ResolveActiveRules(ctx, childID)
	if err != nil {
		d.observeRejection(err)
		return nil, err
	}

	targets, err := d.resolveTargets(ctx, childID, []string{sourceID})
	if err != nil {
		return nil, err
	}

	rulesFor := func(p datatypes.Platform) []datatypes.Rule {
		if mode != datatypes.SyncIncremental || p.LastSyncAt == nil {
			return rules
		}
		var changed []datatypes.Rule
		for _, rule := range rules {
			if rule.UpdatedAt.After(*p.LastSyncAt) {
				changed = append(changed, rule)
			}
		}
		return changed
	}
	return d.run(ctx, childID, targets, rulesFor, datatypes.TriggerManual)
}

// resolveTargets picks the fan-out set: explicit slugs when given (any
// non-disconnected platform), otherwise every connected platform.
func (d *Dispatcher) resolveTargets(ctx context.Context, childID string, platformIDs []string) ([]datatypes.Platform, error) {
	if len(platformIDs) == 0 {
		return d.deps.Platforms.ListConnectedPlatforms(ctx, childID)
	}

	targets := make([]datatypes.Platform, 0, len(platformIDs))
	seen := make(map[string]struct{}, len(platformIDs))
	for _, id := range platformIDs {
		// Duplicate slugs would push the same platform's subset twice.
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p, err := d.deps.Platforms.GetPlatform(ctx, childID, id)
		if err != nil {
			return nil, err
		}
		if p.Status == datatypes.PlatformDisconnected {
			return nil, fmt.Errorf("platform %q: %w", id, ErrPlatformUnavailable)
		}
		targets = append(targets, *p)
	}
	return targets, nil
}

// run executes one fan-out: create the job, push every platform's subset in
// parallel, persist results, close the job, and write back platform sync
// bookkeeping.
func (d *Dispatcher) run(ctx context.Context, childID string, targets []datatypes.Platform, rulesFor func(datatypes.Platform) []datatypes.Rule, trigger datatypes.TriggerType) (*datatypes.EnforcementJob, error) {
	targetIDs := make([]string, len(targets))
	for i, p := range targets {
		targetIDs[i] = p.ID
	}

	if err := d.guard.acquire(childID, targetIDs); err != nil {
		d.deps.Metrics.ObserveRejection("job_in_progress")
		return nil, err
	}
	defer d.guard.release(childID, targetIDs)

	job, err := d.deps.Tracker.Create(ctx, childID, trigger, targetIDs)
	if err != nil {
		return nil, err
	}
	if err := d.deps.Tracker.Start(ctx, job); err != nil {
		return nil, err
	}

	done := d.deps.Metrics.DispatchStarted()
	defer done()

	var (
		mu      sync.Mutex
		results []datatypes.RuleResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.MaxConcurrentPlatforms)
	for _, platform := range targets {
		g.Go(func() error {
			// Platform faults are data, not errors: each platform's
			// outcome lands in its own results regardless of the others.
			platformResults := d.pushPlatform(gctx, job.ID, platform, rulesFor(platform))
			mu.Lock()
			results = append(results, platformResults...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Job persistence must survive request cancellation: the work already
	// happened, so record it under a fresh context.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	terminal, err := d.deps.Tracker.Complete(finishCtx, job, results)
	if err != nil {
		return nil, err
	}
	d.deps.Metrics.ObserveJob(string(trigger), string(terminal))
	d.recordPlatformOutcomes(finishCtx, childID, targets, results)
	d.audit(finishCtx, job, terminal)
	return job, nil
}

// pushPlatform applies one platform's rule subset sequentially and returns
// one result per rule. Never returns an error: every fault is folded into a
// RuleResult.
func (d *Dispatcher) pushPlatform(ctx context.Context, jobID string, platform datatypes.Platform, rules []datatypes.Rule) []datatypes.RuleResult {
	results := make([]datatypes.RuleResult, 0, len(rules))
	record := func(rule datatypes.Rule, status datatypes.ResultStatus, errMsg string, elapsed time.Duration) {
		results = append(results, datatypes.RuleResult{
			JobID:        jobID,
			PlatformID:   platform.ID,
			Category:     rule.Category,
			Status:       status,
			ErrorMessage: errMsg,
			CreatedAt:    time.Now().UTC(),
		})
		d.deps.Metrics.ObservePush(platform.ID, string(status), elapsed)
	}

	// Split the subset into pairs the platform can take and pairs it
	// cannot. Unsupported pairs never reach the adapter.
	var pushable []datatypes.Rule
	for _, rule := range rules {
		cap, ok := d.deps.Caps.Resolve(platform.ID, rule.Category)
		if !ok || !cap.Pushable() {
			record(rule, datatypes.ResultUnsupported, "", 0)
			continue
		}
		pushable = append(pushable, rule)
	}

	if platform.Tier == datatypes.TierGuided {
		// Guided platforms are never called: the guardian applies these
		// by hand via the steps endpoint.
		for _, rule := range pushable {
			record(rule, datatypes.ResultSkipped, "", 0)
		}
		return results
	}

	adapter, ok := d.deps.Adapters.Managed(platform.ID)
	if !ok {
		for _, rule := range pushable {
			record(rule, datatypes.ResultFailed,
				fmt.Sprintf("no adapter registered for platform %q", platform.ID), 0)
		}
		return results
	}

	cred, err := d.credential(ctx, platform.ID)
	if err != nil {
		msg := fmt.Sprintf("credentials unavailable: %v", err)
		for _, rule := range pushable {
			record(rule, datatypes.ResultFailed, msg, 0)
		}
		return results
	}

	for _, rule := range pushable {
		if ctx.Err() != nil {
			record(rule, datatypes.ResultFailed, "enforcement cancelled before dispatch", 0)
			continue
		}

		start := time.Now()
		pushCtx, cancel := context.WithTimeout(ctx, d.opts.PushTimeout)
		err := adapter.Push(pushCtx, rule, cred)
		cancel()
		elapsed := time.Since(start)

		switch {
		case err == nil:
			record(rule, datatypes.ResultPushed, "", elapsed)
		case errors.Is(err, adapters.ErrUnsupportedCategory):
			// Defensive: the capability resolver should have filtered
			// this pair. Treat it as unsupported, not a fault.
			record(rule, datatypes.ResultUnsupported, "", elapsed)
		default:
			d.deps.Logger.Warn("rule push failed",
				"platform", platform.ID, "category", rule.Category, "error", err)
			record(rule, datatypes.ResultFailed, err.Error(), elapsed)
		}
	}
	return results
}

func (d *Dispatcher) credential(ctx context.Context, platformID string) (extensions.Credential, error) {
	if d.deps.Credentials == nil {
		return extensions.Credential{}, extensions.ErrNoCredentials
	}
	return d.deps.Credentials.Get(ctx, platformID)
}

// recordPlatformOutcomes writes sync bookkeeping per platform: platforms
// with zero failed results advance sync_version and return to connected;
// platforms with failures flip to error and keep the first failure message.
func (d *Dispatcher) recordPlatformOutcomes(ctx context.Context, childID string, targets []datatypes.Platform, results []datatypes.RuleResult) {
	firstFailure := make(map[string]string)
	for _, r := range results {
		if r.Status != datatypes.ResultFailed {
			continue
		}
		if _, seen := firstFailure[r.PlatformID]; !seen {
			firstFailure[r.PlatformID] = r.ErrorMessage
		}
	}

	for _, platform := range targets {
		msg, failed := firstFailure[platform.ID]
		if err := d.deps.Platforms.RecordSyncOutcome(ctx, childID, platform.ID, !failed, msg); err != nil {
			d.deps.Logger.Error("failed to record sync outcome",
				"platform", platform.ID, "error", err)
		}
	}
}

func (d *Dispatcher) audit(ctx context.Context, job *datatypes.EnforcementJob, terminal datatypes.JobStatus) {
	event := extensions.AuditEvent{
		EventType:    "enforce.trigger",
		Timestamp:    time.Now().UTC(),
		UserID:       "system",
		Action:       string(job.TriggerType),
		ResourceType: "job",
		ResourceID:   job.ID,
		Outcome:      string(terminal),
		Metadata: map[string]any{
			"child_id":  job.ChildID,
			"platforms": len(job.TargetPlatforms),
		},
	}
	if err := d.deps.Audit.Log(ctx, event); err != nil {
		d.deps.Logger.Warn("audit log write failed", "error", err)
	}
}

func (d *Dispatcher) observeRejection(err error) {
	switch {
	case errors.Is(err, policy.ErrNoActivePolicy):
		d.deps.Metrics.ObserveRejection("no_active_policy")
	case errors.Is(err, store.ErrChildNotFound):
		d.deps.Metrics.ObserveRejection("unknown_child")
	}
}
