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
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGuardian/pkg/extensions"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/adapters"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/capability"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/jobs"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/policy"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/store"
)

// fakeAdapter records pushes and fails on command.
type fakeAdapter struct {
	id string

	mu     sync.Mutex
	pushed []datatypes.RuleCategory
	// failCategories maps a category to the error its push returns.
	failCategories map[datatypes.RuleCategory]error
	// block, when set, holds every push until released.
	block chan struct{}
}

func newFakeAdapter(id string) *fakeAdapter {
	return &fakeAdapter{id: id, failCategories: make(map[datatypes.RuleCategory]error)}
}

func (f *fakeAdapter) PlatformID() string { return f.id }

func (f *fakeAdapter) Push(ctx context.Context, rule datatypes.Rule, cred extensions.Credential) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if cred.IsZero() {
		return extensions.ErrNoCredentials
	}
	if err, fail := f.failCategories[rule.Category]; fail {
		return err
	}
	f.mu.Lock()
	f.pushed = append(f.pushed, rule.Category)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) pushedCategories() []datatypes.RuleCategory {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]datatypes.RuleCategory, len(f.pushed))
	copy(out, f.pushed)
	return out
}

type fixture struct {
	dispatcher *Dispatcher
	store      *store.BadgerStore
	tracker    *jobs.Tracker
	nextdns    *fakeAdapter
	netflix    *fakeAdapter
}

// newFixture builds a dispatcher over an in-memory store seeded with one
// active policy (safesearch + content rating) and the three shipped
// platforms: nextdns and netflix managed, bark guided.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.SavePolicy(ctx, &datatypes.Policy{
		ID: "pol-1", ChildID: "child-1", Status: datatypes.PolicyActive,
	}))
	now := time.Now().UTC()
	require.NoError(t, s.SaveRule(ctx, &datatypes.Rule{
		ID: "r-web", PolicyID: "pol-1", Category: datatypes.CategoryWebSafesearch, Enabled: true,
		Config:    datatypes.RuleConfig{WebSafesearch: &datatypes.WebSafesearchConfig{Enforce: true}},
		UpdatedAt: now,
	}))
	require.NoError(t, s.SaveRule(ctx, &datatypes.Rule{
		ID: "r-rating", PolicyID: "pol-1", Category: datatypes.CategoryContentRating, Enabled: true,
		Config:    datatypes.RuleConfig{ContentRating: &datatypes.ContentRatingConfig{System: "tv", MaxRating: "TV-PG"}},
		UpdatedAt: now,
	}))

	require.NoError(t, s.SavePlatform(ctx, "child-1", &datatypes.Platform{
		ID: "nextdns", Tier: datatypes.TierManaged, Status: datatypes.PlatformConnected,
	}))
	require.NoError(t, s.SavePlatform(ctx, "child-1", &datatypes.Platform{
		ID: "netflix", Tier: datatypes.TierManaged, Status: datatypes.PlatformConnected,
	}))
	require.NoError(t, s.SavePlatform(ctx, "child-1", &datatypes.Platform{
		ID: "bark", Tier: datatypes.TierGuided, Status: datatypes.PlatformConnected,
	}))

	caps, err := capability.NewRegistry()
	require.NoError(t, err)

	nextdns := newFakeAdapter("nextdns")
	netflix := newFakeAdapter("netflix")
	registry := adapters.NewRegistry()
	require.NoError(t, registry.RegisterManaged(nextdns))
	require.NoError(t, registry.RegisterManaged(netflix))
	require.NoError(t, registry.RegisterGuided(adapters.NewBark()))

	creds, err := extensions.NewStaticCredentialProvider(map[string]map[string]string{
		"nextdns": {"api_key": "k", "profile_id": "p"},
		"netflix": {"token": "t", "profile_id": "p"},
	})
	require.NoError(t, err)

	tracker := jobs.NewTracker(s, slog.Default())
	d, err := New(Deps{
		Rules:       policy.NewResolver(s),
		Caps:        caps,
		Adapters:    registry,
		Platforms:   s,
		Tracker:     tracker,
		Credentials: creds,
		Logger:      slog.Default(),
	}, Options{PushTimeout: 2 * time.Second})
	require.NoError(t, err)

	return &fixture{dispatcher: d, store: s, tracker: tracker, nextdns: nextdns, netflix: netflix}
}

func resultsByPlatform(results []datatypes.RuleResult) map[string]map[datatypes.RuleCategory]datatypes.ResultStatus {
	out := make(map[string]map[datatypes.RuleCategory]datatypes.ResultStatus)
	for _, r := range results {
		if out[r.PlatformID] == nil {
			out[r.PlatformID] = make(map[datatypes.RuleCategory]datatypes.ResultStatus)
		}
		out[r.PlatformID][r.Category] = r.Status
	}
	return out
}

// =============================================================================
// Enforce
// =============================================================================

func TestEnforce_FanOutAllConnected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.dispatcher.Enforce(ctx, "child-1", nil, datatypes.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, datatypes.JobCompleted, job.Status)
	assert.ElementsMatch(t, []string{"nextdns", "netflix", "bark"}, job.TargetPlatforms)

	results, err := f.tracker.Results(ctx, job.ID)
	require.NoError(t, err)
	byPlatform := resultsByPlatform(results)

	// NextDNS takes both categories programmatically.
	assert.Equal(t, datatypes.ResultPushed, byPlatform["nextdns"][datatypes.CategoryWebSafesearch])
	assert.Equal(t, datatypes.ResultPushed, byPlatform["nextdns"][datatypes.CategoryContentRating])

	// Netflix caps ratings but has no safesearch capability.
	assert.Equal(t, datatypes.ResultPushed, byPlatform["netflix"][datatypes.CategoryContentRating])
	assert.Equal(t, datatypes.ResultUnsupported, byPlatform["netflix"][datatypes.CategoryWebSafesearch])

	// Bark is guided: its supported category is skipped for manual
	// follow-up, and a guided platform is never a failure.
	assert.Equal(t, datatypes.ResultSkipped, byPlatform["bark"][datatypes.CategoryContentRating])
	assert.Equal(t, datatypes.ResultUnsupported, byPlatform["bark"][datatypes.CategoryWebSafesearch])
}

func TestEnforce_RepeatDispatchIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Pushing the same unchanged policy twice must yield pushed both
	// times: writes are absolute values, so there is nothing to conflict
	// with and no state to double-apply.
	first, err := f.dispatcher.Enforce(ctx, "child-1", []string{"nextdns"}, datatypes.TriggerManual)
	require.NoError(t, err)
	second, err := f.dispatcher.Enforce(ctx, "child-1", []string{"nextdns"}, datatypes.TriggerManual)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, datatypes.JobCompleted, first.Status)
	assert.Equal(t, datatypes.JobCompleted, second.Status)

	// The adapter saw each category exactly once per dispatch.
	pushed := f.nextdns.pushedCategories()
	assert.Len(t, pushed, 4)
	for _, job := range []*datatypes.EnforcementJob{first, second} {
		results, err := f.tracker.Results(ctx, job.ID)
		require.NoError(t, err)
		for _, r := range results {
			assert.Equal(t, datatypes.ResultPushed, r.Status)
		}
	}
}

func TestEnforce_DuplicateTargetsCollapse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.dispatcher.Enforce(ctx, "child-1", []string{"nextdns", "nextdns"}, datatypes.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, []string{"nextdns"}, job.TargetPlatforms)

	// One push per category, not two.
	assert.Len(t, f.nextdns.pushedCategories(), 2)
	results, err := f.tracker.Results(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestEnforce_CancellationRecordsUnstartedPairs(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The adapter parks every push until the context dies, so the first
	// rule fails in flight and the second never starts.
	f.nextdns.block = make(chan struct{})
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	job, err := f.dispatcher.Enforce(ctx, "child-1", []string{"nextdns"}, datatypes.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, datatypes.JobFailed, job.Status)

	// The job still closes with a complete result set.
	results, err := f.tracker.Results(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var neverStarted int
	for _, r := range results {
		assert.Equal(t, datatypes.ResultFailed, r.Status)
		if r.ErrorMessage == "enforcement cancelled before dispatch" {
			neverStarted++
		}
	}
	assert.Equal(t, 1, neverStarted)
}

func TestEnforce_ExplicitSubset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.dispatcher.Enforce(ctx, "child-1", []string{"nextdns"}, datatypes.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, []string{"nextdns"}, job.TargetPlatforms)
	assert.Empty(t, f.netflix.pushedCategories())
}

func TestEnforce_NoActivePolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SavePolicy(ctx, &datatypes.Policy{
		ID: "pol-1", ChildID: "child-1", Status: datatypes.PolicyPaused,
	}))

	_, err := f.dispatcher.Enforce(ctx, "child-1", nil, datatypes.TriggerManual)
	assert.ErrorIs(t, err, policy.ErrNoActivePolicy)

	// Fail-fast: no job record was created.
	list, err := f.tracker.List(ctx, "child-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEnforce_DisconnectedExplicitTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SavePlatform(ctx, "child-1", &datatypes.Platform{
		ID: "netflix", Tier: datatypes.TierManaged, Status: datatypes.PlatformDisconnected,
	}))

	_, err := f.dispatcher.Enforce(ctx, "child-1", []string{"netflix"}, datatypes.TriggerManual)
	assert.ErrorIs(t, err, ErrPlatformUnavailable)
}

func TestEnforce_AdapterFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.netflix.failCategories[datatypes.CategoryContentRating] = adapters.ErrAuthFailure

	job, err := f.dispatcher.Enforce(ctx, "child-1", []string{"nextdns", "netflix"}, datatypes.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, datatypes.JobPartial, job.Status)

	// The failing platform flips to error and keeps the failure message;
	// the healthy platform advances its sync bookkeeping.
	netflix, err := f.store.GetPlatform(ctx, "child-1", "netflix")
	require.NoError(t, err)
	assert.Equal(t, datatypes.PlatformError, netflix.Status)
	assert.Contains(t, netflix.ErrorMessage, "authentication")
	assert.Zero(t, netflix.SyncVersion)

	nextdns, err := f.store.GetPlatform(ctx, "child-1", "nextdns")
	require.NoError(t, err)
	assert.Equal(t, datatypes.PlatformConnected, nextdns.Status)
	assert.Equal(t, int64(1), nextdns.SyncVersion)
}

func TestEnforce_AllPushesFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.nextdns.failCategories[datatypes.CategoryWebSafesearch] = adapters.ErrTimeout
	f.nextdns.failCategories[datatypes.CategoryContentRating] = adapters.ErrTimeout

	job, err := f.dispatcher.Enforce(ctx, "child-1", []string{"nextdns"}, datatypes.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, datatypes.JobFailed, job.Status)
}

func TestEnforce_MissingCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Rebuild with a provider that knows no platforms.
	empty, err := extensions.NewStaticCredentialProvider(nil)
	require.NoError(t, err)
	f.dispatcher.deps.Credentials = empty

	job, err := f.dispatcher.Enforce(ctx, "child-1", []string{"nextdns"}, datatypes.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, datatypes.JobFailed, job.Status)

	results, err := f.tracker.Results(ctx, job.ID)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, datatypes.ResultFailed, r.Status)
		assert.Contains(t, r.ErrorMessage, "credentials unavailable")
	}
}

func TestEnforce_ConcurrentSameChildPlatformRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.nextdns.block = make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		_, err := f.dispatcher.Enforce(ctx, "child-1", []string{"nextdns"}, datatypes.TriggerManual)
		assert.NoError(t, err)
	}()

	<-started
	// Wait for the first dispatch to take the guard.
	require.Eventually(t, func() bool {
		err := f.dispatcher.guard.acquire("child-1", []string{"nextdns"})
		if err == nil {
			f.dispatcher.guard.release("child-1", []string{"nextdns"})
			return false
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	_, err := f.dispatcher.Enforce(ctx, "child-1", []string{"nextdns"}, datatypes.TriggerManual)
	assert.ErrorIs(t, err, ErrJobInProgress)

	// A different platform for the same child is not blocked.
	_, err = f.dispatcher.Enforce(ctx, "child-1", []string{"netflix"}, datatypes.TriggerManual)
	assert.NoError(t, err)

	close(f.nextdns.block)
	wg.Wait()
}

// =============================================================================
// SyncSource
// =============================================================================

func TestSyncSource_FullPushesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.dispatcher.SyncSource(ctx, "child-1", "nextdns", datatypes.SyncFull)
	require.NoError(t, err)
	assert.Equal(t, datatypes.JobCompleted, job.Status)
	assert.Len(t, f.nextdns.pushedCategories(), 2)
}

func TestSyncSource_IncrementalSkipsUnchangedRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Platform last synced an hour ago; only the safesearch rule changed
	// since then.
	lastSync := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.store.SavePlatform(ctx, "child-1", &datatypes.Platform{
		ID: "nextdns", Tier: datatypes.TierManaged, Status: datatypes.PlatformConnected,
		LastSyncAt: &lastSync,
	}))
	require.NoError(t, f.store.SaveRule(ctx, &datatypes.Rule{
		ID: "r-rating", PolicyID: "pol-1", Category: datatypes.CategoryContentRating, Enabled: true,
		Config:    datatypes.RuleConfig{ContentRating: &datatypes.ContentRatingConfig{System: "tv", MaxRating: "TV-PG"}},
		UpdatedAt: lastSync.Add(-time.Hour),
	}))

	job, err := f.dispatcher.SyncSource(ctx, "child-1", "nextdns", datatypes.SyncIncremental)
	require.NoError(t, err)
	assert.Equal(t, datatypes.JobCompleted, job.Status)
	assert.Equal(t, []datatypes.RuleCategory{datatypes.CategoryWebSafesearch}, f.nextdns.pushedCategories())
}

func TestSyncSource_IncrementalWithoutPriorSyncIsFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// LastSyncAt is nil in the fixture, so incremental degrades to full.
	_, err := f.dispatcher.SyncSource(ctx, "child-1", "nextdns", datatypes.SyncIncremental)
	require.NoError(t, err)
	assert.Len(t, f.nextdns.pushedCategories(), 2)
}
