// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

// =============================================================================
// BadgerDB Configuration
// =============================================================================

// Config holds configuration for the local BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required for persistent databases. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// Logger is the logger for BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults (durable writes at the given
// path).
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns configuration optimized for testing.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// Badger Store
// =============================================================================

// Key layout. All values are JSON.
//
//	policy/<childID>                         active policy mirror
//	rule/<policyID>/<ruleID>                 rule mirror
//	platform/<childID>/<platformID>          platform record
//	job/<jobID>                              enforcement job
//	jobidx/<childID>/<invNanos>/<jobID>      newest-first job index
//	result/<jobID>/<platformID>/<category>   rule result (write-once)
const (
	prefixPolicy   = "policy/"
	prefixRule     = "rule/"
	prefixPlatform = "platform/"
	prefixJob      = "job/"
	prefixJobIdx   = "jobidx/"
	prefixResult   = "result/"
)

// BadgerStore implements PolicyStore, PlatformStore, and JobStore on a local
// BadgerDB. In the appliance deployment the management service mirrors the
// family's policies and platform connections into the same database; the
// engine owns the job and result keyspaces outright.
//
// # Thread Safety
//
// Safe for concurrent use. Single-key updates run inside Badger
// transactions; the dispatcher additionally serializes per-platform writers,
// so sync bookkeeping never races.
type BadgerStore struct {
	db *badger.DB
}

// Open creates and opens the store with the given configuration.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemory opens an in-memory store for testing. Data is lost on Close.
func OpenInMemory() (*BadgerStore, error) {
	return Open(InMemoryConfig())
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func setJSON(txn *badger.Txn, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), raw)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// =============================================================================
// PolicyStore
// =============================================================================

// SavePolicy mirrors a policy record locally. Called by the management
// collaborator (and by tests) — the engine itself never writes policies.
func (s *BadgerStore) SavePolicy(ctx context.Context, policy *datatypes.Policy) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, prefixPolicy+policy.ChildID, policy)
	})
}

// SaveRule mirrors a rule record locally.
func (s *BadgerStore) SaveRule(ctx context.Context, rule *datatypes.Rule) error {
	if err := rule.Config.Validate(rule.Category); err != nil {
		return fmt.Errorf("rule %s rejected: %w", rule.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, prefixRule+rule.PolicyID+"/"+rule.ID, rule)
	})
}

// GetActivePolicy implements PolicyStore.
func (s *BadgerStore) GetActivePolicy(ctx context.Context, childID string) (*datatypes.Policy, error) {
	var policy datatypes.Policy
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixPolicy+childID, &policy)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("child %q: %w", childID, ErrChildNotFound)
	}
	if err != nil {
		return nil, err
	}
	if policy.Status != datatypes.PolicyActive {
		return nil, nil
	}
	return &policy, nil
}

// ListEnabledRules implements PolicyStore.
func (s *BadgerStore) ListEnabledRules(ctx context.Context, policyID string) ([]datatypes.Rule, error) {
	var rules []datatypes.Rule
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixRule + policyID + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rule datatypes.Rule
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rule)
			}); err != nil {
				return err
			}
			if rule.Enabled {
				rules = append(rules, rule)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// =============================================================================
// PlatformStore
// =============================================================================

// SavePlatform mirrors a platform connection record locally. Called by the
// connection-management collaborator (and by tests).
func (s *BadgerStore) SavePlatform(ctx context.Context, childID string, platform *datatypes.Platform) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, prefixPlatform+childID+"/"+platform.ID, platform)
	})
}

// GetPlatform implements PlatformStore.
func (s *BadgerStore) GetPlatform(ctx context.Context, childID, platformID string) (*datatypes.Platform, error) {
	var platform datatypes.Platform
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixPlatform+childID+"/"+platformID, &platform)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("platform %q: %w", platformID, ErrPlatformNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &platform, nil
}

// ListConnectedPlatforms implements PlatformStore.
func (s *BadgerStore) ListConnectedPlatforms(ctx context.Context, childID string) ([]datatypes.Platform, error) {
	var platforms []datatypes.Platform
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixPlatform + childID + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var platform datatypes.Platform
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &platform)
			}); err != nil {
				return err
			}
			if platform.Status == datatypes.PlatformConnected {
				platforms = append(platforms, platform)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return platforms, nil
}

// RecordSyncOutcome implements PlatformStore.
func (s *BadgerStore) RecordSyncOutcome(ctx context.Context, childID, platformID string, ok bool, errorMessage string) error {
	key := prefixPlatform + childID + "/" + platformID
	return s.db.Update(func(txn *badger.Txn) error {
		var platform datatypes.Platform
		if err := getJSON(txn, key, &platform); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("platform %q: %w", platformID, ErrPlatformNotFound)
			}
			return err
		}
		if ok {
			platform.SyncVersion++
			now := nowUTC()
			platform.LastSyncAt = &now
			platform.Status = datatypes.PlatformConnected
			platform.ErrorMessage = ""
		} else {
			platform.Status = datatypes.PlatformError
			platform.ErrorMessage = errorMessage
		}
		return setJSON(txn, key, &platform)
	})
}

// =============================================================================
// JobStore
// =============================================================================

// invNanos renders a timestamp so that lexicographic key order is
// newest-first.
func invNanos(nanos int64) string {
	return fmt.Sprintf("%020d", int64(1)<<62-nanos)
}

// CreateJob implements JobStore.
func (s *BadgerStore) CreateJob(ctx context.Context, job *datatypes.EnforcementJob) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixJob+job.ID, job); err != nil {
			return err
		}
		idx := prefixJobIdx + job.ChildID + "/" + invNanos(job.CreatedAt.UnixNano()) + "/" + job.ID
		return txn.Set([]byte(idx), []byte(job.ID))
	})
}

// UpdateJob implements JobStore. Rejects transitions out of a terminal state
// and transitions the state machine does not permit.
func (s *BadgerStore) UpdateJob(ctx context.Context, job *datatypes.EnforcementJob) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var prev datatypes.EnforcementJob
		if err := getJSON(txn, prefixJob+job.ID, &prev); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("job %q: %w", job.ID, ErrJobNotFound)
			}
			return err
		}
		if prev.Status.IsTerminal() {
			return fmt.Errorf("job %q: %w", job.ID, ErrTerminalJob)
		}
		if prev.Status != job.Status && !prev.Status.CanTransitionTo(job.Status) {
			return fmt.Errorf("job %q: %s -> %s: %w", job.ID, prev.Status, job.Status, ErrInvalidTransition)
		}
		return setJSON(txn, prefixJob+job.ID, job)
	})
}

// GetJob implements JobStore.
func (s *BadgerStore) GetJob(ctx context.Context, jobID string) (*datatypes.EnforcementJob, error) {
	var job datatypes.EnforcementJob
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixJob+jobID, &job)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("job %q: %w", jobID, ErrJobNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs implements JobStore. The index key embeds an inverted timestamp,
// so a forward prefix scan yields newest-first order.
func (s *BadgerStore) ListJobs(ctx context.Context, childID string) ([]datatypes.EnforcementJob, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(prefixJobIdx + childID + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, key[strings.LastIndexByte(key, '/')+1:])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]datatypes.EnforcementJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// AppendResults implements JobStore. A result that already exists for its
// (job, platform, category) tuple is left untouched: results are immutable
// history.
func (s *BadgerStore) AppendResults(ctx context.Context, jobID string, results []datatypes.RuleResult) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for i := range results {
			r := &results[i]
			key := prefixResult + jobID + "/" + r.PlatformID + "/" + string(r.Category)
			if _, err := txn.Get([]byte(key)); err == nil {
				continue
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := setJSON(txn, key, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListResults implements JobStore.
func (s *BadgerStore) ListResults(ctx context.Context, jobID string) ([]datatypes.RuleResult, error) {
	var results []datatypes.RuleResult
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixResult + jobID + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r datatypes.RuleResult
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			results = append(results, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
