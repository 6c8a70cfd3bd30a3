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
	"errors"
	"sync"
)

// ErrJobInProgress is returned when a dispatch targets a (child, platform)
// pair that already has a running job. Surfaced synchronously to the
// caller; no job record is created.
var ErrJobInProgress = errors.New("a job is already running for this platform")

// platformGuard provides in-process mutual exclusion per (child, platform).
//
// Only one job may be actively writing to a given platform for a given
// child. Acquisition is all-or-nothing across a dispatch's target set: if
// any target is busy, nothing is taken and the dispatch is rejected rather
// than queued.
type platformGuard struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newPlatformGuard() *platformGuard {
	return &platformGuard{busy: make(map[string]struct{})}
}

func guardKey(childID, platformID string) string {
	return childID + "\x00" + platformID
}

// acquire claims every (child, platform) pair or none of them.
func (g *platformGuard) acquire(childID string, platformIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range platformIDs {
		if _, taken := g.busy[guardKey(childID, id)]; taken {
			return ErrJobInProgress
		}
	}
	for _, id := range platformIDs {
		g.busy[guardKey(childID, id)] = struct{}{}
	}
	return nil
}

// release frees previously acquired pairs.
func (g *platformGuard) release(childID string, platformIDs []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range platformIDs {
		delete(g.busy, guardKey(childID, id))
	}
}
