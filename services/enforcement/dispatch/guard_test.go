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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformGuard_AcquireRelease(t *testing.T) {
	g := newPlatformGuard()

	require.NoError(t, g.acquire("child-1", []string{"nextdns", "netflix"}))
	assert.ErrorIs(t, g.acquire("child-1", []string{"nextdns"}), ErrJobInProgress)

	g.release("child-1", []string{"nextdns", "netflix"})
	assert.NoError(t, g.acquire("child-1", []string{"nextdns"}))
}

func TestPlatformGuard_AllOrNothing(t *testing.T) {
	g := newPlatformGuard()

	require.NoError(t, g.acquire("child-1", []string{"netflix"}))

	// One busy target rejects the whole set and must not leak a claim on
	// the free one.
	assert.ErrorIs(t, g.acquire("child-1", []string{"nextdns", "netflix"}), ErrJobInProgress)
	assert.NoError(t, g.acquire("child-1", []string{"nextdns"}))
}

func TestPlatformGuard_ScopedPerChild(t *testing.T) {
	g := newPlatformGuard()

	require.NoError(t, g.acquire("child-1", []string{"nextdns"}))
	assert.NoError(t, g.acquire("child-2", []string{"nextdns"}))
}
