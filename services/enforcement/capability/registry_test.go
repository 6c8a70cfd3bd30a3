// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

// TestNewRegistry verifies the embedded catalog parses and contains the
// shipped platforms.
func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	require.NotZero(t, r.Len())

	cap, ok := r.Resolve("nextdns", datatypes.CategoryWebSafesearch)
	require.True(t, ok)
	assert.Equal(t, datatypes.SupportFull, cap.Support)
	assert.Equal(t, datatypes.ReadWritePushOnly, cap.ReadWrite)
	assert.True(t, cap.Pushable())

	cap, ok = r.Resolve("bark", datatypes.CategoryContentRating)
	require.True(t, ok)
	assert.Equal(t, datatypes.SupportPartial, cap.Support)
}

func TestRegistry_ResolveMiss(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	// Bark has no bedtime entry: absence is a lookup miss, not an error.
	_, ok := r.Resolve("bark", datatypes.CategoryTimeBedtime)
	assert.False(t, ok)

	_, ok = r.Resolve("unknown-platform", datatypes.CategoryContentRating)
	assert.False(t, ok)
}

func TestRegistry_ListPlatform(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	caps := r.ListPlatform("nextdns")
	require.NotEmpty(t, caps)
	for _, cap := range caps {
		assert.Equal(t, "nextdns", cap.PlatformID)
	}

	assert.Empty(t, r.ListPlatform("no-such-platform"))
}

func TestNewRegistryFromBytes_RejectsUnknownCategory(t *testing.T) {
	raw := []byte(`
version: 1
capabilities:
  - platform: nextdns
    category: mind_reading
    support_level: full
    read_write: push_only
`)
	_, err := newRegistryFromBytes(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")
}

func TestNewRegistryFromBytes_RejectsDuplicates(t *testing.T) {
	raw := []byte(`
version: 1
capabilities:
  - platform: nextdns
    category: web_safesearch
    support_level: full
    read_write: push_only
  - platform: nextdns
    category: web_safesearch
    support_level: partial
    read_write: push_only
`)
	_, err := newRegistryFromBytes(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNewRegistryFromBytes_RejectsMalformedYAML(t *testing.T) {
	_, err := newRegistryFromBytes([]byte("{not yaml"))
	require.Error(t, err)
}

func TestCapability_Pushable(t *testing.T) {
	tests := []struct {
		name string
		cap  datatypes.Capability
		want bool
	}{
		{
			name: "full push_only",
			cap:  datatypes.Capability{Support: datatypes.SupportFull, ReadWrite: datatypes.ReadWritePushOnly},
			want: true,
		},
		{
			name: "partial bidirectional",
			cap:  datatypes.Capability{Support: datatypes.SupportPartial, ReadWrite: datatypes.ReadWriteBidirectional},
			want: true,
		},
		{
			name: "no support",
			cap:  datatypes.Capability{Support: datatypes.SupportNone, ReadWrite: datatypes.ReadWritePushOnly},
			want: false,
		},
		{
			name: "pull only",
			cap:  datatypes.Capability{Support: datatypes.SupportFull, ReadWrite: datatypes.ReadWritePullOnly},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cap.Pushable())
		})
	}
}
