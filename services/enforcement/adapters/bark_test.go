// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

func TestBark_StepsOrdered(t *testing.T) {
	steps, err := NewBark().Steps(datatypes.CategoryContentRating)
	require.NoError(t, err)
	require.NotEmpty(t, steps)

	for i, step := range steps {
		assert.Equal(t, i+1, step.StepNumber)
		assert.NotEmpty(t, step.Title)
		assert.NotEmpty(t, step.Description)
	}
}

func TestBark_UnsupportedCategory(t *testing.T) {
	_, err := NewBark().Steps(datatypes.CategoryTimeBedtime)
	assert.ErrorIs(t, err, ErrUnsupportedCategory)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterGuided(NewBark()))
	assert.Error(t, r.RegisterGuided(NewBark()))
}

func TestRegistry_Tier(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterManaged(NewNextDNS("", nil)))
	require.NoError(t, r.RegisterGuided(NewBark()))

	tier, ok := r.Tier("nextdns")
	require.True(t, ok)
	assert.Equal(t, datatypes.TierManaged, tier)

	tier, ok = r.Tier("bark")
	require.True(t, ok)
	assert.Equal(t, datatypes.TierGuided, tier)

	_, ok = r.Tier("unknown")
	assert.False(t, ok)
}
