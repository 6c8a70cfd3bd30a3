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
	"fmt"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

// Bark is a guided-tier adapter: Bark has no public API, so enforcement is
// a set of manual steps the guardian performs in the Bark parent app.
type Bark struct{}

// NewBark builds the adapter.
func NewBark() *Bark { return &Bark{} }

// PlatformID implements GuidedAdapter.
func (a *Bark) PlatformID() string { return "bark" }

// Steps implements GuidedAdapter.
func (a *Bark) Steps(category datatypes.RuleCategory) ([]datatypes.GuidedStep, error) {
	switch category {
	case datatypes.CategoryContentRating:
		return []datatypes.GuidedStep{
			{
				StepNumber:  1,
				Title:       "Open the Bark parent app",
				Description: "Sign in with the guardian account that manages your child's devices.",
				DeepLink:    "bark://settings",
			},
			{
				StepNumber:  2,
				Title:       "Select your child's profile",
				Description: "From the dashboard, tap the child this policy applies to.",
			},
			{
				StepNumber:  3,
				Title:       "Adjust the content monitoring level",
				Description: "Under Settings > Content Monitoring, set the sensitivity to match the policy's rating ceiling. Bark cannot block playback directly; it alerts you when flagged content appears.",
				DeepLink:    "bark://settings/content-monitoring",
			},
			{
				StepNumber:  4,
				Title:       "Save and confirm",
				Description: "Tap Save. Changes take effect on the child's devices within a few minutes.",
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCategory, category)
}
