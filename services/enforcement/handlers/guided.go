// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/adapters"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

// GetGuidedSteps handles GET /v1/platforms/:platformId/steps?category=.
//
// Guided tier only: asking a managed platform for manual steps is a caller
// mistake and returns 409.
func GetGuidedSteps(registry *adapters.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		platformID := c.Param("platformId")
		category := datatypes.RuleCategory(c.Query("category"))
		if !category.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown rule category"})
			return
		}

		tier, known := registry.Tier(platformID)
		if !known {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown platform"})
			return
		}
		if tier != datatypes.TierGuided {
			c.JSON(http.StatusConflict, gin.H{"error": "platform is managed; no guided steps"})
			return
		}

		adapter, _ := registry.Guided(platformID)
		steps, err := adapter.Steps(category)
		if err != nil {
			if errors.Is(err, adapters.ErrUnsupportedCategory) {
				c.JSON(http.StatusNotFound, gin.H{"error": "category not supported on this platform"})
				return
			}
			abortWithEngineError(c, err)
			return
		}

		c.JSON(http.StatusOK, datatypes.GuidedStepsResponse{
			PlatformID: platformID,
			Category:   category,
			Steps:      steps,
		})
	}
}
