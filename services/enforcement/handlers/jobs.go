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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/jobs"
)

// ListJobs handles GET /v1/jobs?child_id=: a child's jobs, newest first.
func ListJobs(tracker *jobs.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		childID := c.Query("child_id")
		if childID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "child_id query parameter is required"})
			return
		}

		jobList, err := tracker.List(c.Request.Context(), childID)
		if err != nil {
			abortWithEngineError(c, err)
			return
		}
		if jobList == nil {
			jobList = []datatypes.EnforcementJob{}
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobList})
	}
}

// GetJob handles GET /v1/jobs/:jobId.
func GetJob(tracker *jobs.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := tracker.Get(c.Request.Context(), c.Param("jobId"))
		if err != nil {
			abortWithEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// GetJobResults handles GET /v1/jobs/:jobId/results: the per-rule breakdown
// plus aggregate counts.
func GetJobResults(tracker *jobs.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		job, err := tracker.Get(c.Request.Context(), jobID)
		if err != nil {
			abortWithEngineError(c, err)
			return
		}

		results, err := tracker.Results(c.Request.Context(), jobID)
		if err != nil {
			abortWithEngineError(c, err)
			return
		}
		if results == nil {
			results = []datatypes.RuleResult{}
		}
		c.JSON(http.StatusOK, datatypes.JobResultsResponse{
			JobID:   job.ID,
			Status:  job.Status,
			Summary: datatypes.Summarize(results),
			Results: results,
		})
	}
}
