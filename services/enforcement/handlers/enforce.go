// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides HTTP request handlers for the enforcement
// service.
//
// Handlers are thin: they validate request bodies, call into the dispatcher
// or job tracker, and translate the engine's sentinel errors into HTTP
// status codes. All enforcement semantics live below this layer.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/dispatch"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/policy"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/store"
)

// abortWithEngineError maps engine sentinels onto HTTP status codes.
func abortWithEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, policy.ErrNoActivePolicy),
		errors.Is(err, store.ErrChildNotFound),
		errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrPlatformNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrJobInProgress),
		errors.Is(err, dispatch.ErrNotRetryable),
		errors.Is(err, dispatch.ErrPlatformUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("enforcement request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Enforce handles POST /v1/enforce: trigger a fan-out of the child's active
// policy to the given platforms (or all connected platforms).
func Enforce(dispatcher *dispatch.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.EnforceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		slog.Info("enforcement requested",
			"child_id", req.ChildID, "platforms", len(req.PlatformIDs))
		job, err := dispatcher.Enforce(c.Request.Context(), req.ChildID, req.PlatformIDs, datatypes.TriggerManual)
		if err != nil {
			abortWithEngineError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, datatypes.EnforceResponse{JobID: job.ID})
	}
}

// SyncSource handles POST /v1/sources/:sourceId/sync: a dispatch scoped to
// one source, optionally restricted to rules changed since its last sync.
func SyncSource(dispatcher *dispatch.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		sourceID := c.Param("sourceId")

		var req datatypes.SyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		slog.Info("source sync requested",
			"source_id", sourceID, "child_id", req.ChildID, "mode", req.Mode)
		job, err := dispatcher.SyncSource(c.Request.Context(), req.ChildID, sourceID, req.Mode)
		if err != nil {
			abortWithEngineError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, datatypes.EnforceResponse{JobID: job.ID})
	}
}

// RetryJob handles POST /v1/jobs/:jobId/retry: re-drive the failed subset
// of a finished job as a new job.
func RetryJob(dispatcher *dispatch.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")
		slog.Info("job retry requested", "job_id", jobID)

		job, err := dispatcher.Retry(c.Request.Context(), jobID)
		if err != nil {
			abortWithEngineError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, datatypes.RetryResponse{NewJobID: job.ID})
	}
}
