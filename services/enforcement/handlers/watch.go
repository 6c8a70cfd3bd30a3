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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/jobs"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Local appliance: the dashboard and CLI connect from loopback.
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

const watchPollInterval = 500 * time.Millisecond

// jobUpdate is one frame on the watch socket.
type jobUpdate struct {
	JobID   string                  `json:"job_id"`
	Status  datatypes.JobStatus     `json:"status"`
	Summary datatypes.ResultSummary `json:"summary"`
	Done    bool                    `json:"done"`
}

// WatchJob handles GET /v1/jobs/:jobId/watch: a WebSocket that streams job
// status transitions until the job reaches a terminal state.
//
// The dashboard uses this to show live per-platform progress while a
// fan-out runs instead of polling the REST endpoint.
func WatchJob(tracker *jobs.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("jobId")

		// Validate before upgrading so unknown jobs get a clean 404.
		if _, err := tracker.Get(c.Request.Context(), jobID); err != nil {
			abortWithEngineError(c, err)
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		slog.Info("job watch connected", "job_id", jobID)

		ctx := c.Request.Context()
		ticker := time.NewTicker(watchPollInterval)
		defer ticker.Stop()

		var lastSent *jobUpdate
		for {
			job, err := tracker.Get(ctx, jobID)
			if err != nil {
				slog.Warn("job watch lost its job", "job_id", jobID, "error", err)
				return
			}
			results, err := tracker.Results(ctx, jobID)
			if err != nil {
				slog.Warn("job watch could not load results", "job_id", jobID, "error", err)
				return
			}

			update := jobUpdate{
				JobID:   job.ID,
				Status:  job.Status,
				Summary: datatypes.Summarize(results),
				Done:    job.Status.IsTerminal(),
			}
			if lastSent == nil || *lastSent != update {
				if err := ws.WriteJSON(update); err != nil {
					slog.Info("job watch client disconnected", "job_id", jobID)
					return
				}
				lastSent = &update
			}
			if update.Done {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
