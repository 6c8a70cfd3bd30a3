// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianGuardian/pkg/extensions"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/adapters"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/dispatch"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/handlers"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/jobs"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement/middleware"
)

// Deps are the constructed components the routes hand requests to.
type Deps struct {
	Dispatcher *dispatch.Dispatcher
	Tracker    *jobs.Tracker
	Adapters   *adapters.Registry
	Auth       extensions.AuthProvider
}

// SetupRoutes registers the enforcement API on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.Auth))
	{
		v1.POST("/enforce", handlers.Enforce(deps.Dispatcher))

		jobGroup := v1.Group("/jobs")
		{
			jobGroup.GET("", handlers.ListJobs(deps.Tracker))
			jobGroup.GET("/:jobId", handlers.GetJob(deps.Tracker))
			jobGroup.GET("/:jobId/results", handlers.GetJobResults(deps.Tracker))
			jobGroup.GET("/:jobId/watch", handlers.WatchJob(deps.Tracker))
			jobGroup.POST("/:jobId/retry", handlers.RetryJob(deps.Dispatcher))
		}

		v1.GET("/platforms/:platformId/steps", handlers.GetGuidedSteps(deps.Adapters))
		v1.POST("/sources/:sourceId/sync", handlers.SyncSource(deps.Dispatcher))
	}
}
