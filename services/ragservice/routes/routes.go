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

	"github.com/Qiiks/once-human-ai/services/ragservice/handlers"
	"github.com/Qiiks/once-human-ai/services/ragservice/observability"
	"github.com/Qiiks/once-human-ai/services/ragservice/store"
)

// SetupRoutes registers the full HTTP surface of the knowledge store
// service. The paths are flat because the sync client on the other
// replica addresses them directly.
func SetupRoutes(router *gin.Engine, handle *store.Handle, retrieval *store.RetrievalService,
	health *store.HealthManager, backups *store.BackupManager, metrics *observability.ServiceMetrics) {

	router.GET("/health", handlers.HandleHealth(health))
	router.GET("/readiness", handlers.HandleReadiness(health))
	router.GET("/liveness", handlers.HandleLiveness(health))
	router.GET("/metrics", handlers.HandleMetrics(health, handle, metrics))
	router.GET("/metrics/prometheus", gin.WrapH(promhttp.Handler()))

	router.POST("/query", handlers.HandleQuery(retrieval, metrics))
	router.POST("/add", handlers.HandleAdd(handle, metrics))
	router.POST("/update", handlers.HandleUpdate(handle, metrics))
	router.POST("/delete", handlers.HandleDelete(handle, metrics))
	router.GET("/documents", handlers.HandleListDocuments(handle, metrics))

	router.GET("/backup", handlers.HandleBackup(backups, metrics))
	router.POST("/restore", handlers.HandleRestore(backups, metrics))
}
