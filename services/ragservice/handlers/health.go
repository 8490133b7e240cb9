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

	"github.com/Qiiks/once-human-ai/services/ragservice/observability"
	"github.com/Qiiks/once-human-ai/services/ragservice/store"
)

// HandleHealth runs the full check battery.
func HandleHealth(hm *store.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := hm.Check(c.Request.Context())
		status := http.StatusOK
		if !report.Healthy() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}

// HandleReadiness reports whether the store can serve traffic.
func HandleReadiness(hm *store.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := hm.Readiness(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "document_count": count})
	}
}

// HandleLiveness reports process uptime only.
func HandleLiveness(hm *store.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive", "uptime_seconds": hm.Uptime().Seconds()})
	}
}

// HandleMetrics serves the JSON counter snapshot. The Prometheus
// exposition lives on /metrics/prometheus.
func HandleMetrics(hm *store.HealthManager, handle *store.Handle, metrics *observability.ServiceMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		requests, successes, failures := metrics.SnapshotTotals()
		count, err := handle.Get().Count(c.Request.Context())
		if err != nil {
			count = 0
		}
		c.JSON(http.StatusOK, observability.Snapshot{
			UptimeSeconds: hm.Uptime().Seconds(),
			Requests:      requests,
			Successes:     successes,
			Failures:      failures,
			DocumentCount: count,
		})
	}
}
