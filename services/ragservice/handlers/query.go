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

	"github.com/Qiiks/once-human-ai/services/ragservice/observability"
	"github.com/Qiiks/once-human-ai/services/ragservice/store"
)

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query    string `json:"query" binding:"required"`
	NResults int    `json:"n_results"`
}

// QueryResultItem is one ranked hit in the query response.
type QueryResultItem struct {
	ID       string         `json:"id"`
	Document string         `json:"document"`
	Metadata store.Metadata `json:"metadata"`
	Distance float32        `json:"distance"`
}

// HandleQuery answers a similarity query with the verified-first policy.
func HandleQuery(retrieval *store.RetrievalService, metrics *observability.ServiceMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req QueryRequest
		if err := c.BindJSON(&req); err != nil {
			metrics.RecordRequest("query", false)
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "query is required"})
			return
		}

		start := time.Now()
		results, err := retrieval.AnswerQuery(c.Request.Context(), req.Query, req.NResults)
		metrics.ObserveQueryDuration(time.Since(start).Seconds())
		if err != nil {
			slog.Error("Query failed", "error", err)
			metrics.RecordRequest("query", false)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		items := make([]QueryResultItem, len(results))
		for i, r := range results {
			items[i] = QueryResultItem{
				ID:       r.Document.ID,
				Document: r.Document.Text,
				Metadata: r.Document.Metadata,
				Distance: r.Distance,
			}
		}
		metrics.RecordRequest("query", true)
		c.JSON(http.StatusOK, gin.H{"success": true, "results": items})
	}
}
