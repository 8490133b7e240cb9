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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Qiiks/once-human-ai/services/ragservice/observability"
	"github.com/Qiiks/once-human-ai/services/ragservice/store"
)

// AddDocumentRequest is the body of POST /add.
type AddDocumentRequest struct {
	Document string         `json:"document" binding:"required"`
	Metadata store.Metadata `json:"metadata" binding:"required"`
}

// UpdateDocumentRequest is the body of POST /update.
type UpdateDocumentRequest struct {
	ID       string         `json:"id" binding:"required"`
	Document string         `json:"document" binding:"required"`
	Metadata store.Metadata `json:"metadata" binding:"required"`
}

// DeleteDocumentRequest is the body of POST /delete.
type DeleteDocumentRequest struct {
	ID string `json:"id" binding:"required"`
}

// HandleAdd inserts one document into the live store.
func HandleAdd(handle *store.Handle, metrics *observability.ServiceMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddDocumentRequest
		if err := c.BindJSON(&req); err != nil {
			metrics.RecordRequest("add", false)
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "document and metadata are required"})
			return
		}

		st := handle.Get()
		id, err := st.Add(c.Request.Context(), req.Document, req.Metadata)
		if err != nil {
			metrics.RecordRequest("add", false)
			respondStoreError(c, "add", err)
			return
		}

		refreshDocumentGauge(c, st, metrics)
		metrics.RecordRequest("add", true)
		c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
	}
}

// HandleUpdate fully replaces one document under its existing id.
func HandleUpdate(handle *store.Handle, metrics *observability.ServiceMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateDocumentRequest
		if err := c.BindJSON(&req); err != nil {
			metrics.RecordRequest("update", false)
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "id, document, and metadata are required"})
			return
		}

		st := handle.Get()
		if err := st.Update(c.Request.Context(), req.ID, req.Document, req.Metadata); err != nil {
			metrics.RecordRequest("update", false)
			respondStoreError(c, "update", err)
			return
		}

		metrics.RecordRequest("update", true)
		c.JSON(http.StatusOK, gin.H{"success": true, "id": req.ID})
	}
}

// HandleDelete removes one document by id.
func HandleDelete(handle *store.Handle, metrics *observability.ServiceMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DeleteDocumentRequest
		if err := c.BindJSON(&req); err != nil {
			metrics.RecordRequest("delete", false)
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "id is required"})
			return
		}

		st := handle.Get()
		if err := st.Delete(c.Request.Context(), req.ID); err != nil {
			metrics.RecordRequest("delete", false)
			respondStoreError(c, "delete", err)
			return
		}

		refreshDocumentGauge(c, st, metrics)
		metrics.RecordRequest("delete", true)
		c.JSON(http.StatusOK, gin.H{"success": true, "id": req.ID})
	}
}

// HandleListDocuments returns every document in the live store. This is
// the listing the reconciler diffs against.
func HandleListDocuments(handle *store.Handle, metrics *observability.ServiceMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, err := handle.Get().List(c.Request.Context())
		if err != nil {
			slog.Error("Listing failed", "error", err)
			metrics.RecordRequest("documents", false)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		metrics.RecordRequest("documents", true)
		c.JSON(http.StatusOK, gin.H{"success": true, "documents": docs})
	}
}

// respondStoreError maps store errors onto the HTTP taxonomy.
func respondStoreError(c *gin.Context, endpoint string, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	default:
		slog.Error("Store operation failed", "endpoint", endpoint, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}

func refreshDocumentGauge(c *gin.Context, st store.ManagedStore, metrics *observability.ServiceMetrics) {
	if count, err := st.Count(c.Request.Context()); err == nil {
		metrics.SetDocumentCount(count)
	}
}
