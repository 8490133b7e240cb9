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
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Qiiks/once-human-ai/services/ragservice/observability"
	"github.com/Qiiks/once-human-ai/services/ragservice/store"
)

// maxRestoreBytes caps the accepted upload size on /restore.
const maxRestoreBytes = 2 << 30

// HandleBackup streams a full archive of the store's data directory.
func HandleBackup(mgr *store.BackupManager, metrics *observability.ServiceMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		archive, err := mgr.Create(c.Request.Context())
		if err != nil {
			slog.Error("Backup failed", "error", err)
			metrics.RecordRequest("backup", false)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		metrics.RecordRequest("backup", true)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", mgr.SuggestedFilename()))
		c.Data(http.StatusOK, "application/gzip", archive)
	}
}

// HandleRestore replaces the store's persisted state from an uploaded
// archive. The upload is the multipart file field "backup_file".
func HandleRestore(mgr *store.BackupManager, metrics *observability.ServiceMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("backup_file")
		if err != nil {
			metrics.RecordRequest("restore", false)
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "multipart file field backup_file is required"})
			return
		}

		f, err := fileHeader.Open()
		if err != nil {
			metrics.RecordRequest("restore", false)
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "failed to open uploaded file"})
			return
		}
		defer f.Close()

		archive, err := io.ReadAll(io.LimitReader(f, maxRestoreBytes))
		if err != nil {
			metrics.RecordRequest("restore", false)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to read uploaded file"})
			return
		}

		if err := mgr.Restore(c.Request.Context(), archive); err != nil {
			metrics.RecordRequest("restore", false)
			if errors.Is(err, store.ErrBadArchive) {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			slog.Error("Restore failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		metrics.RecordRequest("restore", true)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "store restored from backup"})
	}
}
