// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Qiiks/once-human-ai/services/ragservice/embed"
)

// Check statuses. Warnings do not fail the aggregate.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// memoryWarnBytes is the heap size above which the memory check degrades
// to a warning.
const memoryWarnBytes = 2 << 30

// CheckResult is one entry in the health battery.
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthReport aggregates the full battery.
type HealthReport struct {
	Status        string        `json:"status"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	Checks        []CheckResult `json:"checks"`
}

// Healthy reports whether every non-warning check passed.
func (r HealthReport) Healthy() bool { return r.Status == "healthy" }

// HealthManager runs the fixed battery of independent checks.
//
// # Description
//
// Checks cover store connectivity, store query capability, embedder
// liveness, data directory accessibility and size, memory headroom, and
// required configuration. The aggregate is healthy only when every check
// that is not a warning passes. Readiness and liveness are separate,
// cheaper probes.
type HealthManager struct {
	handle      *Handle
	embedder    embed.Embedder
	requiredEnv []string
	startedAt   time.Time
}

// NewHealthManager wires the battery to the live handle.
func NewHealthManager(handle *Handle, embedder embed.Embedder, requiredEnv []string) *HealthManager {
	return &HealthManager{
		handle:      handle,
		embedder:    embedder,
		requiredEnv: requiredEnv,
		startedAt:   time.Now(),
	}
}

// Uptime returns the time elapsed since the manager was created.
func (h *HealthManager) Uptime() time.Duration { return time.Since(h.startedAt) }

// Check runs the full battery concurrently and aggregates the result.
func (h *HealthManager) Check(ctx context.Context) HealthReport {
	results := make([]CheckResult, 6)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { results[0] = h.checkHeartbeat(ctx); return nil })
	g.Go(func() error { results[1] = h.checkQuery(ctx); return nil })
	g.Go(func() error { results[2] = h.checkEmbedder(ctx); return nil })
	g.Go(func() error { results[3] = h.checkDataDir(); return nil })
	g.Go(func() error { results[4] = h.checkMemory(); return nil })
	g.Go(func() error { results[5] = h.checkConfig(); return nil })
	_ = g.Wait()

	status := "healthy"
	for _, r := range results {
		if r.Status == StatusFail {
			status = "unhealthy"
			break
		}
	}
	return HealthReport{
		Status:        status,
		UptimeSeconds: h.Uptime().Seconds(),
		Checks:        results,
	}
}

// Readiness verifies the store is reachable and countable.
func (h *HealthManager) Readiness(ctx context.Context) (int, error) {
	st := h.handle.Get()
	if st == nil {
		return 0, ErrUnavailable
	}
	if err := st.Heartbeat(ctx); err != nil {
		return 0, err
	}
	return st.Count(ctx)
}

func (h *HealthManager) checkHeartbeat(ctx context.Context) CheckResult {
	st := h.handle.Get()
	if st == nil {
		return CheckResult{Name: "store_heartbeat", Status: StatusFail, Detail: "no live store"}
	}
	if err := st.Heartbeat(ctx); err != nil {
		return CheckResult{Name: "store_heartbeat", Status: StatusFail, Detail: err.Error()}
	}
	return CheckResult{Name: "store_heartbeat", Status: StatusPass}
}

func (h *HealthManager) checkQuery(ctx context.Context) CheckResult {
	st := h.handle.Get()
	if st == nil {
		return CheckResult{Name: "store_query", Status: StatusFail, Detail: "no live store"}
	}
	if _, err := st.Query(ctx, "health check probe", 1, nil); err != nil {
		return CheckResult{Name: "store_query", Status: StatusFail, Detail: err.Error()}
	}
	return CheckResult{Name: "store_query", Status: StatusPass}
}

func (h *HealthManager) checkEmbedder(ctx context.Context) CheckResult {
	vectors, err := h.embedder.Embed(ctx, []string{"ok"})
	if err != nil {
		return CheckResult{Name: "embedder", Status: StatusFail, Detail: err.Error()}
	}
	if len(vectors) != 1 || len(vectors[0]) != h.embedder.Dimension() {
		return CheckResult{Name: "embedder", Status: StatusFail, Detail: "unexpected embedding shape"}
	}
	return CheckResult{Name: "embedder", Status: StatusPass}
}

func (h *HealthManager) checkDataDir() CheckResult {
	st := h.handle.Get()
	if st == nil {
		return CheckResult{Name: "data_dir", Status: StatusFail, Detail: "no live store"}
	}
	dataDir := st.DataDir()
	info, err := os.Stat(dataDir)
	if err != nil {
		return CheckResult{Name: "data_dir", Status: StatusFail, Detail: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Name: "data_dir", Status: StatusFail, Detail: "not a directory"}
	}

	var size int64
	_ = filepath.Walk(dataDir, func(_ string, fi os.FileInfo, err error) error {
		if err == nil && !fi.IsDir() {
			size += fi.Size()
		}
		return nil
	})
	return CheckResult{Name: "data_dir", Status: StatusPass, Detail: fmt.Sprintf("%d bytes", size)}
}

func (h *HealthManager) checkMemory() CheckResult {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	detail := fmt.Sprintf("heap_alloc=%d", ms.HeapAlloc)
	if ms.HeapAlloc > memoryWarnBytes {
		return CheckResult{Name: "memory", Status: StatusWarn, Detail: detail}
	}
	return CheckResult{Name: "memory", Status: StatusPass, Detail: detail}
}

func (h *HealthManager) checkConfig() CheckResult {
	for _, key := range h.requiredEnv {
		if os.Getenv(key) == "" {
			return CheckResult{Name: "config", Status: StatusFail, Detail: "missing " + key}
		}
	}
	return CheckResult{Name: "config", Status: StatusPass}
}
