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
	"sync"
)

// QueryResult pairs a document with its similarity distance.
// Distance is non-negative; lower means more similar.
type QueryResult struct {
	Document Document
	Distance float32
}

// Store is the contract every other component consumes.
//
// # Description
//
// A named collection of documents with list-all, add, delete, update,
// similarity-query, count, and heartbeat. One instance runs in-process
// behind the HTTP surface; the sync client wraps the same contract around
// a remote instance.
//
// # Limitations
//
//   - List order is unspecified, but two consecutive calls with no
//     intervening mutation return the same set.
//   - Query's filter is a flat equality predicate over metadata.
type Store interface {
	// List returns every document currently held.
	List(ctx context.Context) ([]Document, error)

	// Add inserts a new document and returns its assigned id.
	// Fails with ErrValidation when text or metadata is empty.
	Add(ctx context.Context, text string, meta Metadata) (string, error)

	// Update fully replaces text and metadata under an existing id.
	// Fails with ErrNotFound when the id does not exist.
	Update(ctx context.Context, id string, text string, meta Metadata) error

	// Delete removes a document by id. Fails with ErrNotFound when the
	// id does not exist.
	Delete(ctx context.Context, id string) error

	// Query returns up to k documents ranked by ascending distance.
	// A non-nil filter restricts results to documents whose metadata
	// matches every key/value pair exactly.
	Query(ctx context.Context, text string, k int, filter Metadata) ([]QueryResult, error)

	// Count returns the number of documents held.
	Count(ctx context.Context) (int, error)

	// Heartbeat verifies the store is reachable and serving.
	Heartbeat(ctx context.Context) error
}

// ManagedStore adds the lifecycle operations backup and health need on
// top of the document contract.
type ManagedStore interface {
	Store

	// DataDir returns the persisted directory backing the store.
	DataDir() string

	// Close releases the store; all operations fail afterwards.
	Close() error
}

// Handle is the process-wide accessor for the live store.
//
// # Description
//
// Restore re-creates the store against the refreshed data directory and
// swaps it in here. The swap is not atomic with respect to in-flight
// requests: a request racing a restore may observe the old store, the new
// store, or fail against a closed one. That race is documented behavior;
// restore is a maintenance-window operation.
//
// # Thread Safety
//
// Get and Swap are safe for concurrent use.
type Handle struct {
	mu sync.RWMutex
	s  ManagedStore
}

// NewHandle wraps an opened store.
func NewHandle(s ManagedStore) *Handle {
	return &Handle{s: s}
}

// Get returns the current live store. Request paths must call this fresh
// per request rather than caching the result.
func (h *Handle) Get() ManagedStore {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s
}

// Swap installs a new live store and returns the previous one.
func (h *Handle) Swap(next ManagedStore) ManagedStore {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.s
	h.s = next
	return prev
}
