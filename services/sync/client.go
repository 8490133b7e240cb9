// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sync reconciles two replica knowledge stores over their HTTP
// surfaces using composite-key identity and last-write-wins timestamps.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Qiiks/once-human-ai/services/ragservice/store"
)

const (
	maxRequestRetries = 2
	baseRetryDelay    = 500 * time.Millisecond
)

// ReplicaError wraps an HTTP failure from a replica store.
type ReplicaError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *ReplicaError) Error() string {
	return fmt.Sprintf("replica returned status %d: %s", e.StatusCode, e.Message)
}

// ConnectivityError marks a failed listing call. It aborts the whole
// reconciliation run before any mutation.
type ConnectivityError struct {
	Side string // "local" or "remote"
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s replica unreachable: %v", e.Side, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// isRetryableStatusCode reports whether the status indicates a transient
// upstream condition worth one more attempt.
func isRetryableStatusCode(code int) bool {
	return code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// Replica is the narrow contract the reconciler needs from each side.
type Replica interface {
	ListDocuments(ctx context.Context) ([]store.Document, error)
	AddDocument(ctx context.Context, text string, meta store.Metadata) (string, error)
	DeleteDocument(ctx context.Context, id string) error
}

// ReplicaClient talks to one knowledge store service over HTTP.
//
// # Description
//
// Wraps the /documents, /add, and /delete endpoints. Calls are blocking
// and sequential; transient upstream failures (502/503/504) are retried
// with exponential backoff before being surfaced.
type ReplicaClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ Replica = (*ReplicaClient)(nil)

// NewReplicaClient builds a client for the replica at baseURL.
func NewReplicaClient(baseURL string, timeout time.Duration) *ReplicaClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ReplicaClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the replica's base URL, used for logging.
func (c *ReplicaClient) BaseURL() string { return c.baseURL }

type listDocumentsResponse struct {
	Success   bool             `json:"success"`
	Documents []store.Document `json:"documents"`
	Error     string           `json:"error"`
}

// ListDocuments fetches the replica's full document listing.
func (c *ReplicaClient) ListDocuments(ctx context.Context) ([]store.Document, error) {
	body, err := c.do(ctx, http.MethodGet, "/documents", nil)
	if err != nil {
		return nil, err
	}
	var decoded listDocumentsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode document listing: %w", err)
	}
	if !decoded.Success {
		return nil, fmt.Errorf("replica rejected listing: %s", decoded.Error)
	}
	for i := range decoded.Documents {
		if err := decoded.Documents[i].Metadata.Normalize(); err != nil {
			return nil, fmt.Errorf("document %s: %w", decoded.Documents[i].ID, err)
		}
	}
	return decoded.Documents, nil
}

type mutationResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

// AddDocument inserts a document on the replica and returns the id the
// replica assigned. Replica ids are never shared across stores.
//
// List-valued metadata fields are packed into the legacy joined-string
// form on the wire so a replica still running the old pipeline stores
// them the way it expects.
func (c *ReplicaClient) AddDocument(ctx context.Context, text string, meta store.Metadata) (string, error) {
	payload := map[string]any{"document": text, "metadata": meta.JoinLists()}
	body, err := c.do(ctx, http.MethodPost, "/add", payload)
	if err != nil {
		return "", err
	}
	var decoded mutationResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode add response: %w", err)
	}
	if !decoded.Success {
		return "", fmt.Errorf("replica rejected add: %s", decoded.Error)
	}
	return decoded.ID, nil
}

// DeleteDocument removes a document by the replica's own id.
func (c *ReplicaClient) DeleteDocument(ctx context.Context, id string) error {
	payload := map[string]any{"id": id}
	body, err := c.do(ctx, http.MethodPost, "/delete", payload)
	if err != nil {
		return err
	}
	var decoded mutationResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("failed to decode delete response: %w", err)
	}
	if !decoded.Success {
		return fmt.Errorf("replica rejected delete: %s", decoded.Error)
	}
	return nil
}

// do issues one HTTP call with bounded retries on transient status codes.
func (c *ReplicaClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	retryDelay := baseRetryDelay
	var lastErr error
	for attempt := 0; attempt <= maxRequestRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
		}

		var reqBody io.Reader
		if encoded != nil {
			reqBody = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request to %s%s failed: %w", c.baseURL, path, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read response from %s%s: %w", c.baseURL, path, readErr)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		replicaErr := &ReplicaError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Retryable:  isRetryableStatusCode(resp.StatusCode),
		}
		if !replicaErr.Retryable {
			return nil, replicaErr
		}
		lastErr = replicaErr
	}
	return nil, lastErr
}
