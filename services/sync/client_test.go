// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the replica HTTP client

package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qiiks/once-human-ai/services/ragservice/store"
)

func TestListDocumentsDecodesAndNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/documents", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"documents": []map[string]any{
				{
					"id":       "d1",
					"document": "rifle facts",
					"metadata": map[string]any{
						"source":      "a.pdf",
						"section":     "1",
						"page_number": 3, // arrives as a JSON number
						"keywords":    []any{"rifle", "damage"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	client := NewReplicaClient(srv.URL, 5*time.Second)
	docs, err := client.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, "d1", docs[0].ID)
	assert.Equal(t, "rifle facts", docs[0].Text)
	assert.Equal(t, float64(3), docs[0].Metadata["page_number"])
	assert.Equal(t, []string{"rifle", "damage"}, docs[0].Metadata["keywords"])
}

func TestAddDocumentSendsPayloadAndReturnsID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/add", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload struct {
			Document string         `json:"document"`
			Metadata store.Metadata `json:"metadata"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "new fact", payload.Document)
		assert.Equal(t, "a.pdf", payload.Metadata.StringValue("source"))

		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "id": "assigned-1"})
	}))
	defer srv.Close()

	client := NewReplicaClient(srv.URL, 5*time.Second)
	id, err := client.AddDocument(context.Background(), "new fact", store.Metadata{"source": "a.pdf", "section": "1"})
	require.NoError(t, err)
	assert.Equal(t, "assigned-1", id)
}

func TestAddDocumentJoinsListFieldsOnTheWire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Metadata map[string]any `json:"metadata"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		// Legacy replicas expect "; "-joined strings, not arrays.
		assert.Equal(t, "burn; slow", payload.Metadata["effects"])
		assert.Equal(t, "a.pdf", payload.Metadata["source"])

		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "id": "assigned-2"})
	}))
	defer srv.Close()

	client := NewReplicaClient(srv.URL, 5*time.Second)
	_, err := client.AddDocument(context.Background(), "text", store.Metadata{
		"source":  "a.pdf",
		"section": "1",
		"effects": []string{"burn", "slow"},
	})
	require.NoError(t, err)
}

func TestDeleteDocumentRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/delete", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "no such document"})
	}))
	defer srv.Close()

	client := NewReplicaClient(srv.URL, 5*time.Second)
	err := client.DeleteDocument(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such document")
}

func TestClientRetriesTransientStatus(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "documents": []any{}})
	}))
	defer srv.Close()

	client := NewReplicaClient(srv.URL, 5*time.Second)
	docs, err := client.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, int64(2), hits.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "malformed request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewReplicaClient(srv.URL, 5*time.Second)
	_, err := client.AddDocument(context.Background(), "text", store.Metadata{"source": "a.pdf"})

	var replicaErr *ReplicaError
	require.ErrorAs(t, err, &replicaErr)
	assert.Equal(t, http.StatusBadRequest, replicaErr.StatusCode)
	assert.False(t, replicaErr.Retryable)
	assert.Equal(t, int64(1), hits.Load(), "4xx responses must not be retried")
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "still down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewReplicaClient(srv.URL, 5*time.Second)
	_, err := client.ListDocuments(context.Background())

	var replicaErr *ReplicaError
	require.ErrorAs(t, err, &replicaErr)
	assert.Equal(t, http.StatusBadGateway, replicaErr.StatusCode)
	assert.True(t, replicaErr.Retryable)
	assert.Equal(t, int64(maxRequestRetries+1), hits.Load())
}

func TestClientTrimsTrailingSlash(t *testing.T) {
	client := NewReplicaClient("http://localhost:12200/", time.Second)
	assert.Equal(t, "http://localhost:12200", client.BaseURL())
}
