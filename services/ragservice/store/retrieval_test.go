// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the two-phase verified-first retrieval policy

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifiedDoc(distance float32) QueryResult {
	return QueryResult{
		Document: Document{ID: "v1", Text: "verified answer", Metadata: Metadata{"verified": true}},
		Distance: distance,
	}
}

func unverifiedDoc(distance float32) QueryResult {
	return QueryResult{
		Document: Document{ID: "u1", Text: "unverified answer", Metadata: Metadata{"verified": false}},
		Distance: distance,
	}
}

func TestAnswerQueryPrefersConfidentVerifiedMatch(t *testing.T) {
	fake := &fakeQueryStore{
		verified: []QueryResult{verifiedDoc(0.1)},
		full:     []QueryResult{unverifiedDoc(0.05)},
	}
	svc := NewRetrievalService(NewHandle(fake), 0.5)

	results, err := svc.AnswerQuery(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v1", results[0].Document.ID)
	assert.Equal(t, 1, fake.verifiedCalls)
	assert.Zero(t, fake.fullCalls, "a confident verified match must not trigger the fallback")
}

func TestAnswerQueryFallsBackWhenVerifiedTooDissimilar(t *testing.T) {
	fake := &fakeQueryStore{
		verified: []QueryResult{verifiedDoc(0.8)},
		full:     []QueryResult{unverifiedDoc(0.05), verifiedDoc(0.8)},
	}
	svc := NewRetrievalService(NewHandle(fake), 0.5)

	results, err := svc.AnswerQuery(context.Background(), "query", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "u1", results[0].Document.ID)
	assert.Equal(t, 1, fake.fullCalls)
}

func TestAnswerQueryFallsBackOnEmptyVerifiedSet(t *testing.T) {
	fake := &fakeQueryStore{
		full: []QueryResult{unverifiedDoc(0.3)},
	}
	svc := NewRetrievalService(NewHandle(fake), 0.5)

	results, err := svc.AnswerQuery(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "u1", results[0].Document.ID)
}

func TestAnswerQueryTreatsVerifiedErrorAsMiss(t *testing.T) {
	fake := &fakeQueryStore{
		verifiedErr: errors.New("index exploded"),
		full:        []QueryResult{unverifiedDoc(0.3)},
	}
	svc := NewRetrievalService(NewHandle(fake), 0.5)

	results, err := svc.AnswerQuery(context.Background(), "query", 5)
	require.NoError(t, err, "a failed verified query must not surface")
	require.Len(t, results, 1)
	assert.Equal(t, "u1", results[0].Document.ID)
}

func TestAnswerQuerySurfacesFallbackError(t *testing.T) {
	fake := &fakeQueryStore{
		fullErr: errors.New("store down"),
	}
	svc := NewRetrievalService(NewHandle(fake), 0.5)

	_, err := svc.AnswerQuery(context.Background(), "query", 5)
	assert.Error(t, err)
}

func TestAnswerQuerySplitsJoinedListFields(t *testing.T) {
	fake := &fakeQueryStore{
		verified: []QueryResult{{
			Document: Document{
				ID:   "v1",
				Text: "verified answer",
				Metadata: Metadata{
					"verified": true,
					"effects":  "burn; slow",
					"source":   "guide.pdf",
				},
			},
			Distance: 0.1,
		}},
	}
	svc := NewRetrievalService(NewHandle(fake), 0.5)

	results, err := svc.AnswerQuery(context.Background(), "query", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"burn", "slow"}, results[0].Document.Metadata["effects"])
	assert.Equal(t, "guide.pdf", results[0].Document.Metadata["source"])
}

func TestNewRetrievalServiceDefaultsThreshold(t *testing.T) {
	svc := NewRetrievalService(NewHandle(&fakeQueryStore{}), 0)
	assert.InDelta(t, DefaultConfidenceThreshold, svc.Threshold(), 1e-9)
}
