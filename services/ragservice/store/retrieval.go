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
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultConfidenceThreshold gates the verified-first phase: a verified
// match only wins when its distance is strictly below this value.
const DefaultConfidenceThreshold = 0.5

// DefaultResultCount is used when a caller asks for zero results.
const DefaultResultCount = 5

// RetrievalService answers similarity queries with a two-phase
// verified-first policy.
//
// # Description
//
// Phase one queries only curated documents (verified=true). The curated
// answer is returned only when it exists and its best distance clears the
// confidence threshold; otherwise phase two re-queries the whole corpus.
// A store error during phase one is treated the same as "no verified
// results" and falls through; only the fallback query is a hard failure
// boundary.
//
// # Limitations
//
//   - The threshold is compared against raw index distance, so changing
//     the distance metric requires re-tuning it.
type RetrievalService struct {
	handle    *Handle
	threshold float32
}

// NewRetrievalService wires retrieval to the live store handle.
// A non-positive threshold falls back to DefaultConfidenceThreshold.
func NewRetrievalService(handle *Handle, threshold float32) *RetrievalService {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &RetrievalService{handle: handle, threshold: threshold}
}

// Threshold returns the configured confidence threshold.
func (s *RetrievalService) Threshold() float32 { return s.threshold }

// AnswerQuery returns up to k documents for the query text, preferring
// curated data when it is actually relevant.
func (s *RetrievalService) AnswerQuery(ctx context.Context, text string, k int) ([]QueryResult, error) {
	ctx, span := otel.Tracer("ragservice/retrieval").Start(ctx, "AnswerQuery")
	defer span.End()

	if k <= 0 {
		k = DefaultResultCount
	}
	st := s.handle.Get()

	verified, err := st.Query(ctx, text, k, Metadata{"verified": true})
	switch {
	case err != nil:
		// A failed curated query is not fatal; the unfiltered pass below
		// is the only hard failure boundary.
		slog.Warn("Verified query failed, falling back to full corpus", "error", err)
	case len(verified) > 0 && verified[0].Distance < s.threshold:
		span.SetAttributes(attribute.Bool("verified_hit", true), attribute.Int("results", len(verified)))
		return splitListFields(verified), nil
	case len(verified) > 0:
		slog.Debug("Best verified match too dissimilar, falling back",
			"distance", verified[0].Distance, "threshold", s.threshold)
	}

	results, err := st.Query(ctx, text, k, nil)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("verified_hit", false), attribute.Int("results", len(results)))
	return splitListFields(results), nil
}

// splitListFields converts legacy joined list fields back into lists on
// every returned document.
func splitListFields(results []QueryResult) []QueryResult {
	for i := range results {
		results[i].Document.Metadata = results[i].Document.Metadata.SplitJoinedLists()
	}
	return results
}
