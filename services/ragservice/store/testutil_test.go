// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Shared test doubles for the store package

package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync/atomic"
)

// stubEmbedder produces deterministic unit vectors without a network.
// Known texts can be pinned to fixed vectors; everything else gets a
// hash-derived vector so distinct texts land in distinct directions.
type stubEmbedder struct {
	dim    int
	pinned map[string][]float32
	calls  atomic.Int64
}

func newStubEmbedder(dim int) *stubEmbedder {
	return &stubEmbedder{dim: dim, pinned: make(map[string][]float32)}
}

func (e *stubEmbedder) pin(text string, vector []float32) {
	e.pinned[text] = vector
}

func (e *stubEmbedder) Dimension() int { return e.dim }

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := e.pinned[text]; ok {
			out[i] = v
			continue
		}
		out[i] = hashVector(text, e.dim)
	}
	return out, nil
}

func hashVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, dim)
	var norm float64
	for i := 0; i < dim; i++ {
		bits := binary.BigEndian.Uint32(sum[(i*4)%28:])
		v[i] = float32(bits%1000) + 1
		norm += float64(v[i]) * float64(v[i])
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

// fakeQueryStore is a canned ManagedStore for retrieval tests. Filtered
// queries return the verified set; unfiltered queries return the full
// set.
type fakeQueryStore struct {
	verified    []QueryResult
	verifiedErr error
	full        []QueryResult
	fullErr     error

	verifiedCalls int
	fullCalls     int
}

func (f *fakeQueryStore) List(context.Context) ([]Document, error) { return nil, nil }
func (f *fakeQueryStore) Add(context.Context, string, Metadata) (string, error) {
	return "", nil
}
func (f *fakeQueryStore) Update(context.Context, string, string, Metadata) error { return nil }
func (f *fakeQueryStore) Delete(context.Context, string) error                   { return nil }
func (f *fakeQueryStore) Count(context.Context) (int, error)                     { return 0, nil }
func (f *fakeQueryStore) Heartbeat(context.Context) error                        { return nil }
func (f *fakeQueryStore) DataDir() string                                        { return "" }
func (f *fakeQueryStore) Close() error                                           { return nil }

func (f *fakeQueryStore) Query(_ context.Context, _ string, _ int, filter Metadata) ([]QueryResult, error) {
	if len(filter) > 0 {
		f.verifiedCalls++
		return f.verified, f.verifiedErr
	}
	f.fullCalls++
	return f.full, f.fullErr
}
