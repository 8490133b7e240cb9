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
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/hupe1980/vecgo"

	"github.com/Qiiks/once-human-ai/services/ragservice/embed"
)

const docKeyPrefix = "doc/"

// record is the persisted form of a document. The vector is stored
// alongside the document so reopening a store never re-embeds.
type record struct {
	Document Document  `json:"document"`
	Vector   []float32 `json:"vector"`
}

// KnowledgeStore implements Store over a badger-backed data directory
// with an in-memory HNSW index for similarity search.
//
// # Description
//
// Badger is the system of record; every document and its vector live
// under the data directory, which is what backup archives and restore
// replaces. The HNSW index is rebuilt from badger on open and kept in
// lockstep with it on every mutation.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Mutations take an exclusive
// lock; queries share a read lock for the duration of the search.
//
// # Limitations
//
//   - Mutations write badger first and the index second; a crash between
//     the two is repaired by the index rebuild on next open.
//   - The metadata filter is applied during graph traversal, so heavily
//     filtered queries over large corpora pay an accuracy cost inherent
//     to filtered HNSW search.
type KnowledgeStore struct {
	name     string
	dataDir  string
	db       *badger.DB
	index    *vecgo.Vecgo[string]
	embedder embed.Embedder

	mu     sync.RWMutex
	docs   map[string]Document
	vecIDs map[string]uint64
	docIDs map[uint64]string
	closed bool
}

var _ ManagedStore = (*KnowledgeStore)(nil)

// Open opens (or creates) a store under dataDir and rebuilds the
// similarity index from the persisted records.
func Open(ctx context.Context, name, dataDir string, embedder embed.Embedder) (*KnowledgeStore, error) {
	opts := badger.DefaultOptions(dataDir).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open data directory %s: %w", dataDir, err)
	}

	index, err := vecgo.HNSW[string](embedder.Dimension()).Cosine().Build()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to build similarity index: %w", err)
	}

	ks := &KnowledgeStore{
		name:     name,
		dataDir:  dataDir,
		db:       db,
		index:    index,
		embedder: embedder,
		docs:     make(map[string]Document),
		vecIDs:   make(map[string]uint64),
		docIDs:   make(map[uint64]string),
	}

	if err := ks.loadAll(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	slog.Info("Knowledge store opened", "name", name, "data_dir", dataDir, "documents", len(ks.docs))
	return ks, nil
}

// loadAll replays every persisted record into the similarity index.
func (ks *KnowledgeStore) loadAll(ctx context.Context) error {
	return ks.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(docKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("corrupt record %s: %w", it.Item().Key(), err)
			}

			vecID, err := ks.index.Insert(ctx, vecgo.VectorWithData[string]{
				Vector: rec.Vector,
				Data:   rec.Document.ID,
			})
			if err != nil {
				return fmt.Errorf("failed to index document %s: %w", rec.Document.ID, err)
			}
			ks.docs[rec.Document.ID] = rec.Document
			ks.vecIDs[rec.Document.ID] = vecID
			ks.docIDs[vecID] = rec.Document.ID
		}
		return nil
	})
}

// Name returns the collection name.
func (ks *KnowledgeStore) Name() string { return ks.name }

// DataDir returns the persisted directory backing this store.
func (ks *KnowledgeStore) DataDir() string { return ks.dataDir }

// Close releases the underlying database. The store rejects all
// operations afterwards.
func (ks *KnowledgeStore) Close() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.closed {
		return nil
	}
	ks.closed = true
	return ks.db.Close()
}

func (ks *KnowledgeStore) List(ctx context.Context) ([]Document, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if ks.closed {
		return nil, ErrUnavailable
	}

	out := make([]Document, 0, len(ks.docs))
	for _, doc := range ks.docs {
		doc.Metadata = doc.Metadata.Clone()
		out = append(out, doc)
	}
	return out, nil
}

func (ks *KnowledgeStore) Add(ctx context.Context, text string, meta Metadata) (string, error) {
	if text == "" {
		return "", fmt.Errorf("%w: document text is required", ErrValidation)
	}
	if len(meta) == 0 {
		return "", fmt.Errorf("%w: document metadata is required", ErrValidation)
	}
	meta = meta.Clone()
	if err := meta.Normalize(); err != nil {
		return "", err
	}

	vectors, err := ks.embedder.Embed(ctx, []string{text})
	if err != nil {
		return "", fmt.Errorf("failed to embed document: %w", err)
	}

	doc := Document{ID: uuid.NewString(), Text: text, Metadata: meta}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.closed {
		return "", ErrUnavailable
	}

	if err := ks.persist(doc, vectors[0]); err != nil {
		return "", err
	}

	vecID, err := ks.index.Insert(ctx, vecgo.VectorWithData[string]{Vector: vectors[0], Data: doc.ID})
	if err != nil {
		return "", fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	ks.docs[doc.ID] = doc
	ks.vecIDs[doc.ID] = vecID
	ks.docIDs[vecID] = doc.ID

	slog.Debug("Document added", "id", doc.ID, "source", meta.StringValue("source"))
	return doc.ID, nil
}

func (ks *KnowledgeStore) Update(ctx context.Context, id string, text string, meta Metadata) error {
	if text == "" {
		return fmt.Errorf("%w: document text is required", ErrValidation)
	}
	if len(meta) == 0 {
		return fmt.Errorf("%w: document metadata is required", ErrValidation)
	}
	meta = meta.Clone()
	if err := meta.Normalize(); err != nil {
		return err
	}

	vectors, err := ks.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("failed to embed document: %w", err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.closed {
		return ErrUnavailable
	}
	vecID, ok := ks.vecIDs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	doc := Document{ID: id, Text: text, Metadata: meta}
	if err := ks.persist(doc, vectors[0]); err != nil {
		return err
	}
	if err := ks.index.Update(ctx, vecID, vecgo.VectorWithData[string]{Vector: vectors[0], Data: id}); err != nil {
		return fmt.Errorf("failed to reindex document %s: %w", id, err)
	}
	ks.docs[id] = doc
	return nil
}

func (ks *KnowledgeStore) Delete(ctx context.Context, id string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.closed {
		return ErrUnavailable
	}
	vecID, ok := ks.vecIDs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	err := ks.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(docKeyPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	if err := ks.index.Delete(ctx, vecID); err != nil {
		return fmt.Errorf("failed to unindex document %s: %w", id, err)
	}

	delete(ks.docs, id)
	delete(ks.vecIDs, id)
	delete(ks.docIDs, vecID)
	return nil
}

func (ks *KnowledgeStore) Query(ctx context.Context, text string, k int, filter Metadata) ([]QueryResult, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query text is required", ErrValidation)
	}
	if k <= 0 {
		k = 5
	}

	vectors, err := ks.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if ks.closed {
		return nil, ErrUnavailable
	}
	if len(ks.docs) == 0 {
		return []QueryResult{}, nil
	}
	if k > len(ks.docs) {
		k = len(ks.docs)
	}

	var optFns []func(o *vecgo.KNNSearchOptions)
	if len(filter) > 0 {
		optFns = append(optFns, func(o *vecgo.KNNSearchOptions) {
			o.FilterFunc = func(vecID uint64) bool {
				doc, ok := ks.docs[ks.docIDs[vecID]]
				if !ok {
					return false
				}
				return metadataMatches(doc.Metadata, filter)
			}
		})
	}

	hits, err := ks.index.KNNSearch(ctx, vectors[0], k, optFns...)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	results := make([]QueryResult, 0, len(hits))
	for _, hit := range hits {
		doc, ok := ks.docs[hit.Data]
		if !ok {
			continue
		}
		doc.Metadata = doc.Metadata.Clone()
		results = append(results, QueryResult{Document: doc, Distance: hit.Distance})
	}
	return results, nil
}

func (ks *KnowledgeStore) Count(ctx context.Context) (int, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if ks.closed {
		return 0, ErrUnavailable
	}
	return len(ks.docs), nil
}

func (ks *KnowledgeStore) Heartbeat(ctx context.Context) error {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if ks.closed {
		return ErrUnavailable
	}
	return ks.db.View(func(txn *badger.Txn) error { return nil })
}

// persist writes the record to badger. Callers hold the write lock.
func (ks *KnowledgeStore) persist(doc Document, vector []float32) error {
	payload, err := json.Marshal(record{Document: doc, Vector: vector})
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", doc.ID, err)
	}
	err = ks.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(docKeyPrefix+doc.ID), payload)
	})
	if err != nil {
		return fmt.Errorf("failed to persist document %s: %w", doc.ID, err)
	}
	return nil
}

// metadataMatches reports whether candidate holds every key in want with
// an equal value. List values compare element-wise.
func metadataMatches(candidate, want Metadata) bool {
	for key, v := range want {
		cv, ok := candidate[key]
		if !ok {
			return false
		}
		wantList, isList := v.([]string)
		if isList {
			gotList, ok := cv.([]string)
			if !ok || len(gotList) != len(wantList) {
				return false
			}
			for i := range wantList {
				if gotList[i] != wantList[i] {
					return false
				}
			}
			continue
		}
		if cv != v {
			return false
		}
	}
	return true
}
