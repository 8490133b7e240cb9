// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sync

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Qiiks/once-human-ai/services/ragservice/store"
)

// Counts summarizes one applied reconciliation plan.
type Counts struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Reconciler converges a target replica toward a source replica.
//
// # Description
//
// Both listings are fetched up front; a failure on either side aborts the
// run before any mutation. Documents are matched by the composite
// (source, section) key, never by id. Conflicts resolve by updated_at:
// the source side wins only with a strictly newer parseable timestamp;
// ties, missing timestamps, and a newer target all leave the target
// untouched. Replacement is add-then-delete-old, so a partial failure
// leaves a duplicate on the target rather than losing the document.
//
// # Limitations
//
//   - One run at a time; mutations are sequential with no fan-out.
//   - Per-document failures are counted and logged, never retried within
//     the run.
type Reconciler struct{}

// NewReconciler returns a reconciler.
func NewReconciler() *Reconciler { return &Reconciler{} }

// keyed pairs a document with its composite key for plan building.
type keyed struct {
	key store.CompositeKey
	doc store.Document
}

// Reconcile applies the computed plan against the target replica and
// returns the final counts. The returned error is non-nil only for the
// fatal listing precondition.
func (r *Reconciler) Reconcile(ctx context.Context, source, target Replica) (Counts, error) {
	ctx, span := otel.Tracer("sync/reconciler").Start(ctx, "Reconcile")
	defer span.End()

	var counts Counts

	sourceDocs, err := source.ListDocuments(ctx)
	if err != nil {
		return counts, &ConnectivityError{Side: "local", Err: err}
	}
	targetDocs, err := target.ListDocuments(ctx)
	if err != nil {
		return counts, &ConnectivityError{Side: "remote", Err: err}
	}

	sourceByKey := indexByKey(sourceDocs, &counts)
	targetByKey := indexByKey(targetDocs, &counts)

	for _, key := range sortedKeys(sourceByKey) {
		local := sourceByKey[key]
		remote, exists := targetByKey[key]
		if !exists {
			if _, err := target.AddDocument(ctx, local.Text, local.Metadata); err != nil {
				slog.Error("Failed to add document", "key", key, "error", err)
				counts.Failed++
				continue
			}
			counts.Added++
			continue
		}

		if !sourceWins(local, remote) {
			counts.Skipped++
			continue
		}

		// Add the new copy before removing the old one. If the delete
		// fails the target holds a duplicate until the next run, which
		// beats losing the document outright.
		if _, err := target.AddDocument(ctx, local.Text, local.Metadata); err != nil {
			slog.Error("Failed to add replacement document", "key", key, "error", err)
			counts.Failed++
			continue
		}
		if err := target.DeleteDocument(ctx, remote.ID); err != nil {
			slog.Error("Failed to delete superseded document", "key", key, "id", remote.ID, "error", err)
			counts.Failed++
			continue
		}
		counts.Updated++
	}

	for _, key := range sortedKeys(targetByKey) {
		if _, exists := sourceByKey[key]; exists {
			continue
		}
		remote := targetByKey[key]
		if err := target.DeleteDocument(ctx, remote.ID); err != nil {
			slog.Error("Failed to delete document", "key", key, "id", remote.ID, "error", err)
			counts.Failed++
			continue
		}
		counts.Deleted++
	}

	span.SetAttributes(
		attribute.Int("added", counts.Added),
		attribute.Int("updated", counts.Updated),
		attribute.Int("skipped", counts.Skipped),
		attribute.Int("deleted", counts.Deleted),
		attribute.Int("failed", counts.Failed),
	)
	slog.Info("Reconciliation complete",
		"added", counts.Added, "updated", counts.Updated,
		"skipped", counts.Skipped, "deleted", counts.Deleted, "failed", counts.Failed)
	return counts, nil
}

// CleanDuplicates removes documents on the replica that share identical
// text, keeping the first of each group.
func (r *Reconciler) CleanDuplicates(ctx context.Context, replica Replica) (removed, failed int, err error) {
	docs, err := replica.ListDocuments(ctx)
	if err != nil {
		return 0, 0, &ConnectivityError{Side: "remote", Err: err}
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if !seen[doc.Text] {
			seen[doc.Text] = true
			continue
		}
		if err := replica.DeleteDocument(ctx, doc.ID); err != nil {
			slog.Error("Failed to delete duplicate", "id", doc.ID, "error", err)
			failed++
			continue
		}
		removed++
	}
	return removed, failed, nil
}

// indexByKey maps documents by composite key. Documents without a sync
// identity are counted as skipped and left alone on both sides. When one
// listing holds several documents under the same key, the last one wins
// and the collision is logged: only that copy is acted on this run, so
// convergence of a duplicated replica takes one run per extra copy.
func indexByKey(docs []store.Document, counts *Counts) map[store.CompositeKey]store.Document {
	byKey := make(map[store.CompositeKey]store.Document, len(docs))
	for _, doc := range docs {
		key, ok := doc.Key()
		if !ok {
			counts.Skipped++
			continue
		}
		if prev, exists := byKey[key]; exists {
			slog.Warn("Duplicate composite key in listing",
				"key", key, "kept_id", doc.ID, "shadowed_id", prev.ID)
		}
		byKey[key] = doc
	}
	return byKey
}

// sourceWins decides the last-write-wins comparison. The target is
// authoritative on ties and whenever the source timestamp is missing or
// unparseable.
func sourceWins(local, remote store.Document) bool {
	localTS, localOK := local.UpdatedAt()
	if !localOK {
		return false
	}
	remoteTS, remoteOK := remote.UpdatedAt()
	if !remoteOK {
		return true
	}
	return localTS.After(remoteTS)
}

func sortedKeys(m map[store.CompositeKey]store.Document) []store.CompositeKey {
	keys := make([]store.CompositeKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Source != keys[j].Source {
			return keys[i].Source < keys[j].Source
		}
		return keys[i].Section < keys[j].Section
	})
	return keys
}
