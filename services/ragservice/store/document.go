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
	"fmt"
	"strings"
	"time"
)

// listDelimiter is the legacy separator older replicas use to pack
// list-valued metadata fields into a single string.
const listDelimiter = "; "

// joinedListFields are the metadata keys that older replicas serialize as
// delimiter-joined strings. Retrieval splits these back into lists before
// returning results to callers.
var joinedListFields = map[string]bool{
	"effects":              true,
	"keywords":             true,
	"stats_percentages":    true,
	"stats_numbers":        true,
	"stats_durations":      true,
	"entities_weapons":     true,
	"entities_armor_sets":  true,
	"entities_key_gear":    true,
	"entities_weapon_mods": true,
	"entities_armor_mods":  true,
}

// Metadata holds the descriptive fields attached to a Document.
//
// # Description
//
// Values are restricted to a tagged union: string, []string, bool, or
// float64. Nested maps are rejected at the storage boundary. Recognized
// keys include "source", "section", "page_number", "category", "verified",
// and "updated_at"; everything else passes through untouched.
type Metadata map[string]any

// Document is the unit of storage and sync.
//
// # Description
//
// ID is opaque and unique within one store instance only. Cross-replica
// identity is the composite key returned by Key, never ID: the two
// replicas assign unrelated identifiers to the same underlying fact.
type Document struct {
	ID       string   `json:"id"`
	Text     string   `json:"document"`
	Metadata Metadata `json:"metadata"`
}

// CompositeKey identifies the same sync-unit across replicas.
type CompositeKey struct {
	Source  string
	Section string
}

func (k CompositeKey) String() string {
	return k.Source + "#" + k.Section
}

// Key returns the document's cross-replica identity and whether it has one.
//
// Section falls back to page_number when section is absent. Documents with
// no source have no sync identity and are skipped by reconciliation.
func (d Document) Key() (CompositeKey, bool) {
	source := d.Metadata.StringValue("source")
	if source == "" {
		return CompositeKey{}, false
	}
	section := d.Metadata.StringValue("section")
	if section == "" {
		section = d.Metadata.StringValue("page_number")
	}
	return CompositeKey{Source: source, Section: section}, true
}

// UpdatedAt parses the document's updated_at field as RFC 3339.
//
// Returns false when the field is absent or unparseable; callers treat
// such documents as not eligible to overwrite the other replica.
func (d Document) UpdatedAt() (time.Time, bool) {
	raw := d.Metadata.StringValue("updated_at")
	if raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// StringValue returns the metadata value for key if it is a string.
func (m Metadata) StringValue(key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Normalize coerces JSON-decoded values into the supported union and
// rejects anything else.
//
// # Description
//
// JSON decoding produces []any for arrays; Normalize converts those to
// []string when every element is a string. Integers arrive as float64 and
// stay that way. Nested maps and mixed-type arrays are validation errors.
func (m Metadata) Normalize() error {
	for key, v := range m {
		switch val := v.(type) {
		case string, bool, float64, []string:
			// already canonical
		case int:
			m[key] = float64(val)
		case []any:
			items := make([]string, len(val))
			for i, e := range val {
				s, ok := e.(string)
				if !ok {
					return fmt.Errorf("%w: metadata field %q: list elements must be strings", ErrValidation, key)
				}
				items[i] = s
			}
			m[key] = items
		default:
			return fmt.Errorf("%w: metadata field %q has unsupported type %T", ErrValidation, key, v)
		}
	}
	return nil
}

// SplitJoinedLists converts legacy delimiter-joined list fields into
// []string values. Fields already holding lists, and unrecognized fields,
// pass through unchanged.
func (m Metadata) SplitJoinedLists() Metadata {
	out := make(Metadata, len(m))
	for key, v := range m {
		if joinedListFields[key] {
			if s, ok := v.(string); ok {
				if s == "" {
					out[key] = []string{}
				} else {
					out[key] = strings.Split(s, listDelimiter)
				}
				continue
			}
		}
		out[key] = v
	}
	return out
}

// JoinLists is the inverse of SplitJoinedLists, used when handing a
// document to a replica that still speaks the joined-string convention.
func (m Metadata) JoinLists() Metadata {
	out := make(Metadata, len(m))
	for key, v := range m {
		if items, ok := v.([]string); ok && joinedListFields[key] {
			out[key] = strings.Join(items, listDelimiter)
			continue
		}
		out[key] = v
	}
	return out
}

// Clone returns a shallow copy with list values copied.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for key, v := range m {
		if items, ok := v.([]string); ok {
			cp := make([]string, len(items))
			copy(cp, items)
			out[key] = cp
			continue
		}
		out[key] = v
	}
	return out
}

// Equal reports whether two metadata maps hold the same keys and values.
func (m Metadata) Equal(other Metadata) bool {
	if len(m) != len(other) {
		return false
	}
	for key, v := range m {
		ov, ok := other[key]
		if !ok {
			return false
		}
		a, aList := v.([]string)
		b, bList := ov.([]string)
		if aList != bList {
			return false
		}
		if aList {
			if len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i] != b[i] {
					return false
				}
			}
			continue
		}
		if v != ov {
			return false
		}
	}
	return true
}
