// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the document model and metadata conventions

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeKey(t *testing.T) {
	t.Run("uses source and section", func(t *testing.T) {
		doc := Document{Metadata: Metadata{"source": "a.pdf", "section": "1"}}
		key, ok := doc.Key()
		require.True(t, ok)
		assert.Equal(t, CompositeKey{Source: "a.pdf", Section: "1"}, key)
	})

	t.Run("falls back to page_number", func(t *testing.T) {
		doc := Document{Metadata: Metadata{"source": "a.pdf", "page_number": "12"}}
		key, ok := doc.Key()
		require.True(t, ok)
		assert.Equal(t, "12", key.Section)
	})

	t.Run("section wins over page_number", func(t *testing.T) {
		doc := Document{Metadata: Metadata{"source": "a.pdf", "section": "intro", "page_number": "12"}}
		key, _ := doc.Key()
		assert.Equal(t, "intro", key.Section)
	})

	t.Run("no source means no sync identity", func(t *testing.T) {
		doc := Document{Metadata: Metadata{"section": "1"}}
		_, ok := doc.Key()
		assert.False(t, ok)
	})
}

func TestUpdatedAt(t *testing.T) {
	t.Run("parses Z suffix as UTC", func(t *testing.T) {
		doc := Document{Metadata: Metadata{"updated_at": "2024-01-01T00:00:00Z"}}
		ts, ok := doc.UpdatedAt()
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ts.UTC())
	})

	t.Run("parses explicit offset", func(t *testing.T) {
		doc := Document{Metadata: Metadata{"updated_at": "2024-01-01T02:00:00+02:00"}}
		ts, ok := doc.UpdatedAt()
		require.True(t, ok)
		assert.True(t, ts.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("missing or garbage timestamps are not eligible", func(t *testing.T) {
		_, ok := Document{Metadata: Metadata{}}.UpdatedAt()
		assert.False(t, ok)

		_, ok = Document{Metadata: Metadata{"updated_at": "yesterday"}}.UpdatedAt()
		assert.False(t, ok)
	})
}

func TestMetadataNormalize(t *testing.T) {
	t.Run("coerces decoded arrays to string lists", func(t *testing.T) {
		m := Metadata{"keywords": []any{"fire", "ice"}, "verified": true, "page": float64(3)}
		require.NoError(t, m.Normalize())
		assert.Equal(t, []string{"fire", "ice"}, m["keywords"])
	})

	t.Run("rejects mixed arrays", func(t *testing.T) {
		m := Metadata{"keywords": []any{"fire", 3}}
		err := m.Normalize()
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects nested maps", func(t *testing.T) {
		m := Metadata{"nested": map[string]any{"a": "b"}}
		err := m.Normalize()
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestJoinedListRoundTrip(t *testing.T) {
	joined := Metadata{
		"effects":  "burn; slow",
		"keywords": "weapon; rifle",
		"source":   "guide.pdf",
	}
	split := joined.SplitJoinedLists()
	assert.Equal(t, []string{"burn", "slow"}, split["effects"])
	assert.Equal(t, []string{"weapon", "rifle"}, split["keywords"])
	assert.Equal(t, "guide.pdf", split["source"])

	rejoined := split.JoinLists()
	assert.Equal(t, "burn; slow", rejoined["effects"])
	assert.Equal(t, "guide.pdf", rejoined["source"])
}

func TestSplitJoinedListsEmptyField(t *testing.T) {
	m := Metadata{"effects": ""}
	out := m.SplitJoinedLists()
	assert.Equal(t, []string{}, out["effects"])
}

func TestMetadataEqual(t *testing.T) {
	a := Metadata{"source": "a.pdf", "keywords": []string{"x", "y"}, "verified": true}
	b := Metadata{"source": "a.pdf", "keywords": []string{"x", "y"}, "verified": true}
	assert.True(t, a.Equal(b))

	b["keywords"] = []string{"x"}
	assert.False(t, a.Equal(b))

	c := Metadata{"source": "a.pdf", "verified": true}
	assert.False(t, a.Equal(c))
}
