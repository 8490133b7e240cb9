// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the backup/restore lifecycle

package store

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchiveWithEntry(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     name,
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(content)),
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func newTestBackupManager(t *testing.T, embedder *stubEmbedder) (*BackupManager, *Handle, string) {
	t.Helper()
	ctx := context.Background()
	dataDir := t.TempDir()

	ks, err := Open(ctx, "test_knowledge", dataDir, embedder)
	require.NoError(t, err)
	t.Cleanup(func() { _ = handleClose(ks) })

	handle := NewHandle(ks)
	mgr := NewBackupManager(handle, t.TempDir(), func(ctx context.Context, dir string) (ManagedStore, error) {
		return Open(ctx, "test_knowledge", dir, embedder)
	})
	return mgr, handle, dataDir
}

func handleClose(s ManagedStore) error {
	if s == nil {
		return nil
	}
	return s.Close()
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	embedder := newStubEmbedder(4)
	mgr, handle, _ := newTestBackupManager(t, embedder)
	ctx := context.Background()

	id1, err := handle.Get().Add(ctx, "fact one", Metadata{"source": "a.pdf", "section": "1", "verified": true})
	require.NoError(t, err)
	id2, err := handle.Get().Add(ctx, "fact two", Metadata{"source": "a.pdf", "section": "2"})
	require.NoError(t, err)

	archive, err := mgr.Create(ctx)
	require.NoError(t, err)
	require.True(t, isGzip(archive))

	// Mutate after the snapshot, then restore over the mutation.
	_, err = handle.Get().Add(ctx, "post-snapshot noise", Metadata{"source": "b.pdf", "section": "9"})
	require.NoError(t, err)

	require.NoError(t, mgr.Restore(ctx, archive))
	t.Cleanup(func() { _ = handleClose(handle.Get()) })

	docs, err := handle.Get().List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byID := map[string]Document{docs[0].ID: docs[0], docs[1].ID: docs[1]}
	require.Contains(t, byID, id1, "restoring onto the same persisted files must reproduce identical ids")
	require.Contains(t, byID, id2)
	assert.Equal(t, "fact one", byID[id1].Text)
	assert.Equal(t, true, byID[id1].Metadata["verified"])
	assert.Equal(t, "fact two", byID[id2].Text)
}

func TestRestoredStoreServesQueries(t *testing.T) {
	embedder := newStubEmbedder(4)
	mgr, handle, _ := newTestBackupManager(t, embedder)
	ctx := context.Background()

	_, err := handle.Get().Add(ctx, "searchable fact", Metadata{"source": "a.pdf", "section": "1"})
	require.NoError(t, err)

	archive, err := mgr.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, mgr.Restore(ctx, archive))
	t.Cleanup(func() { _ = handleClose(handle.Get()) })

	results, err := handle.Get().Query(ctx, "searchable fact", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "searchable fact", results[0].Document.Text)
}

func TestRestoreRejectsNonArchive(t *testing.T) {
	embedder := newStubEmbedder(4)
	mgr, handle, _ := newTestBackupManager(t, embedder)
	ctx := context.Background()

	err := mgr.Restore(ctx, []byte("this is not an archive"))
	assert.ErrorIs(t, err, ErrBadArchive)

	// The live store is untouched by a rejected upload.
	require.NoError(t, handle.Get().Heartbeat(ctx))
}

func TestRestoreRejectsCorruptGzip(t *testing.T) {
	embedder := newStubEmbedder(4)
	mgr, _, _ := newTestBackupManager(t, embedder)

	// Valid magic bytes, garbage body.
	corrupt := append([]byte{0x1f, 0x8b}, []byte("garbage payload")...)
	err := mgr.Restore(context.Background(), corrupt)
	assert.ErrorIs(t, err, ErrBadArchive)
}

func TestCreateCleansUpTempFiles(t *testing.T) {
	embedder := newStubEmbedder(4)
	ctx := context.Background()
	dataDir := t.TempDir()
	backupDir := t.TempDir()

	ks, err := Open(ctx, "test_knowledge", dataDir, embedder)
	require.NoError(t, err)
	defer ks.Close()

	handle := NewHandle(ks)
	mgr := NewBackupManager(handle, backupDir, func(ctx context.Context, dir string) (ManagedStore, error) {
		return Open(ctx, "test_knowledge", dir, embedder)
	})

	_, err = mgr.Create(ctx)
	require.NoError(t, err)

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary archive files must be removed on every exit path")
}

func TestUnpackArchiveRejectsTraversal(t *testing.T) {
	target := t.TempDir()

	// A handcrafted archive whose entry tries to climb out of the target.
	archive := buildArchiveWithEntry(t, "../escape.txt", []byte("nope"))
	err := unpackArchive(archive, target)
	assert.ErrorIs(t, err, ErrBadArchive)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(target), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}
