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
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// BackupManager archives and restores a store's persisted directory.
//
// # Description
//
// Create walks the data directory into a tar.gz written to a temporary
// file under the backup directory, materializes the whole archive in
// memory, and removes the temporary file on every exit path. Restore
// validates the archive, closes the live store, replaces the data
// directory wholesale, reopens the store, and swaps the live handle.
//
// # Limitations
//
//   - Restore is not atomic with respect to concurrent requests: a
//     request racing the swap may see the old store, the new store, or a
//     closed one. Treat restore as a maintenance-window operation.
//   - Create reads the data directory of a running store; run it during
//     a quiet period for a crash-consistent archive.
type BackupManager struct {
	handle    *Handle
	backupDir string
	reopen    func(ctx context.Context, dataDir string) (ManagedStore, error)
}

// NewBackupManager wires backups to the live handle. reopen re-creates
// the store against a refreshed data directory after restore.
func NewBackupManager(handle *Handle, backupDir string, reopen func(ctx context.Context, dataDir string) (ManagedStore, error)) *BackupManager {
	return &BackupManager{handle: handle, backupDir: backupDir, reopen: reopen}
}

// Create archives the store's entire data directory and returns the
// archive bytes.
func (m *BackupManager) Create(ctx context.Context) ([]byte, error) {
	st := m.handle.Get()
	if st == nil {
		return nil, ErrUnavailable
	}
	dataDir := st.DataDir()

	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	tmp, err := os.CreateTemp(m.backupDir, "backup-*.tar.gz")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeArchive(tmp, dataDir); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	archive, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	slog.Info("Backup created", "data_dir", dataDir, "bytes", len(archive))
	return archive, nil
}

// Restore replaces the store's data directory with the archive contents
// and swaps in a freshly opened store.
func (m *BackupManager) Restore(ctx context.Context, archive []byte) error {
	if !isGzip(archive) {
		return fmt.Errorf("%w: expected a gzip archive", ErrBadArchive)
	}

	old := m.handle.Get()
	if old == nil {
		return ErrUnavailable
	}
	dataDir := old.DataDir()

	if err := old.Close(); err != nil {
		return fmt.Errorf("failed to close store before restore: %w", err)
	}

	if err := os.RemoveAll(dataDir); err != nil {
		return fmt.Errorf("failed to clear data directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to recreate data directory: %w", err)
	}

	if err := unpackArchive(archive, dataDir); err != nil {
		return err
	}

	next, err := m.reopen(ctx, dataDir)
	if err != nil {
		// The old store is already closed; the service is down for this
		// collection until a successful restore or a process restart.
		return fmt.Errorf("failed to reopen store after restore: %w", err)
	}
	m.handle.Swap(next)

	count, _ := next.Count(ctx)
	slog.Info("Backup restored", "data_dir", dataDir, "documents", count)
	return nil
}

// SuggestedFilename returns a timestamped download name for an archive.
func (m *BackupManager) SuggestedFilename() string {
	return fmt.Sprintf("knowledge-backup-%s.tar.gz", time.Now().UTC().Format("2006-01-02_150405"))
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

// writeArchive tars the directory tree rooted at dataDir into w with
// paths relative to dataDir.
func writeArchive(w io.Writer, dataDir string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to archive data directory: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finalize gzip stream: %w", err)
	}
	return nil
}

// unpackArchive extracts the tar.gz archive into dataDir, rejecting
// entries that would escape it.
func unpackArchive(archive []byte, dataDir string) error {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadArchive, err)
		}

		name := filepath.Clean(filepath.FromSlash(hdr.Name))
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			return fmt.Errorf("%w: archive entry escapes target directory: %s", ErrBadArchive, hdr.Name)
		}
		target := filepath.Join(dataDir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("failed to create directory for %s: %w", target, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", target, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				_ = f.Close()
				return fmt.Errorf("failed to extract %s: %w", target, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to finalize %s: %w", target, err)
			}
		default:
			// symlinks and specials never appear in a data directory we
			// wrote ourselves; refuse rather than guess
			return fmt.Errorf("%w: unsupported archive entry type for %s", ErrBadArchive, hdr.Name)
		}
	}
}
