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

import "errors"

var (
	// ErrValidation marks malformed or missing request fields. Maps to
	// HTTP 400 and is never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks operations against an unknown document id.
	// Deleting an id that does not exist is a caller error, never a
	// silent no-op, so callers can detect stale state.
	ErrNotFound = errors.New("document not found")

	// ErrBadArchive marks restore input that is not a valid archive.
	ErrBadArchive = errors.New("not a valid backup archive")

	// ErrUnavailable marks a store that has been closed or is mid-restore.
	ErrUnavailable = errors.New("store unavailable")
)
