// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobstore

import (
	"github.com/cockroachdb/errors"
	"github.com/tonsnakelin/blobstore/internal/base"
)

// Remove releases the space backing each entry (spec.md §4.6). A blob file
// is physically deleted only once it is simultaneously read-only and empty
// of valid bytes; otherwise its space map is merely recalculated so
// MaxCapsHint reflects the freed room.
func (s *Store) Remove(entries []Entry) error {
	touched := map[BlobID]struct{}{}
	for _, entry := range entries {
		if entry.IsRemote() || entry.Size == 0 {
			// External/remote markers carry no local bytes to release.
			continue
		}
		touched[entry.FileID] = struct{}{}
		if err := s.removeEntry(entry); err != nil {
			return errors.Wrapf(err, "blobstore: remove entry %s", entry)
		}
	}
	for id := range touched {
		s.recalculateStat(id)
	}
	return nil
}

// removeEntry releases one entry's space and, if that leaves its blob both
// read-only and empty, deletes the blob file. The stat's lock is released
// before the registry lock is acquired for EraseStat, honoring the lock
// hierarchy in spec.md §5 (registry lock must never be acquired while
// holding a stat lock).
func (s *Store) removeEntry(entry Entry) error {
	stat, ok := s.stats.Get(entry.FileID)
	if !ok {
		return base.CorruptionErrorf("blobstore: unknown blob id %s", entry.FileID)
	}

	stat.Lock()
	remaining := stat.Release(entry.Offset, entry.Size+entry.PaddedSize)
	shouldRemoveFile := stat.IsReadOnlyLocked() && remaining == 0
	stat.Unlock()

	if !shouldRemoveFile {
		return nil
	}

	// The blob file is read-only, so no writer will ever target it again;
	// it's safe to erase and unlink now that the stat's own lock is
	// released.
	snap := stat.Snapshot()
	path := s.blobFilePath(stat)
	if !s.stats.EraseStat(entry.FileID) {
		// Lost a race (e.g. a concurrent Remove already erased it); nothing
		// left to do.
		return nil
	}
	s.files.Evict(entry.FileID)
	return s.deleteBlobFile(entry.FileID, path, snap.TotalSize)
}

func (s *Store) recalculateStat(id BlobID) {
	stat, ok := s.stats.Get(id)
	if !ok {
		// The blob may have just been erased by removeEntry; nothing to
		// recalculate.
		return
	}
	stat.RecalculateCapacity()
}

func (s *Store) deleteBlobFile(id BlobID, path string, totalSize uint64) error {
	if err := s.fs.Remove(path); err != nil {
		return errors.Wrapf(err, "blobstore: remove blob file %s", path)
	}
	s.delegator.AddUsedSize(id, -int64(totalSize), path)
	return nil
}
