// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobstore

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/tonsnakelin/blobstore/internal/base"
	"github.com/tonsnakelin/blobstore/internal/blobstat"
	"github.com/tonsnakelin/blobstore/internal/crc64"
	"github.com/tonsnakelin/blobstore/internal/invariants"
)

// GetGCStats scans every writable blob, computing its valid rate and
// deciding whether it needs migration, per spec.md §4.7. A blob whose
// used_boundary has fallen to zero is simply truncated and left writable;
// a blob below HeavyGCValidRate is marked read-only and returned for
// migration by GC. Every blob whose file is larger than its used_boundary
// is truncated, whether or not it needs full migration.
func (s *Store) GetGCStats() ([]BlobID, error) {
	var needGC []BlobID
	for _, stat := range s.stats.All() {
		if stat.IsReadOnly() {
			continue
		}

		stat.Lock()
		boundary := stat.UsedBoundaryLocked()
		valid := stat.ValidSizeLocked()
		total := stat.TotalSizeLocked()

		if boundary == 0 {
			if invariants.Enabled && valid != 0 {
				stat.Unlock()
				return nil, base.AssertionFailedf(
					"blobstore: blob %s has zero used boundary but valid size %d", stat.ID, valid)
			}
			if err := s.truncateBlobFile(stat, 0); err != nil {
				stat.Unlock()
				return nil, err
			}
			stat.Unlock()
			continue
		}

		validRate := float64(valid) / float64(boundary)
		s.config.Metrics.observeValidRate(stat.ID, validRate)
		if validRate <= s.config.HeavyGCValidRate {
			stat.MarkReadOnly()
			needGC = append(needGC, stat.ID)
		}

		if boundary != total {
			if err := s.truncateBlobFile(stat, boundary); err != nil {
				stat.Unlock()
				return nil, err
			}
		}
		stat.Unlock()
	}
	return needGC, nil
}

// truncateBlobFile shrinks the on-disk file to newSize and updates the
// stat's own bookkeeping to match. The caller must hold the stat's lock.
func (s *Store) truncateBlobFile(stat *blobstat.Stat, newSize uint64) error {
	h, err := s.openOrCreateBlob(stat.ID, s.blobFilePath(stat))
	if err != nil {
		return err
	}
	defer h.Close()
	if err := h.File().Truncate(int64(newSize)); err != nil {
		return errors.Wrapf(err, "blobstore: truncate blob %s to %d", stat.ID, newSize)
	}
	stat.TruncateToLocked(newSize)
	return nil
}

// GCSource is one live entry to migrate, carried alongside the external id
// and directory version it was read under (spec.md §4.8's upsert-with-
// version-guard).
type GCSource struct {
	ExternalID []byte
	Version    uint64
	Entry      Entry
}

// GC migrates every live entry in sources into fresh blob files, producing
// an Edit of EditUpsertFromGC changes for the directory to apply (spec.md
// §4.8). Migration proceeds in chunks bounded by FileLimitSize (or the
// single largest source entry, if that's bigger), so memory use stays
// bounded regardless of how much total data needs to move. On any failure,
// every allocation made so far by this call is released before the error
// is returned.
func (s *Store) GC(sources []GCSource, limiter base.RateLimiter) (Edit, error) {
	var total uint64
	var biggest uint64
	for _, src := range sources {
		total += src.Entry.Size
		if src.Entry.Size > biggest {
			biggest = src.Entry.Size
		}
	}
	if total == 0 {
		return Edit{}, base.AssertionFailedf("blobstore: GC called with nothing to migrate")
	}

	chunkSize := s.config.FileLimitSize
	if total > chunkSize {
		chunkSize = max(chunkSize, biggest)
	} else {
		chunkSize = total
	}

	var edit Edit
	var rollback []func()
	defer func() {
		for _, undo := range rollback {
			undo()
		}
	}()

	remaining := sources
	for len(remaining) > 0 {
		size, n := nextChunk(remaining, chunkSize)
		chunk := remaining[:n]
		remaining = remaining[n:]

		stat, blobID, offset, err := s.allocate(size)
		if err != nil {
			return Edit{}, err
		}
		rollback = append(rollback, func() { s.releaseAllocation(stat, offset, size) })

		buf := make([]byte, size)
		if err := s.fillMigrationBuffer(chunk, buf, limiter); err != nil {
			return Edit{}, err
		}
		if err := s.writeToBlob(blobID, s.blobFilePath(stat), buf, int64(offset), limiter); err != nil {
			return Edit{}, err
		}

		var pos uint64
		for _, src := range chunk {
			newEntry := src.Entry
			newEntry.FileID = blobID
			newEntry.Offset = offset + pos
			newEntry.PaddedSize = 0
			pos += src.Entry.Size
			edit.Changes = append(edit.Changes, EditChange{
				Kind:       EditUpsertFromGC,
				ExternalID: src.ExternalID,
				Entry:      newEntry,
				Version:    src.Version,
			})
		}
	}

	// Every allocation succeeded and was written; nothing to roll back.
	rollback = nil

	sourceBytes := make(map[BlobID]uint64)
	for _, src := range sources {
		sourceBytes[src.Entry.FileID] += src.Entry.Size
	}
	var migratedBytes uint64
	for _, n := range sourceBytes {
		migratedBytes += n
	}
	s.config.Metrics.recordGCBlobsMigrated(len(sourceBytes), migratedBytes)

	return edit, nil
}

// nextChunk returns how many bytes and how many leading sources from
// remaining fit within limit, always including at least the first source
// (which may exceed limit if it's the single biggest entry GC saw).
func nextChunk(remaining []GCSource, limit uint64) (size uint64, n int) {
	for _, src := range remaining {
		if n > 0 && size+src.Entry.Size > limit {
			break
		}
		size += src.Entry.Size
		n++
	}
	return size, n
}

// fillMigrationBuffer reads every source entry's old bytes into buf at its
// sequential position, reading the chunk's entries concurrently (bounded
// fan-out; each goroutine reads one entry into its own slice of buf). Each
// source is verified against its
// recorded checksum exactly as the whole-page read path does (spec.md
// §4.5, §4.8 step 4): GC must surface a corrupt source rather than silently
// migrating bad bytes into a fresh blob.
func (s *Store) fillMigrationBuffer(chunk []GCSource, buf []byte, limiter base.RateLimiter) error {
	offsets := make([]uint64, len(chunk))
	var pos uint64
	for i, src := range chunk {
		offsets[i] = pos
		pos += src.Entry.Size
	}

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(migrationReadConcurrency)
	for i, src := range chunk {
		i, src := i, src
		g.Go(func() error {
			dst := buf[offsets[i] : offsets[i]+src.Entry.Size]
			if err := s.readEntry(src.Entry, dst, limiter, true); err != nil {
				return errors.Wrapf(err, "blobstore: gc read external id %x", src.ExternalID)
			}
			if got := crc64.Checksum(dst); got != src.Entry.Checksum {
				s.config.Metrics.incChecksumMismatch()
				return base.CorruptionErrorf(
					"blobstore: gc source checksum mismatch reading blob %s at offset %d: expected %x, got %x",
					src.Entry.FileID, src.Entry.Offset, src.Entry.Checksum, got)
			}
			return nil
		})
	}
	return g.Wait()
}

// migrationReadConcurrency bounds how many source entries GC reads at once
// while assembling a migration chunk.
const migrationReadConcurrency = 8
