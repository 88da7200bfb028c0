// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package blobstat implements the per-blob accounting (BlobStat) and the
// registry of all stats (BlobStats) described in spec.md §3 and §4.3.
package blobstat

import (
	"sync"

	"github.com/cockroachdb/redact"
	"github.com/tonsnakelin/blobstore/internal/base"
	"github.com/tonsnakelin/blobstore/internal/invariants"
	"github.com/tonsnakelin/blobstore/internal/spacemap"
)

// Stat is the per-blob accounting described in spec.md §3: total size, valid
// size, the space map, and the read-only/erased lifecycle state (spec.md
// §4.9). A Stat's own lock protects everything below. Per the lock
// hierarchy in spec.md §5, the registry lock may be held while acquiring a
// Stat's lock (ChooseStat, CreateStat, EraseStat do so), but never the
// reverse.
type Stat struct {
	ID base.BlobID
	// Dir is the directory this blob file lives in. The file's base name is
	// always ID.FileName(); callers join the two to get its actual path,
	// rather than this package depending on vfs to do so itself.
	Dir string

	mu struct {
		sync.Mutex
		totalSize uint64
		validSize uint64
		readOnly  bool
		spaceMap  *spacemap.SpaceMap
	}
}

func newStat(id base.BlobID, dir string, typ spacemap.Type, initialCapacity uint64) *Stat {
	s := &Stat{ID: id, Dir: dir}
	s.mu.totalSize = initialCapacity
	s.mu.spaceMap = spacemap.New(typ, initialCapacity)
	return s
}

// Lock acquires the stat's lock. Callers must Unlock when done. Exposed so
// BlobStore can hold the lock across the allocate-then-write sequence
// described in spec.md §4.4.
func (s *Stat) Lock() { s.mu.Lock() }

// Unlock releases the stat's lock.
func (s *Stat) Unlock() { s.mu.Unlock() }

// Allocate reserves size bytes within the blob file, extending its total
// size if necessary. The caller must hold the stat's lock. Returns
// ok=false if the stat is read-only or size is 0; the space map extends its
// tail for any other size, so a writable stat never runs out of room.
func (s *Stat) Allocate(size uint64) (offset uint64, ok bool) {
	if s.mu.readOnly {
		return 0, false
	}
	offset, ok = s.mu.spaceMap.Allocate(size)
	if !ok {
		return 0, false
	}
	if b := s.mu.spaceMap.UsedBoundary(); b > s.mu.totalSize {
		s.mu.totalSize = b
	}
	s.mu.validSize += size
	return offset, true
}

// Release marks size bytes at offset as no longer valid, per spec.md §4.6.
// Callers must pass the entry's full on-disk footprint (size + padded_size):
// Allocate credited validSize and the space map with that same total, so
// releasing anything less would leak the padding region forever. The caller
// must hold the stat's lock. It returns the stat's remaining valid size, so
// the caller can decide whether the stat has become eligible for erasure
// (read-only and empty).
func (s *Stat) Release(offset, size uint64) uint64 {
	s.mu.spaceMap.Release(offset, size)
	if invariants.Enabled && size > s.mu.validSize {
		panic(base.AssertionFailedf("blobstat: release of %d bytes exceeds valid size %d", size, s.mu.validSize))
	}
	s.mu.validSize -= size
	return s.mu.validSize
}

// MarkReadOnly transitions the stat from Writable to ReadOnly (spec.md
// §4.9). No allocations are permitted once read-only. The caller must hold
// the stat's lock.
func (s *Stat) MarkReadOnly() { s.mu.readOnly = true }

// IsReadOnly reports whether the stat has been marked read-only.
func (s *Stat) IsReadOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.readOnly
}

// IsReadOnlyLocked is like IsReadOnly but assumes the caller already holds
// the stat's lock (e.g. right after a Release call made under the same
// Lock/Unlock pair), avoiding a redundant re-lock.
func (s *Stat) IsReadOnlyLocked() bool { return s.mu.readOnly }

// IsEmpty reports whether the stat has zero valid bytes, the other half of
// the Erased transition's precondition (spec.md §4.9).
func (s *Stat) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.validSize == 0
}

// UsedBoundaryLocked, ValidSizeLocked and TotalSizeLocked expose the stat's
// raw accounting fields to callers that already hold the lock, used by
// GetGCStats's single-pass scan (spec.md §4.7) to avoid re-locking per
// field.
func (s *Stat) UsedBoundaryLocked() uint64 { return s.mu.spaceMap.UsedBoundary() }
func (s *Stat) ValidSizeLocked() uint64    { return s.mu.validSize }
func (s *Stat) TotalSizeLocked() uint64    { return s.mu.totalSize }

// TruncateToLocked does the same as TruncateTo; like it, it assumes the
// caller already holds the stat's lock.
func (s *Stat) TruncateToLocked(newSize uint64) {
	s.mu.spaceMap.Truncate(newSize)
	s.mu.totalSize = newSize
}

// MaxCapsHint returns the soft upper bound on the largest contiguous
// allocation still possible in this blob, per spec.md §3.
func (s *Stat) MaxCapsHint() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.spaceMap.MaxPossibleAllocation()
}

// RecalculateCapacity refreshes the MaxCapsHint exactly, correcting for the
// speculative decrements applied by Allocate (spec.md §9 Open Question (a)).
func (s *Stat) RecalculateCapacity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.spaceMap.RecalculateCapacity()
}

// Snapshot is a point-in-time, lock-free copy of a Stat's accounting fields,
// used for reporting (spec.md §4.7's getGCStats and the FileUsageStatistics
// surface from original_source/).
type Snapshot struct {
	ID           base.BlobID
	Dir          string
	TotalSize    uint64
	ValidSize    uint64
	UsedBoundary uint64
	ReadOnly     bool
}

// ValidRate returns ValidSize/UsedBoundary, or 0 if UsedBoundary is 0 (the
// ratio is undefined per spec.md §3; BlobStore treats "undefined" as "not a
// GC candidate").
func (s Snapshot) ValidRate() float64 {
	if s.UsedBoundary == 0 {
		return 0
	}
	return float64(s.ValidSize) / float64(s.UsedBoundary)
}

// Snapshot takes a consistent snapshot of the stat's mutable fields.
func (s *Stat) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:           s.ID,
		Dir:          s.Dir,
		TotalSize:    s.mu.totalSize,
		ValidSize:    s.mu.validSize,
		UsedBoundary: s.mu.spaceMap.UsedBoundary(),
		ReadOnly:     s.mu.readOnly,
	}
}

// TruncateTo shrinks the blob file's tracked capacity to newSize, per
// spec.md §4.7 ("truncate to used_boundary; update total_size"). The caller
// must hold the stat's lock and must have already truncated the underlying
// file.
func (s *Stat) TruncateTo(newSize uint64) {
	s.mu.spaceMap.Truncate(newSize)
	s.mu.totalSize = newSize
}

// SafeFormat implements redact.SafeFormatter, matching the convention pebble
// uses for BlobFileMetadata.
func (s *Stat) SafeFormat(w redact.SafePrinter, _ rune) {
	snap := s.Snapshot()
	w.Printf("%s size:[%d] valid:[%d] used:[%d] ro:%v",
		snap.ID, redact.Safe(snap.TotalSize), redact.Safe(snap.ValidSize),
		redact.Safe(snap.UsedBoundary), redact.Safe(snap.ReadOnly))
}

// String implements fmt.Stringer.
func (s *Stat) String() string {
	return redact.StringWithoutMarkers(s)
}
