// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package spacemap implements the per-blob-file free/allocated interval
// structure described in spec.md §3 ("Space map (per blob)") and §4.2.
package spacemap

import (
	"slices"
	"sort"

	"github.com/tonsnakelin/blobstore/internal/base"
	"github.com/tonsnakelin/blobstore/internal/invariants"
)

// Type identifies a space map representation. Per spec.md §6's
// spacemap_type configuration knob, the representation does not change
// observable semantics -- only the performance characteristics of
// Allocate/Release on a particular free-interval distribution.
type Type uint8

const (
	// TypeInterval is the default representation: a sorted slice of free
	// intervals, suitable for blob files with a modest number of holes. It
	// is the only representation implemented; TypeBitmap is reserved for a
	// future block-bitmap representation and currently behaves identically
	// to TypeInterval (spacemap_type is explicitly semantics-preserving).
	TypeInterval Type = iota
	// TypeBitmap is reserved; see TypeInterval.
	TypeBitmap
)

// interval is a half-open byte range [Offset, Offset+Size).
type interval struct {
	offset uint64
	size   uint64
}

func (iv interval) end() uint64 { return iv.offset + iv.size }

// SpaceMap tracks free and allocated intervals over [0, capacity) for a
// single blob file, plus the monotone used boundary described in spec.md
// §3. It is not safe for concurrent use; callers serialize access via the
// owning BlobStat's lock (spec.md §5 lock hierarchy).
type SpaceMap struct {
	typ Type

	// free holds disjoint, sorted-by-offset free intervals within
	// [0, usedBoundary). Intervals are never adjacent to one another: any
	// two neighbors are always merged by release. The free tail
	// [usedBoundary, capacity) is implicit and not stored here.
	free []interval

	capacity     uint64
	usedBoundary uint64

	// maxPossible is a cached hint for the largest contiguous free interval,
	// including the implicit tail. It can lag a true recomputation (spec.md
	// §9 Open Question (a)); RecalculateCapacity refreshes it exactly.
	maxPossible uint64
}

// New creates a SpaceMap over an initially empty blob file with the given
// starting capacity (the capacity its owning stat was created with).
func New(typ Type, capacity uint64) *SpaceMap {
	return &SpaceMap{
		typ:         typ,
		capacity:    capacity,
		maxPossible: capacity,
	}
}

// Capacity returns the current file capacity the space map is tracking.
func (m *SpaceMap) Capacity() uint64 { return m.capacity }

// UsedBoundary returns the highest offset that has ever been allocated into
// and not released from the tail.
func (m *SpaceMap) UsedBoundary() uint64 { return m.usedBoundary }

// MaxPossibleAllocation returns the size of the largest currently-free
// interval. It is a hint only and may lag behind RecalculateCapacity (spec.md
// §4.2).
func (m *SpaceMap) MaxPossibleAllocation() uint64 { return m.maxPossible }

// Allocate finds the lowest offset at which size contiguous free bytes
// exist, reserves them, and returns the offset. When no recorded hole fits,
// the allocation goes to the free tail, extending usedBoundary (and
// capacity, if necessary), so it returns ok=false only for size == 0.
func (m *SpaceMap) Allocate(size uint64) (offset uint64, ok bool) {
	if size == 0 {
		return 0, false
	}
	// Lowest-offset first-fit: free slice is kept sorted, so the first
	// interval that fits wins.
	for i, iv := range m.free {
		if iv.size >= size {
			offset = iv.offset
			if iv.size == size {
				m.free = slices.Delete(m.free, i, i+1)
			} else {
				m.free[i] = interval{offset: iv.offset + size, size: iv.size - size}
			}
			m.speculativelyShrinkHint(size)
			return offset, true
		}
	}
	// Fall back to the free tail, extending usedBoundary (and capacity, if
	// necessary) to accommodate the allocation.
	offset = m.usedBoundary
	m.usedBoundary += size
	if m.usedBoundary > m.capacity {
		m.capacity = m.usedBoundary
	}
	m.speculativelyShrinkHint(size)
	return offset, true
}

// speculativelyShrinkHint decrements maxPossible optimistically after an
// allocation, per spec.md §3's BlobStat.max_caps_hint: it is decremented
// speculatively on allocation and only recomputed exactly by
// RecalculateCapacity. This can make the hint pessimistic (spec.md §9 Open
// Question (a)) but never lets it overstate available space by more than
// what RecalculateCapacity would correct.
func (m *SpaceMap) speculativelyShrinkHint(allocated uint64) {
	if allocated >= m.maxPossible {
		m.maxPossible = 0
	} else {
		m.maxPossible -= allocated
	}
}

// Release marks the half-open interval [offset, offset+size) as free,
// merging with any adjacent free intervals. It panics in invariants builds
// if the interval was not allocated (or only partially allocated); release
// of an unallocated range is a caller logic error per spec.md §4.2.
func (m *SpaceMap) Release(offset, size uint64) {
	if size == 0 {
		return
	}
	end := offset + size
	if invariants.Enabled {
		m.assertAllocated(offset, end)
	}

	i := sort.Search(len(m.free), func(i int) bool { return m.free[i].offset >= offset })

	merged := interval{offset: offset, size: size}
	// Merge with the preceding free interval if adjacent.
	if i > 0 && m.free[i-1].end() == offset {
		merged.offset = m.free[i-1].offset
		merged.size += m.free[i-1].size
		i--
		m.free = slices.Delete(m.free, i, i+1)
	}
	// Merge with the following free interval(s) if adjacent. There can be at
	// most one, since the free slice is kept fully coalesced.
	if i < len(m.free) && m.free[i].offset == merged.end() {
		merged.size += m.free[i].size
		m.free = slices.Delete(m.free, i, i+1)
	}

	if merged.end() == m.usedBoundary {
		// The released interval abuts (or is) the tail: shrink usedBoundary
		// instead of recording a free interval that borders nothing.
		m.usedBoundary = merged.offset
	} else {
		m.free = slices.Insert(m.free, i, merged)
	}
	if merged.size > m.maxPossible {
		m.maxPossible = merged.size
	}
}

// assertAllocated panics (base.AssertionFailedf) unless [offset, end) is
// currently fully allocated, i.e. does not overlap any recorded free
// interval and does not exceed usedBoundary.
func (m *SpaceMap) assertAllocated(offset, end uint64) {
	if end > m.usedBoundary {
		panic(base.AssertionFailedf("spacemap: release [%d, %d) exceeds used boundary %d", offset, end, m.usedBoundary))
	}
	for _, iv := range m.free {
		if iv.offset < end && offset < iv.end() {
			panic(base.AssertionFailedf("spacemap: release [%d, %d) overlaps free interval [%d, %d)", offset, end, iv.offset, iv.end()))
		}
	}
}

// RecalculateCapacity recomputes maxPossible exactly by scanning the free
// list and considering the implicit tail. It's invoked periodically (spec.md
// §3) to correct the speculative hint maintained by Allocate/Release.
func (m *SpaceMap) RecalculateCapacity() {
	max := m.capacity - m.usedBoundary
	for _, iv := range m.free {
		if iv.size > max {
			max = iv.size
		}
	}
	m.maxPossible = max
}

// Truncate shrinks capacity to newCapacity. The caller must ensure
// newCapacity >= usedBoundary (spec.md §4.1's BlobFile.truncate
// precondition); this is enforced by BlobStore, which only ever truncates
// to usedBoundary.
func (m *SpaceMap) Truncate(newCapacity uint64) {
	if invariants.Enabled && newCapacity < m.usedBoundary {
		panic(base.AssertionFailedf("spacemap: truncate to %d below used boundary %d", newCapacity, m.usedBoundary))
	}
	m.capacity = newCapacity
	m.RecalculateCapacity()
}
