// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobstore

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/tonsnakelin/blobstore/internal/base"
	"github.com/tonsnakelin/blobstore/internal/crc64"
)

// ReadItem pairs an external id with the Entry to read for it, the input to
// Read (spec.md §4.5's "batch of whole pages").
type ReadItem struct {
	ExternalID []byte
	Entry      Entry
}

// Read fetches a batch of whole pages, sorted internally by file offset to
// favor sequential disk access (spec.md §4.5). The returned Page values
// share one backing buffer; each Page's Holder keeps it alive.
func (s *Store) Read(items []ReadItem, limiter base.RateLimiter) ([]Page, error) {
	if len(items) == 0 {
		return nil, nil
	}

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return items[order[a]].Entry.Offset < items[order[b]].Entry.Offset
	})

	var bufSize uint64
	for _, it := range items {
		bufSize += it.Entry.Size
	}

	pages := make([]Page, len(items))
	if bufSize == 0 {
		// A batch entirely of PUT_EXTERNAL entries: every page is present
		// but empty, per spec.md §4.5's zero-size boundary case.
		for i, it := range items {
			pages[i] = Page{ExternalID: it.ExternalID}
		}
		return pages, nil
	}

	buf := make([]byte, bufSize)
	holder := &MemHolder{buf: buf}
	var pos uint64
	for _, idx := range order {
		it := items[idx]
		entry := it.Entry
		if entry.Size == 0 {
			pages[idx] = Page{ExternalID: it.ExternalID, Holder: holder}
			continue
		}
		dst := buf[pos : pos+entry.Size]
		if err := s.readEntry(entry, dst, limiter, false); err != nil {
			return nil, errors.Wrapf(err, "blobstore: read external id %x", it.ExternalID)
		}
		if got := crc64.Checksum(dst); got != entry.Checksum {
			s.config.Metrics.incChecksumMismatch()
			return nil, base.CorruptionErrorf(
				"blobstore: checksum mismatch reading blob %s at offset %d: expected %x, got %x",
				entry.FileID, entry.Offset, entry.Checksum, got)
		}
		pages[idx] = Page{
			ExternalID:   it.ExternalID,
			Data:         dst,
			FieldOffsets: entry.FieldOffsets,
			Holder:       holder,
		}
		pos += entry.Size
	}
	if pos != bufSize {
		return nil, base.AssertionFailedf("blobstore: read batch size mismatch: expected %d, read %d", bufSize, pos)
	}
	return pages, nil
}

// ReadOne fetches a single whole page. entry.IsRemote() pages have no local
// bytes and are rejected; callers are expected to resolve remote entries
// before calling Read (spec.md §4.5).
func (s *Store) ReadOne(externalID []byte, entry Entry, limiter base.RateLimiter) (Page, error) {
	pages, err := s.Read([]ReadItem{{ExternalID: externalID, Entry: entry}}, limiter)
	if err != nil {
		return Page{}, err
	}
	return pages[0], nil
}

// FieldRead describes a request to read a subset of fields of one page,
// spec.md §4.5's "batch of sub-fields".
type FieldRead struct {
	ExternalID []byte
	Entry      Entry
	// FieldIndexes selects which fields to read. They need not be sorted;
	// ReadFields sorts a local copy for on-disk locality.
	FieldIndexes []int
}

// ReadFields fetches a subset of fields across a batch of pages. Within
// each FieldRead, fields are read in ascending offset order; each returned
// Page's FieldOffsets are renumbered to start at 0 and cover only the
// fields actually read, concatenated in the order they were read (spec.md
// §4.5).
func (s *Store) ReadFields(reads []FieldRead, limiter base.RateLimiter) ([]Page, error) {
	if len(reads) == 0 {
		return nil, nil
	}

	sortedFields := make([][]int, len(reads))
	var bufSize uint64
	for i, r := range reads {
		fields := append([]int(nil), r.FieldIndexes...)
		sort.Ints(fields)
		sortedFields[i] = fields
		for _, fi := range fields {
			bufSize += fieldSize(r.Entry, fi)
		}
	}

	order := make([]int, len(reads))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return reads[order[a]].Entry.Offset < reads[order[b]].Entry.Offset
	})

	pages := make([]Page, len(reads))
	if bufSize == 0 {
		// Reading fields from an entry with no data is unexpected but
		// harmless (spec.md §4.5); return empty pages rather than failing.
		for i, r := range reads {
			pages[i] = Page{ExternalID: r.ExternalID}
		}
		return pages, nil
	}

	buf := make([]byte, bufSize)
	holder := &MemHolder{buf: buf}
	var pos uint64
	for _, idx := range order {
		r := reads[idx]
		fields := sortedFields[idx]
		start := pos
		offsets := make([]FieldOffset, 0, len(fields))
		for _, fi := range fields {
			begin, end := fieldBounds(r.Entry, fi)
			size := end - begin
			dst := buf[pos : pos+size]
			if err := s.readEntry(r.Entry, dst, limiter, false, begin); err != nil {
				return nil, errors.Wrapf(err, "blobstore: read field %d of external id %x", fi, r.ExternalID)
			}
			if r.Entry.Size != 0 {
				expected := r.Entry.FieldOffsets[fi].Checksum
				if got := crc64.Checksum(dst); got != expected {
					s.config.Metrics.incChecksumMismatch()
					return nil, base.CorruptionErrorf(
						"blobstore: field checksum mismatch reading blob %s field %d: expected %x, got %x",
						r.Entry.FileID, fi, expected, got)
				}
			}
			offsets = append(offsets, FieldOffset{Offset: pos - start})
			pos += size
		}
		pages[idx] = Page{
			ExternalID:   r.ExternalID,
			Data:         buf[start:pos],
			FieldOffsets: offsets,
			Holder:       holder,
		}
	}
	if pos != bufSize {
		return nil, base.AssertionFailedf("blobstore: field read batch size mismatch: expected %d, read %d", bufSize, pos)
	}
	return pages, nil
}

// fieldBounds returns the [begin, end) byte range of field fi within
// entry's payload.
func fieldBounds(entry Entry, fi int) (begin, end uint64) {
	begin = entry.FieldOffsets[fi].Offset
	if fi+1 < len(entry.FieldOffsets) {
		end = entry.FieldOffsets[fi+1].Offset
	} else {
		end = entry.Size
	}
	return begin, end
}

func fieldSize(entry Entry, fi int) uint64 {
	begin, end := fieldBounds(entry, fi)
	return end - begin
}

// readEntry issues the underlying positional read for entry, optionally
// starting extraOffset bytes into the entry's payload (used by ReadFields).
func (s *Store) readEntry(entry Entry, dst []byte, limiter base.RateLimiter, background bool, extraOffset ...uint64) error {
	if entry.IsRemote() {
		return base.AssertionFailedf("blobstore: cannot locally read remote entry for blob %s", entry.FileID)
	}
	stat, ok := s.stats.Get(entry.FileID)
	if !ok {
		return base.CorruptionErrorf("blobstore: unknown blob id %s", entry.FileID)
	}
	var off uint64
	if len(extraOffset) > 0 {
		off = extraOffset[0]
	}
	h, err := s.openOrCreateBlob(entry.FileID, s.blobFilePath(stat))
	if err != nil {
		return err
	}
	defer h.Close()
	return h.File().ReadAt(dst, int64(entry.Offset+off), limiter, background)
}
