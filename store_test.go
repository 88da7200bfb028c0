// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tonsnakelin/blobstore/internal/crc64"
	"github.com/tonsnakelin/blobstore/vfs"
)

func newTestStore(t *testing.T, fileLimitSize uint64) *Store {
	t.Helper()
	fs := vfs.NewMem()
	cfg := Config{FileLimitSize: fileLimitSize, Logger: &testLogger{}}
	s := New(fs, SingleDirDelegator{Dir: "/data"}, cfg)
	require.NoError(t, s.RegisterPaths())
	return s
}

type testLogger struct{}

func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}
func (testLogger) Fatalf(string, ...interface{}) {}

// Scenario 1: round-trip one page.
func TestRoundTripOnePage(t *testing.T) {
	s := newTestStore(t, 1<<20)

	var b WriteBatch
	b.Put([]byte("a"), []byte{1, 2, 3, 4}, 0)
	edit, err := s.Write(&b, nil)
	require.NoError(t, err)
	require.Len(t, edit.Changes, 1)

	entry := edit.Changes[0].Entry
	require.Equal(t, uint64(4), entry.Size)
	require.Equal(t, crc64.Checksum([]byte{1, 2, 3, 4}), entry.Checksum)
	require.Equal(t, uint64(0), entry.PaddedSize)

	page, err := s.ReadOne([]byte("a"), entry, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, page.Data)
}

// Scenario 2: field checksums.
func TestFieldChecksums(t *testing.T) {
	s := newTestStore(t, 1<<20)

	payload := append(bytes.Repeat([]byte{0xAA}, 10), bytes.Repeat([]byte{0xBB}, 6)...)
	var b WriteBatch
	b.PutWithFields([]byte("x"), payload, []uint64{0, 10}, 0)
	edit, err := s.Write(&b, nil)
	require.NoError(t, err)

	entry := edit.Changes[0].Entry
	require.Len(t, entry.FieldOffsets, 2)
	require.Equal(t, uint64(0), entry.FieldOffsets[0].Offset)
	require.Equal(t, crc64.Checksum(bytes.Repeat([]byte{0xAA}, 10)), entry.FieldOffsets[0].Checksum)
	require.Equal(t, uint64(10), entry.FieldOffsets[1].Offset)
	require.Equal(t, crc64.Checksum(bytes.Repeat([]byte{0xBB}, 6)), entry.FieldOffsets[1].Checksum)

	pages, err := s.ReadFields([]FieldRead{{ExternalID: []byte("x"), Entry: entry, FieldIndexes: []int{1}}}, nil)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0xBB}, 6), pages[0].Data)
}

// Scenario 3: remove reclaims space.
func TestRemoveReclaimsSpace(t *testing.T) {
	s := newTestStore(t, 512)

	var entries []Entry
	for i := 0; i < 3; i++ {
		var b WriteBatch
		b.Put([]byte{byte('a' + i)}, bytes.Repeat([]byte{byte(i)}, 100), 0)
		edit, err := s.Write(&b, nil)
		require.NoError(t, err)
		entries = append(entries, edit.Changes[0].Entry)
	}

	stat, ok := s.stats.Get(entries[0].FileID)
	require.True(t, ok)
	snap := stat.Snapshot()
	require.Equal(t, uint64(300), snap.UsedBoundary)

	require.NoError(t, s.Remove([]Entry{entries[1]}))
	snap = stat.Snapshot()
	require.Equal(t, uint64(200), snap.ValidSize)
	require.Equal(t, uint64(300), snap.UsedBoundary)

	var b WriteBatch
	b.Put([]byte("d"), bytes.Repeat([]byte{9}, 100), 0)
	edit, err := s.Write(&b, nil)
	require.NoError(t, err)
	require.Equal(t, entries[1].Offset, edit.Changes[0].Entry.Offset)
}

// Scenario 4: large-batch splitting.
func TestLargeBatchSplitting(t *testing.T) {
	s := newTestStore(t, 1024)

	var b WriteBatch
	payloads := make([][]byte, 10)
	for i := range payloads {
		payloads[i] = bytes.Repeat([]byte{byte(i + 1)}, 200)
		b.Put([]byte{byte('a' + i)}, payloads[i], 0)
	}
	require.Equal(t, uint64(2000), b.TotalPayloadSize())

	edit, err := s.Write(&b, nil)
	require.NoError(t, err)
	require.Len(t, edit.Changes, 10)

	for i, change := range edit.Changes {
		require.Equal(t, uint64(0), change.Entry.PaddedSize)
		page, err := s.ReadOne(change.ExternalID, change.Entry, nil)
		require.NoError(t, err)
		require.Equal(t, payloads[i], page.Data)
	}
}

// Scenario 5: GC migration.
func TestGCMigration(t *testing.T) {
	s := newTestStore(t, 1<<20)
	s.config.HeavyGCValidRate = 0.5

	var live []Entry
	var externalIDs [][]byte
	for i := 0; i < 5; i++ {
		var b WriteBatch
		id := []byte{byte('a' + i)}
		b.Put(id, bytes.Repeat([]byte{byte(i)}, 100), 0)
		edit, err := s.Write(&b, nil)
		require.NoError(t, err)
		live = append(live, edit.Changes[0].Entry)
		externalIDs = append(externalIDs, id)
	}
	blobID := live[0].FileID

	dead := live[:3]
	require.NoError(t, s.Remove(dead))

	needGC, err := s.GetGCStats()
	require.NoError(t, err)
	require.Contains(t, needGC, blobID)

	stat, _ := s.stats.Get(blobID)
	require.True(t, stat.IsReadOnly())

	var sources []GCSource
	for i := 3; i < 5; i++ {
		sources = append(sources, GCSource{ExternalID: externalIDs[i], Entry: live[i]})
	}
	gcEdit, err := s.GC(sources, nil)
	require.NoError(t, err)
	require.Len(t, gcEdit.Changes, 2)
	for i, change := range gcEdit.Changes {
		require.NotEqual(t, blobID, change.Entry.FileID)
		page, err := s.ReadOne(change.ExternalID, change.Entry, nil)
		require.NoError(t, err)
		original, err := s.ReadOne(externalIDs[3+i], live[3+i], nil)
		require.NoError(t, err)
		require.Equal(t, original.Data, page.Data)
	}

	require.NoError(t, s.Remove(live[3:5]))
	snap := stat.Snapshot()
	require.Equal(t, uint64(0), snap.ValidSize)

	needGC, err = s.GetGCStats()
	require.NoError(t, err)
	require.NotContains(t, needGC, blobID)
	_, ok := s.stats.Get(blobID)
	require.False(t, ok)
}

// Regression: GC must verify each source entry's checksum before migrating
// it, the same way the whole-page read path does, rather than silently
// copying corrupted bytes into a fresh blob.
func TestGCDetectsCorruptSource(t *testing.T) {
	s := newTestStore(t, 1<<20)

	var b WriteBatch
	b.Put([]byte("a"), bytes.Repeat([]byte{1}, 100), 0)
	edit, err := s.Write(&b, nil)
	require.NoError(t, err)
	entry := edit.Changes[0].Entry

	stat, ok := s.stats.Get(entry.FileID)
	require.True(t, ok)
	stat.Lock()
	stat.MarkReadOnly()
	stat.Unlock()

	path := s.blobFilePath(stat)
	f, err := s.fs.Open(path)
	require.NoError(t, err)
	var corrupt [1]byte
	_, err = f.ReadAt(corrupt[:], int64(entry.Offset))
	require.NoError(t, err)
	corrupt[0] ^= 0xFF
	_, err = f.WriteAt(corrupt[:], int64(entry.Offset))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = s.GC([]GCSource{{ExternalID: []byte("a"), Entry: entry}}, nil)
	require.Error(t, err)
	require.True(t, IsChecksumMismatch(err))
}

// Scenario 6: checksum detects corruption.
func TestChecksumDetectsCorruption(t *testing.T) {
	s := newTestStore(t, 1<<20)

	var b WriteBatch
	b.Put([]byte("a"), []byte{1, 2, 3, 4}, 0)
	edit, err := s.Write(&b, nil)
	require.NoError(t, err)
	entry := edit.Changes[0].Entry

	path := s.fs.PathJoin("/data", entry.FileID.FileName())
	f, err := s.fs.Open(path)
	require.NoError(t, err)
	var buf [1]byte
	_, err = f.ReadAt(buf[:], int64(entry.Offset))
	require.NoError(t, err)
	buf[0] ^= 0xFF
	_, err = f.WriteAt(buf[:], int64(entry.Offset))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = s.ReadOne([]byte("a"), entry, nil)
	require.Error(t, err)
	require.True(t, IsChecksumMismatch(err))
}

// Boundary: empty batch performs no allocation.
func TestEmptyBatchNoAllocation(t *testing.T) {
	s := newTestStore(t, 1<<20)
	var b WriteBatch
	edit, err := s.Write(&b, nil)
	require.NoError(t, err)
	require.True(t, edit.IsEmpty())
}

// Boundary: payload size exactly file_limit_size uses the small-batch path
// (PaddedSize set), while file_limit_size+1 uses the large-batch path
// (PaddedSize always zero, independent allocation).
func TestFileLimitSizeBoundary(t *testing.T) {
	const limit = 256
	s := newTestStore(t, limit)

	var exact WriteBatch
	exact.Put([]byte("a"), bytes.Repeat([]byte{1}, limit), 0)
	edit, err := s.Write(&exact, nil)
	require.NoError(t, err)
	require.Len(t, edit.Changes, 1)

	var over WriteBatch
	over.Put([]byte("b"), bytes.Repeat([]byte{2}, limit+1), 0)
	edit, err = s.Write(&over, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), edit.Changes[0].Entry.PaddedSize)
}

// Boundary: alignment divides total_payload_size exactly, so the last
// entry's padded_size is zero.
func TestAlignmentExactDivisionNoPadding(t *testing.T) {
	fs := vfs.NewMem()
	cfg := Config{FileLimitSize: 1 << 20, BlockAlignmentBytes: 8}
	s := New(fs, SingleDirDelegator{Dir: "/data"}, cfg)
	require.NoError(t, s.RegisterPaths())

	var b WriteBatch
	b.Put([]byte("a"), bytes.Repeat([]byte{1}, 16), 0)
	edit, err := s.Write(&b, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), edit.Changes[0].Entry.PaddedSize)
}

// Regression: Remove must release an entry's full on-disk footprint
// (size + padded_size), or the padding region leaks forever, valid_size
// never reaches zero, and a read-only blob is never erased.
func TestRemovePaddedEntryErasesFile(t *testing.T) {
	fs := vfs.NewMem()
	cfg := Config{FileLimitSize: 1 << 20, BlockAlignmentBytes: 8, Logger: &testLogger{}}
	s := New(fs, SingleDirDelegator{Dir: "/data"}, cfg)
	require.NoError(t, s.RegisterPaths())

	var b WriteBatch
	b.Put([]byte("a"), bytes.Repeat([]byte{1}, 10), 0)
	edit, err := s.Write(&b, nil)
	require.NoError(t, err)
	entry := edit.Changes[0].Entry
	require.Equal(t, uint64(10), entry.Size)
	require.Equal(t, uint64(6), entry.PaddedSize)

	stat, ok := s.stats.Get(entry.FileID)
	require.True(t, ok)
	path := s.blobFilePath(stat)

	stat.Lock()
	stat.MarkReadOnly()
	stat.Unlock()

	require.NoError(t, s.Remove([]Entry{entry}))

	snap := stat.Snapshot()
	require.Equal(t, uint64(0), snap.ValidSize)

	_, ok = s.stats.Get(entry.FileID)
	require.False(t, ok, "blob stat should have been erased once read-only and empty")
	_, err = fs.Stat(path)
	require.Error(t, err, "blob file should have been unlinked")
}

// Boundary: GC called with nothing to migrate fails as a Logic error.
func TestGCEmptySourcesFails(t *testing.T) {
	s := newTestStore(t, 1<<20)
	_, err := s.GC(nil, nil)
	require.Error(t, err)
}

// Boundary: a single GC source exceeding file_limit_size still succeeds,
// by raising the chunk allocation size to that entry's own size.
func TestGCSingleEntryExceedsFileLimitSize(t *testing.T) {
	s := newTestStore(t, 128)

	var b WriteBatch
	b.Put([]byte("a"), bytes.Repeat([]byte{1}, 200), 0)
	edit, err := s.Write(&b, nil)
	require.NoError(t, err)
	entry := edit.Changes[0].Entry

	gcEdit, err := s.GC([]GCSource{{ExternalID: []byte("a"), Entry: entry}}, nil)
	require.NoError(t, err)
	require.Len(t, gcEdit.Changes, 1)
	page, err := s.ReadOne([]byte("a"), gcEdit.Changes[0].Entry, nil)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{1}, 200), page.Data)
}

func TestRegisterPathsRecoversExistingBlobFiles(t *testing.T) {
	fs := vfs.NewMem()
	cfg := Config{FileLimitSize: 1 << 20}
	s1 := New(fs, SingleDirDelegator{Dir: "/data"}, cfg)
	require.NoError(t, s1.RegisterPaths())

	var b WriteBatch
	b.Put([]byte("a"), []byte{1, 2, 3}, 0)
	_, err := s1.Write(&b, nil)
	require.NoError(t, err)

	s2 := New(fs, SingleDirDelegator{Dir: "/data"}, cfg)
	require.NoError(t, s2.RegisterPaths())
	usage := s2.FileUsageStatistics()
	require.Equal(t, 1, usage.TotalFileCount)
}
