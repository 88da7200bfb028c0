// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobstore

// EditKind identifies the kind of a single Edit change.
type EditKind uint8

const (
	// EditPut records a new or replaced entry for an external id.
	EditPut EditKind = iota
	// EditDel records that an external id's entry is no longer valid.
	EditDel
	// EditRef records that an external id is now an alias of another's
	// entry.
	EditRef
	// EditUpsertFromGC records a migrated entry produced by GC (spec.md
	// §4.8); semantically a put, but versioned against the external id's
	// current directory version to guard against concurrent mutation.
	EditUpsertFromGC
)

// EditChange is a single change the directory must apply atomically,
// spec.md §3's "Edit" data model.
type EditChange struct {
	Kind       EditKind
	ExternalID []byte
	Entry      Entry
	RefTarget  []byte
	// Version is set only for EditUpsertFromGC: the directory version the
	// migrated entry was read under, so the directory can detect and reject
	// a stale migration (spec.md §4.8).
	Version uint64
}

// Edit is the ordered list of directory changes produced by a write batch
// or a GC round (spec.md §3, §4.8).
type Edit struct {
	Changes []EditChange
}

// IsEmpty reports whether the edit has no changes.
func (e *Edit) IsEmpty() bool { return len(e.Changes) == 0 }
