// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package blobstore implements the page-level blob storage engine described
// in spec.md: durable write, random read (whole page or by sub-field),
// logical deletion, reference-counted aliasing, and online garbage
// collection over a set of append-only blob files.
package blobstore

import (
	"github.com/cockroachdb/redact"
	"github.com/tonsnakelin/blobstore/internal/base"
)

// BlobID names a blob file, re-exported from internal/base so callers never
// need to import it directly.
type BlobID = base.BlobID

// InvalidBlobID is the reserved id that never names a real blob file.
const InvalidBlobID = base.InvalidBlobID

// FieldOffset records where one field of a multi-field page begins within
// the page's payload, and the CRC64 of the bytes from there to the next
// field boundary (spec.md §4.4's sub-field contract).
type FieldOffset struct {
	Offset   uint64
	Checksum uint64
}

// Entry is the persistent descriptor of a page's physical location,
// spec.md §3. An Entry with FileID == InvalidBlobID denotes a remote
// payload: Remote carries an opaque location descriptor and Offset/Size/
// PaddedSize/Checksum/FieldOffsets are meaningless.
type Entry struct {
	FileID       BlobID
	Offset       uint64
	Size         uint64
	PaddedSize   uint64
	Tag          uint64
	Checksum     uint64
	FieldOffsets []FieldOffset

	// Remote is the location descriptor for a remote entry (FileID ==
	// InvalidBlobID). It is opaque to this layer; spec.md §1 places remote
	// storage out of scope as an external collaborator.
	Remote []byte
}

// IsRemote reports whether the entry describes a payload stored outside
// this blob store.
func (e Entry) IsRemote() bool { return e.FileID == InvalidBlobID }

// SafeFormat implements redact.SafeFormatter.
func (e Entry) SafeFormat(w redact.SafePrinter, _ rune) {
	if e.IsRemote() {
		w.Printf("entry{remote, size:%d}", redact.Safe(e.Size))
		return
	}
	w.Printf("entry{file:%s off:%d size:%d padded:%d checksum:%#x fields:%d}",
		e.FileID, redact.Safe(e.Offset), redact.Safe(e.Size),
		redact.Safe(e.PaddedSize), redact.Safe(e.Checksum), redact.Safe(len(e.FieldOffsets)))
}

// String implements fmt.Stringer.
func (e Entry) String() string { return redact.StringWithoutMarkers(e) }

// MemHolder is a scoped owner of a read buffer, shared across every Page
// that was materialized from it (spec.md §4.5: "mem_holder is a scoped
// owner of the buffer (released when the last Page sharing it drops)").
// Because Go is garbage collected, there is nothing for Release to actually
// free; MemHolder exists so call sites can express the same ownership
// contract as the original implementation without relying on finalizers.
type MemHolder struct {
	buf []byte
}

// Release is a no-op placeholder for explicit buffer lifetime management;
// see MemHolder's doc comment.
func (h *MemHolder) Release() {}

// Page is a durable byte payload materialized by a read, spec.md's
// glossary entry for "Page".
type Page struct {
	ExternalID   []byte
	Data         []byte
	FieldOffsets []FieldOffset
	Holder       *MemHolder
}

// Field returns the bytes of the field at the given index within Data,
// using FieldOffsets to find its bounds.
func (p Page) Field(i int) []byte {
	start := p.FieldOffsets[i].Offset
	var end uint64
	if i+1 < len(p.FieldOffsets) {
		end = p.FieldOffsets[i+1].Offset
	} else {
		end = uint64(len(p.Data))
	}
	return p.Data[start:end]
}
