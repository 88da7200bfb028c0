// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobstore

// OpKind identifies the kind of a single WriteBatch operation, spec.md §3's
// "Write batch" data model.
type OpKind uint8

const (
	// OpPut writes a payload and records its entry.
	OpPut OpKind = iota
	// OpPutExternal records a zero-length marker entry; no bytes are
	// written.
	OpPutExternal
	// OpPutRemote records an entry pointing at a caller-supplied remote
	// location; no local bytes are written.
	OpPutRemote
	// OpUpdateFromRemote is a local PUT that semantically replaces a
	// previously remote entry. It behaves exactly like OpPut at this layer;
	// the distinction exists for the directory's bookkeeping.
	OpUpdateFromRemote
	// OpDel invalidates an external id's current entry.
	OpDel
	// OpRef aliases one external id to another's entry.
	OpRef
)

// Op is a single operation within a WriteBatch.
type Op struct {
	Kind       OpKind
	ExternalID []byte

	// Payload holds the bytes to write, for OpPut and OpUpdateFromRemote.
	Payload []byte
	// FieldStarts holds the field boundaries for Payload, per spec.md
	// §4.4's sub-field contract: offsets o_0 < o_1 < ... where o_0 == 0. May
	// be empty for a single-field page.
	FieldStarts []uint64
	// Tag is an opaque caller-supplied tag copied onto the resulting Entry.
	Tag uint64

	// RemoteLocation is the opaque location descriptor for OpPutRemote.
	RemoteLocation []byte
	// RemoteSize is the logical size of a remote payload, for OpPutRemote;
	// no local bytes are written, so it cannot be derived from Payload.
	RemoteSize uint64

	// RefTarget is the external id being aliased, for OpRef.
	RefTarget []byte
}

// WriteBatch is an ordered sequence of write operations, applied in order
// (spec.md §5's "Writes within a single batch are processed in batch
// order").
type WriteBatch struct {
	Ops []Op
}

// Put appends a PUT operation writing payload under externalID, with no
// sub-field boundaries.
func (b *WriteBatch) Put(externalID, payload []byte, tag uint64) {
	b.Ops = append(b.Ops, Op{Kind: OpPut, ExternalID: externalID, Payload: payload, Tag: tag})
}

// PutWithFields appends a PUT operation with explicit field boundaries.
// fieldStarts[0] must be 0.
func (b *WriteBatch) PutWithFields(externalID, payload []byte, fieldStarts []uint64, tag uint64) {
	b.Ops = append(b.Ops, Op{Kind: OpPut, ExternalID: externalID, Payload: payload, FieldStarts: fieldStarts, Tag: tag})
}

// PutExternal appends a zero-length marker PUT.
func (b *WriteBatch) PutExternal(externalID []byte, tag uint64) {
	b.Ops = append(b.Ops, Op{Kind: OpPutExternal, ExternalID: externalID, Tag: tag})
}

// PutRemote appends a remote-location-only PUT.
func (b *WriteBatch) PutRemote(externalID, remoteLocation []byte, size uint64, tag uint64) {
	b.Ops = append(b.Ops, Op{Kind: OpPutRemote, ExternalID: externalID, RemoteLocation: remoteLocation, RemoteSize: size, Tag: tag})
}

// UpdateFromRemote appends an UPDATE_FROM_REMOTE operation.
func (b *WriteBatch) UpdateFromRemote(externalID, payload []byte, tag uint64) {
	b.Ops = append(b.Ops, Op{Kind: OpUpdateFromRemote, ExternalID: externalID, Payload: payload, Tag: tag})
}

// Del appends a DEL operation.
func (b *WriteBatch) Del(externalID []byte) {
	b.Ops = append(b.Ops, Op{Kind: OpDel, ExternalID: externalID})
}

// Ref appends a REF operation aliasing externalID to target's entry.
func (b *WriteBatch) Ref(externalID, target []byte) {
	b.Ops = append(b.Ops, Op{Kind: OpRef, ExternalID: externalID, RefTarget: target})
}

// TotalPayloadSize sums the size of every PUT/UPDATE_FROM_REMOTE payload in
// the batch, the quantity spec.md §4.4 uses to choose between the
// small-batch and large-batch write paths.
func (b *WriteBatch) TotalPayloadSize() uint64 {
	var total uint64
	for _, op := range b.Ops {
		if op.Kind == OpPut || op.Kind == OpUpdateFromRemote {
			total += uint64(len(op.Payload))
		}
	}
	return total
}
