// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import "fmt"

// BlobID names a blob file. It is assigned monotonically at creation and is
// stable for the lifetime of the file. The zero value, InvalidBlobID, never
// names a real file.
type BlobID uint64

// InvalidBlobID is the reserved BlobID that never names a real blob file.
const InvalidBlobID BlobID = 0

// IsValid reports whether id names a real blob file.
func (id BlobID) IsValid() bool { return id != InvalidBlobID }

// String implements fmt.Stringer.
func (id BlobID) String() string {
	return fmt.Sprintf("%06d", uint64(id))
}

// FileName returns the on-disk file name for id, e.g. "blobfile_000123".
func (id BlobID) FileName() string {
	return "blobfile_" + id.String()
}
