// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobstore

import (
	"github.com/cockroachdb/errors"
	"github.com/tonsnakelin/blobstore/internal/base"
)

// The error taxonomy of spec.md §7. Use the Is* predicates below rather than
// matching on message text.
//
//   - Logic errors indicate an internal invariant was violated. They are
//     unrecoverable: the caller should treat the Store as poisoned and
//     abort or restart the enclosing process. Write, Read and GC return
//     them as ordinary errors built with base.AssertionFailedf; no
//     predicate singles them out, so IsIo also reports true for them.
//   - IsChecksumMismatch identifies a corrupted read.
//   - IsAllocationFailed identifies an out-of-space condition.
//   - Everything else is an Io error: a filesystem call failed.

// IsChecksumMismatch reports whether err denotes an on-disk checksum or
// format violation detected while reading a blob file.
func IsChecksumMismatch(err error) bool {
	return base.IsCorruptionError(err)
}

// IsAllocationFailed reports whether err denotes a failure to find or
// create space for a write, e.g. the underlying filesystem is full.
func IsAllocationFailed(err error) bool {
	return base.IsAllocationFailedError(err)
}

// IsIo reports whether err is a plain I/O failure -- not a checksum
// mismatch and not an allocation failure. Most errors returned by Write,
// Read, and Remove fall into this category.
func IsIo(err error) bool {
	return err != nil && !IsChecksumMismatch(err) && !IsAllocationFailed(err)
}

// Cause unwraps err to find the deepest error cockroachdb/errors still
// tracks, useful for logging a short diagnostic alongside the wrapped
// context Write/Read/Remove/GC attach at each layer.
func Cause(err error) error {
	return errors.UnwrapAll(err)
}
