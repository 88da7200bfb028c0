// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import (
	"github.com/cockroachdb/errors"
)

// corruptionError is returned when an on-disk checksum fails to verify.
// It is distinguished from a plain I/O error so that callers can decide
// whether retrying the read is worthwhile (it is not).
type corruptionError struct {
	error
}

// CorruptionErrorf constructs an error that Unwraps to a sentinel
// identifiable via IsCorruptionError. Mirrors the role of pebble's
// base.CorruptionErrorf: on-disk data failed to verify.
func CorruptionErrorf(format string, args ...interface{}) error {
	return corruptionError{errors.Newf(format, args...)}
}

// IsCorruptionError reports whether err (or any error it wraps) denotes a
// checksum or format violation detected while reading a blob file.
func IsCorruptionError(err error) bool {
	var c corruptionError
	return errors.As(err, &c)
}

// allocationFailedError is returned when the space map cannot find or
// create room for an allocation (disk full, or a max_caps_hint
// inconsistency per spec §9 Open Question (a)).
type allocationFailedError struct {
	error
}

// AllocationFailedf constructs an error identifiable via
// IsAllocationFailedError.
func AllocationFailedf(format string, args ...interface{}) error {
	return allocationFailedError{errors.Newf(format, args...)}
}

// IsAllocationFailedError reports whether err denotes a failure to find or
// create space for an allocation.
func IsAllocationFailedError(err error) bool {
	var a allocationFailedError
	return errors.As(err, &a)
}

// AssertionFailedf constructs an error reporting an internal invariant
// violation (a Logic error per spec §7). It does not panic itself: most
// callers return the error, and the invariants-build checks in spacemap and
// blobstat panic with it.
func AssertionFailedf(format string, args ...interface{}) error {
	return errors.AssertionFailedf(format, args...)
}
