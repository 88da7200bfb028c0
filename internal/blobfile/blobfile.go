// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package blobfile implements the fixed-path container file described in
// spec.md §4.1: aligned positional read/write, truncate, and delete, plus
// the ref-counted open-file cache mentioned in spec.md §5 and §9.
package blobfile

import (
	"regexp"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/tonsnakelin/blobstore/internal/base"
	"github.com/tonsnakelin/blobstore/vfs"
)

// nameRegexp matches the on-disk blob file naming convention from spec.md
// §6: "blobfile_<decimal-id>".
var nameRegexp = regexp.MustCompile(`^blobfile_(\d+)$`)

// ParseFileName extracts the BlobID encoded in a blob file's base name. ok
// is false for any name that doesn't match the naming convention, mirroring
// the original implementation's getBlobIdFromName, which logs and ignores
// non-matching entries rather than failing RegisterPaths outright.
func ParseFileName(name string) (id base.BlobID, ok bool) {
	m := nameRegexp.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return base.BlobID(n), true
}

// File is a positional byte container backed by a single on-disk blob file.
// It is write-serialized by the owning BlobStat's lock and read-safe under
// concurrent positional reads, matching spec.md §4.1's no-internal-
// concurrency contract.
type File struct {
	fs   vfs.FS
	path string
	f    vfs.File
}

// Open opens an existing blob file at path for reading and writing.
func Open(fs vfs.FS, path string) (*File, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "blobfile: open %s", path)
	}
	return &File{fs: fs, path: path, f: f}, nil
}

// Create creates a new, empty blob file at path.
func Create(fs vfs.FS, path string) (*File, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "blobfile: create %s", path)
	}
	return &File{fs: fs, path: path, f: f}, nil
}

// Path returns the blob file's on-disk path.
func (bf *File) Path() string { return bf.path }

// WriteAt writes exactly len(buf) bytes at offset, optionally blocking on
// limiter. On any filesystem failure it returns an Io error; per spec.md
// §4.1 there is no partial-success signaling, the caller must assume
// corruption and propagate.
func (bf *File) WriteAt(buf []byte, offset int64, limiter base.RateLimiter) error {
	if limiter != nil {
		limiter.Request(int64(len(buf)), false)
	}
	n, err := bf.f.WriteAt(buf, offset)
	if err != nil {
		return errors.Wrapf(err, "blobfile: write %s at %d", bf.path, offset)
	}
	if n != len(buf) {
		return errors.Newf("blobfile: short write to %s: wrote %d of %d bytes", bf.path, n, len(buf))
	}
	return nil
}

// ReadAt reads exactly len(buf) bytes at offset. background is a hint the
// limiter uses to deprioritize the request (spec.md §4.1).
func (bf *File) ReadAt(buf []byte, offset int64, limiter base.RateLimiter, background bool) error {
	if limiter != nil {
		limiter.Request(int64(len(buf)), background)
	}
	n, err := bf.f.ReadAt(buf, offset)
	if err != nil {
		return errors.Wrapf(err, "blobfile: read %s at %d", bf.path, offset)
	}
	if n != len(buf) {
		return errors.Newf("blobfile: short read from %s: read %d of %d bytes", bf.path, n, len(buf))
	}
	return nil
}

// Truncate shrinks the file to newSize. The caller must ensure no live
// payload exists at offsets >= newSize (spec.md §4.1's precondition, which
// BlobStore enforces via the space map's used_boundary).
func (bf *File) Truncate(newSize int64) error {
	if err := bf.f.Truncate(newSize); err != nil {
		return errors.Wrapf(err, "blobfile: truncate %s to %d", bf.path, newSize)
	}
	return nil
}

// Sync flushes buffered data to stable storage.
func (bf *File) Sync() error {
	if err := bf.f.Sync(); err != nil {
		return errors.Wrapf(err, "blobfile: sync %s", bf.path)
	}
	return nil
}

// Close closes the underlying file handle without removing the file.
func (bf *File) Close() error {
	return bf.f.Close()
}

// Remove closes and unlinks the file from disk.
func (bf *File) Remove() error {
	_ = bf.f.Close()
	if err := bf.fs.Remove(bf.path); err != nil {
		return errors.Wrapf(err, "blobfile: remove %s", bf.path)
	}
	return nil
}

// Size returns the file's current on-disk size.
func (bf *File) Size() (int64, error) {
	info, err := bf.f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "blobfile: stat %s", bf.path)
	}
	return info.Size(), nil
}
