// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package vfs abstracts interactions with the filesystem, so that blob
// files can be stored on a real disk, in memory (for tests), or behind an
// encryption-at-rest layer (FileProvider in spec.md §6).
package vfs

import (
	"io"
	"os"
)

// File is a positional, truncatable, growable sequence of bytes. Typically
// it is an *os.File, but test code substitutes a memory-backed
// implementation.
type File interface {
	io.Closer
	io.ReaderAt
	io.WriterAt

	// Truncate shrinks or grows the file to the given size.
	Truncate(size int64) error
	// Sync flushes any buffered data to stable storage.
	Sync() error
	// Stat returns file metadata, notably its current size.
	Stat() (os.FileInfo, error)
}

// FS is a namespace for files, rooted at one or more directories. The names
// passed to its methods are filepath names: they may be / separated or \
// separated, depending on the underlying operating system.
type FS interface {
	// Create creates the named file for reading and writing, truncating it
	// if it already exists.
	Create(name string) (File, error)

	// Open opens the named file for reading and writing if it exists.
	Open(name string) (File, error)

	// Remove removes the named file. It does not return an error if the
	// file does not exist.
	Remove(name string) error

	// MkdirAll creates a directory and all necessary parents.
	MkdirAll(dir string, perm os.FileMode) error

	// List returns the names of the files in the given directory, relative
	// to dir. It does not recurse into subdirectories.
	List(dir string) ([]string, error)

	// Stat returns file metadata for name.
	Stat(name string) (os.FileInfo, error)

	// PathJoin joins any number of path elements into a single path, adding
	// a separator if necessary.
	PathJoin(elem ...string) string

	// PathBase returns the last element of path.
	PathBase(path string) string
}

// Default is an FS implementation backed by the underlying operating
// system's file system.
var Default FS = defaultFS{}
