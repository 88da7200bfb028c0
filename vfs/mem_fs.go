// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// MemFS is a memory-backed FS implementation, for use in tests that should
// never touch the real filesystem (spec.md's scenarios run entirely against
// one of these).
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memNode
}

// NewMem returns a new memory-backed FS implementation.
func NewMem() *MemFS {
	return &MemFS{files: make(map[string]*memNode)}
}

type memNode struct {
	mu   sync.Mutex
	data []byte
}

func clean(name string) string {
	return path.Clean(name)
}

// Create implements FS.
func (fs *MemFS) Create(name string) (File, error) {
	name = clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := &memNode{}
	fs.files[name] = n
	return &memFile{n: n}, nil
}

// Open implements FS.
func (fs *MemFS) Open(name string) (File, error) {
	name = clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, ok := fs.files[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return &memFile{n: n}, nil
}

// Remove implements FS.
func (fs *MemFS) Remove(name string) error {
	name = clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.files, name)
	return nil
}

// MkdirAll implements FS. MemFS has no real directories, so this is a no-op
// beyond validating the argument.
func (fs *MemFS) MkdirAll(dir string, perm os.FileMode) error {
	if dir == "" {
		return errors.New("vfs: empty directory name")
	}
	return nil
}

// List implements FS.
func (fs *MemFS) List(dir string) ([]string, error) {
	dir = clean(dir)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var names []string
	for name := range fs.files {
		d, base := path.Split(name)
		d = clean(d)
		if d == dir {
			names = append(names, base)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Stat implements FS.
func (fs *MemFS) Stat(name string) (os.FileInfo, error) {
	name = clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, ok := fs.files[name]
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return memFileInfo{name: path.Base(name), size: int64(len(n.data))}, nil
}

// PathJoin implements FS.
func (fs *MemFS) PathJoin(elem ...string) string {
	return path.Join(elem...)
}

// PathBase implements FS.
func (fs *MemFS) PathBase(p string) string {
	return path.Base(p)
}

type memFile struct {
	n *memNode
}

func (f *memFile) Close() error { return nil }

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if off >= int64(len(f.n.data)) {
		return 0, &os.PathError{Op: "read", Err: os.ErrClosed}
	}
	n := copy(p, f.n.data[off:])
	if n < len(p) {
		return n, errShortRead
	}
	return n, nil
}

var errShortRead = errors.New("vfs: short read")

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(f.n.data)) {
		grown := make([]byte, end)
		copy(grown, f.n.data)
		f.n.data = grown
	}
	copy(f.n.data[off:end], p)
	return len(p), nil
}

func (f *memFile) Truncate(size int64) error {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if size <= int64(len(f.n.data)) {
		f.n.data = f.n.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.n.data)
	f.n.data = grown
	return nil
}

func (f *memFile) Sync() error { return nil }

func (f *memFile) Stat() (os.FileInfo, error) {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	return memFileInfo{size: int64(len(f.n.data))}, nil
}

type memFileInfo struct {
	name string
	size int64
}

func (fi memFileInfo) Name() string       { return fi.name }
func (fi memFileInfo) Size() int64        { return fi.size }
func (fi memFileInfo) Mode() os.FileMode  { return 0666 }
func (fi memFileInfo) ModTime() time.Time { return time.Time{} }
func (fi memFileInfo) IsDir() bool        { return false }
func (fi memFileInfo) Sys() interface{}   { return nil }
