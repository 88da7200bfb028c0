// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobfile

import (
	"sync"

	"github.com/tonsnakelin/blobstore/internal/base"
	"github.com/tonsnakelin/blobstore/vfs"
)

// Cache is the open blob-file handle cache described in spec.md §5 and §9:
// handles are cached by id, eviction is driven by an external idle-time
// policy, and readers bump a reference count so a reader never races with a
// concurrent close. There are no cycles and no weak references (spec.md
// §9's "Cyclic object graphs" design note): the cache is a plain by-id map,
// and every other component references blob files by base.BlobID, not by
// pointer.
type Cache struct {
	fs vfs.FS

	mu struct {
		sync.Mutex
		entries map[base.BlobID]*entry
	}
}

type entry struct {
	file *File
	// refs counts outstanding handles. The entry is closed and removed from
	// the map when refs drops to zero after an explicit Evict.
	refs int
	// evicting is set once an idle-time policy has asked to close this
	// entry; new Acquire calls must not hand out a reference to an entry
	// that's on its way out, so they open a fresh one instead.
	evicting bool
}

// NewCache creates an empty open-file cache rooted at fs.
func NewCache(fs vfs.FS) *Cache {
	c := &Cache{fs: fs}
	c.mu.entries = make(map[base.BlobID]*entry)
	return c
}

// Handle is a reference-counted open blob file. Close releases the
// reference; when the last Handle on an evicted entry is closed, the
// underlying file is actually closed (spec.md §9's "reference-counted open
// handle (drop = close)").
type Handle struct {
	cache *Cache
	id    base.BlobID
	e     *entry
}

// File returns the underlying open file. Valid only until Close.
func (h Handle) File() *File { return h.e.file }

// Close releases this handle's reference.
func (h Handle) Close() {
	h.cache.release(h.id, h.e)
}

// Acquire returns a handle to the open blob file for id, opening it via
// fs/path if it is not already cached.
func (c *Cache) Acquire(id base.BlobID, path string) (Handle, error) {
	c.mu.Lock()
	if e, ok := c.mu.entries[id]; ok && !e.evicting {
		e.refs++
		c.mu.Unlock()
		return Handle{cache: c, id: id, e: e}, nil
	}
	c.mu.Unlock()

	f, err := Open(c.fs, path)
	if err != nil {
		return Handle{}, err
	}
	e := &entry{file: f, refs: 1}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.mu.entries[id]; ok && !existing.evicting {
		// Lost a race with a concurrent Acquire; use the winner's entry and
		// close our redundant open.
		existing.refs++
		_ = f.Close()
		return Handle{cache: c, id: id, e: existing}, nil
	}
	c.mu.entries[id] = e
	return Handle{cache: c, id: id, e: e}, nil
}

// Create creates a brand-new blob file at path and installs it in the
// cache under id, returning a handle to it. Callers use this exactly once,
// when a BlobStat is first created for a blob id that has no file on disk
// yet; every subsequent access goes through Acquire.
func (c *Cache) Create(id base.BlobID, path string) (Handle, error) {
	f, err := Create(c.fs, path)
	if err != nil {
		return Handle{}, err
	}
	e := &entry{file: f, refs: 1}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.entries[id] = e
	return Handle{cache: c, id: id, e: e}, nil
}

func (c *Cache) release(id base.BlobID, e *entry) {
	c.mu.Lock()
	e.refs--
	shouldClose := e.evicting && e.refs == 0
	if shouldClose && c.mu.entries[id] == e {
		delete(c.mu.entries, id)
	}
	c.mu.Unlock()
	if shouldClose {
		_ = e.file.Close()
	}
}

// Evict marks id for removal from the cache. Any outstanding handles remain
// valid; the underlying file descriptor is closed once the last one is
// released. A subsequent Acquire for the same id opens a fresh handle.
func (c *Cache) Evict(id base.BlobID) {
	c.mu.Lock()
	e, ok := c.mu.entries[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.evicting = true
	shouldClose := e.refs == 0
	if shouldClose {
		delete(c.mu.entries, id)
	}
	c.mu.Unlock()
	if shouldClose {
		_ = e.file.Close()
	}
}
