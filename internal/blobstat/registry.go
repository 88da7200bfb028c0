// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobstat

import (
	"sync"

	"github.com/tonsnakelin/blobstore/internal/base"
	"github.com/tonsnakelin/blobstore/internal/spacemap"
)

// Registry is the set of all known blob stats, keyed by blob id (spec.md
// §3's "Blob stats registry" / §4.3's BlobStats). It is the coarsest lock in
// the hierarchy described in spec.md §5: a Stat's lock may be acquired while
// the registry lock is held, never the reverse. ChooseStat and CreateStat
// acquire the target stat's lock before releasing the registry lock
// (spec.md §4.3, point 4).
type Registry struct {
	spaceMapType spacemap.Type

	mu struct {
		sync.Mutex
		byID   map[base.BlobID]*Stat
		nextID base.BlobID
		// byPath groups writable stat ids per directory path, in creation
		// order, supporting the round-robin scan in ChooseStat.
		byPath map[string][]base.BlobID
		// rrIndex is the next index to examine per path, for round-robin
		// fairness across repeated ChooseStat calls (spec.md §4.3, point 1).
		rrIndex map[string]int

		// forceReadOnly is a test-only failpoint (spec.md §9 Open Question
		// (b)): when set, ChooseStat and CreateStat behave as though every
		// stat -- existing and new -- is read-only. It must never be
		// reachable from a production code path.
		forceReadOnly bool
	}
}

// NewRegistry creates an empty registry using the given space map
// representation for every stat it creates.
func NewRegistry(spaceMapType spacemap.Type) *Registry {
	r := &Registry{spaceMapType: spaceMapType}
	r.mu.byID = make(map[base.BlobID]*Stat)
	r.mu.byPath = make(map[string][]base.BlobID)
	r.mu.rrIndex = make(map[string]int)
	return r
}

// SetForceReadOnlyForTesting is the test-only failpoint from spec.md §9 Open
// Question (b) ("a failpoint that forces all blobs read-only"). It is not
// wired to any production configuration path.
func (r *Registry) SetForceReadOnlyForTesting(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mu.forceReadOnly = v
}

// ChooseStat implements the policy from spec.md §4.3: scan writable stats in
// round-robin order within path, picking the first whose MaxCapsHint is
// large enough. It returns ok=false if the caller should create a new stat.
func (r *Registry) ChooseStat(path string, size uint64) (stat *Stat, ok bool) {
	r.mu.Lock()
	if r.mu.forceReadOnly {
		r.mu.Unlock()
		return nil, false
	}
	ids := r.mu.byPath[path]
	n := len(ids)
	start := r.mu.rrIndex[path] % max(n, 1)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		candidate := r.mu.byID[ids[idx]]
		// Acquire the candidate's lock before releasing the registry lock,
		// so no other goroutine can concurrently commit to (and exhaust)
		// the same stat between our check and our caller's allocation.
		candidate.Lock()
		if !candidate.mu.readOnly && candidate.mu.spaceMap.MaxPossibleAllocation() >= size {
			r.mu.rrIndex[path] = idx + 1
			r.mu.Unlock()
			return candidate, true
		}
		candidate.Unlock()
	}
	r.mu.Unlock()
	return nil, false
}

// CreateStat reserves a fresh monotonically-increasing id, registers it
// under dir (the directory ChooseStat round-robins within), and returns
// the new Stat -- still locked, so the caller can proceed directly to
// Allocate without any other goroutine observing an un-allocated-into stat
// (spec.md §4.3). capacity is the blob file's initial capacity, normally
// max(requested_size, file_limit_size) so the new blob has room left over
// for future allocations (spec.md §4.4 step 2: "createStat(new_id,
// max(size, file_limit_size))").
func (r *Registry) CreateStat(dir string, capacity uint64) *Stat {
	r.mu.Lock()
	r.mu.nextID++
	id := r.mu.nextID
	stat := newStat(id, dir, r.spaceMapType, capacity)
	if r.mu.forceReadOnly {
		stat.mu.readOnly = true
	}
	r.mu.byID[id] = stat
	r.mu.byPath[dir] = append(r.mu.byPath[dir], id)
	stat.Lock()
	r.mu.Unlock()
	return stat
}

// CreateStatFromExisting registers a stat discovered on disk during
// RegisterPaths (spec.md §6), with id and capacity taken from the existing
// file. Matching the original implementation this store's design is drawn
// from, the space map starts empty (nothing pre-marked allocated) and
// valid_size is zero: this layer has no way to recover which byte ranges
// are live from the blob file alone (it carries no internal index, per
// spec.md §6), and this package has no call that marks an existing byte
// range of a recovered blob as live.
func (r *Registry) CreateStatFromExisting(id base.BlobID, dir string, capacity uint64) *Stat {
	r.mu.Lock()
	defer r.mu.Unlock()
	stat := newStat(id, dir, r.spaceMapType, capacity)
	r.mu.byID[id] = stat
	r.mu.byPath[dir] = append(r.mu.byPath[dir], id)
	if id > r.mu.nextID {
		r.mu.nextID = id
	}
	return stat
}

// Get returns the stat for id, if known.
func (r *Registry) Get(id base.BlobID) (*Stat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.mu.byID[id]
	return s, ok
}

// EraseStat removes id from the registry. The caller must have already
// confirmed the stat is read-only and empty (spec.md §4.3's eraseStat
// precondition); EraseStat itself re-checks under lock and is a no-op if the
// precondition no longer holds (e.g. a concurrent write raced ahead of a
// stale caller -- though writes never target a read-only stat, so in
// practice this guards only against double-erasure).
func (r *Registry) EraseStat(id base.BlobID) (erased bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.mu.byID[id]
	if !ok {
		return false
	}
	stat.Lock()
	canErase := stat.mu.readOnly && stat.mu.validSize == 0
	dir := stat.Dir
	stat.Unlock()
	if !canErase {
		return false
	}
	delete(r.mu.byID, id)
	ids := r.mu.byPath[dir]
	for i, existing := range ids {
		if existing == id {
			r.mu.byPath[dir] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return true
}

// All returns a snapshot of every stat currently registered. The returned
// slice is a copy of the registry's bookkeeping; each *Stat is still the
// live, shared instance.
func (r *Registry) All() []*Stat {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*Stat, 0, len(r.mu.byID))
	for _, s := range r.mu.byID {
		all = append(all, s)
	}
	return all
}

// Paths returns the set of distinct paths with at least one registered stat.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.mu.byPath))
	for p := range r.mu.byPath {
		paths = append(paths, p)
	}
	return paths
}
