// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

// PathDelegator abstracts the placement of blob files across one or more
// filesystem directories (spec.md §6). It is a narrow capability object, not
// an ambient singleton (spec.md §9's "Global singletons" design note): the
// store holds one PathDelegator, injected at construction.
type PathDelegator interface {
	// ListPaths returns the directories to scan at startup.
	ListPaths() []string

	// PathForNewBlob decides which directory a freshly created blob with the
	// given id should live in.
	PathForNewBlob(id BlobID) string

	// AddUsedSize records that path's usage for id changed by delta bytes
	// (delta may be negative, e.g. after a truncate or file removal).
	AddUsedSize(id BlobID, delta int64, path string)
}

// RateLimiter abstracts I/O shaping (spec.md §6's RateLimiter::request). A
// nil RateLimiter is a valid no-op limiter; BlobFile callers may pass nil
// when no shaping is desired.
type RateLimiter interface {
	// Request blocks until n bytes' worth of capacity is available.
	// isBackground hints that the caller is a low-priority background
	// operation (e.g. GC migration) that limiter implementations may choose
	// to deprioritize.
	Request(n int64, isBackground bool)
}
