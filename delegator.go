// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobstore

import "github.com/tonsnakelin/blobstore/internal/base"

// SingleDirDelegator is a minimal base.PathDelegator that places every blob
// file in one directory. It's the degenerate case of the multi-disk
// placement policy spec.md §6 describes as out of scope for this layer;
// most embedders supply their own delegator, but this one is enough for
// single-disk deployments, tests, and cmd/blobctl.
type SingleDirDelegator struct {
	Dir string
}

var _ base.PathDelegator = SingleDirDelegator{}

// ListPaths returns the one configured directory.
func (d SingleDirDelegator) ListPaths() []string { return []string{d.Dir} }

// PathForNewBlob always returns the configured directory.
func (d SingleDirDelegator) PathForNewBlob(base.BlobID) string { return d.Dir }

// AddUsedSize is a no-op: with a single directory there's no placement
// decision for it to inform.
func (d SingleDirDelegator) AddUsedSize(base.BlobID, int64, string) {}
