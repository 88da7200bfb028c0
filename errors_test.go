// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobstore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tonsnakelin/blobstore/internal/base"
)

func TestErrorPredicatesAreMutuallyExclusive(t *testing.T) {
	corrupt := base.CorruptionErrorf("blobstore: checksum mismatch")
	require.True(t, IsChecksumMismatch(corrupt))
	require.False(t, IsAllocationFailed(corrupt))
	require.False(t, IsIo(corrupt))

	alloc := base.AllocationFailedf("blobstore: no space")
	require.True(t, IsAllocationFailed(alloc))
	require.False(t, IsChecksumMismatch(alloc))
	require.False(t, IsIo(alloc))
}

func TestIsIoCatchAll(t *testing.T) {
	plain := base.AssertionFailedf("blobstore: unreachable")
	require.True(t, IsIo(plain))
	require.False(t, IsIo(nil))
}
