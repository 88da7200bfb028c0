// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobfile

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tonsnakelin/blobstore/internal/base"
	"github.com/tonsnakelin/blobstore/vfs"
)

func TestParseFileName(t *testing.T) {
	id, ok := ParseFileName("blobfile_000123")
	require.True(t, ok)
	require.Equal(t, base.BlobID(123), id)

	_, ok = ParseFileName("manifest_000001")
	require.False(t, ok)
}

func TestFileWriteReadRoundTrip(t *testing.T) {
	fs := vfs.NewMem()
	f, err := Create(fs, "/data/blobfile_000001")
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.WriteAt([]byte("hello"), 0, nil))
	dst := make([]byte, 5)
	require.NoError(t, f.ReadAt(dst, 0, nil, false))
	require.Equal(t, "hello", string(dst))
}

func TestFileTruncateAndSize(t *testing.T) {
	fs := vfs.NewMem()
	f, err := Create(fs, "/data/blobfile_000001")
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Truncate(100))
	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, int64(100), size)

	require.NoError(t, f.Truncate(10))
	size, err = f.Size()
	require.NoError(t, err)
	require.Equal(t, int64(10), size)
}

func TestFileRemoveUnlinks(t *testing.T) {
	fs := vfs.NewMem()
	f, err := Create(fs, "/data/blobfile_000001")
	require.NoError(t, err)
	require.NoError(t, f.WriteAt([]byte("x"), 0, nil))
	require.NoError(t, f.Remove())

	_, err = fs.Open("/data/blobfile_000001")
	require.Error(t, err)
}
