// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobstat

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tonsnakelin/blobstore/internal/base"
	"github.com/tonsnakelin/blobstore/internal/spacemap"
)

func TestCreateStatAssignsMonotonicIDs(t *testing.T) {
	r := NewRegistry(spacemap.TypeInterval)
	s1 := r.CreateStat("/data", 100)
	s1.Unlock()
	s2 := r.CreateStat("/data", 100)
	s2.Unlock()

	require.Equal(t, base.BlobID(1), s1.ID)
	require.Equal(t, base.BlobID(2), s2.ID)
	require.Equal(t, "/data", s1.Dir)
}

func TestChooseStatRoundRobinsWithinDir(t *testing.T) {
	r := NewRegistry(spacemap.TypeInterval)
	s1 := r.CreateStat("/data", 1000)
	s1.Unlock()
	s2 := r.CreateStat("/data", 1000)
	s2.Unlock()

	chosen, ok := r.ChooseStat("/data", 10)
	require.True(t, ok)
	require.Equal(t, s1.ID, chosen.ID)
	chosen.Unlock()

	chosen, ok = r.ChooseStat("/data", 10)
	require.True(t, ok)
	require.Equal(t, s2.ID, chosen.ID)
	chosen.Unlock()
}

func TestChooseStatSkipsReadOnlyAndTooSmall(t *testing.T) {
	r := NewRegistry(spacemap.TypeInterval)
	small := r.CreateStat("/data", 5)
	small.Unlock()
	big := r.CreateStat("/data", 1000)
	big.Unlock()

	small.Lock()
	small.MarkReadOnly()
	small.Unlock()

	chosen, ok := r.ChooseStat("/data", 500)
	require.True(t, ok)
	require.Equal(t, big.ID, chosen.ID)
	chosen.Unlock()
}

func TestChooseStatFailsWhenNoCandidateFits(t *testing.T) {
	r := NewRegistry(spacemap.TypeInterval)
	s := r.CreateStat("/data", 10)
	s.Unlock()

	_, ok := r.ChooseStat("/data", 1000)
	require.False(t, ok)
}

func TestEraseStatRequiresReadOnlyAndEmpty(t *testing.T) {
	r := NewRegistry(spacemap.TypeInterval)
	s := r.CreateStat("/data", 100)
	off, _ := s.Allocate(50)
	s.Unlock()

	require.False(t, r.EraseStat(s.ID))

	s.Lock()
	s.Release(off, 50)
	s.MarkReadOnly()
	s.Unlock()

	require.True(t, r.EraseStat(s.ID))
	_, ok := r.Get(s.ID)
	require.False(t, ok)
}

func TestCreateStatFromExistingPreservesID(t *testing.T) {
	r := NewRegistry(spacemap.TypeInterval)
	s := r.CreateStatFromExisting(base.BlobID(42), "/data", 100)
	require.Equal(t, base.BlobID(42), s.ID)

	next := r.CreateStat("/data", 100)
	next.Unlock()
	require.Equal(t, base.BlobID(43), next.ID)
}

func TestSetForceReadOnlyForTestingBlocksChooseAndCreate(t *testing.T) {
	r := NewRegistry(spacemap.TypeInterval)
	s := r.CreateStat("/data", 1000)
	s.Unlock()

	r.SetForceReadOnlyForTesting(true)
	_, ok := r.ChooseStat("/data", 10)
	require.False(t, ok)

	fresh := r.CreateStat("/data", 1000)
	require.True(t, fresh.IsReadOnlyLocked())
	fresh.Unlock()
}
