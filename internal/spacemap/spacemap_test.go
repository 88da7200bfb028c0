// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package spacemap

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tonsnakelin/blobstore/internal/invariants"
)

func TestAllocateExtendsTail(t *testing.T) {
	m := New(TypeInterval, 0)
	off, ok := m.Allocate(100)
	require.True(t, ok)
	require.Equal(t, uint64(0), off)
	require.Equal(t, uint64(100), m.UsedBoundary())

	off, ok = m.Allocate(50)
	require.True(t, ok)
	require.Equal(t, uint64(100), off)
	require.Equal(t, uint64(150), m.UsedBoundary())
}

func TestReleaseReclaimsHole(t *testing.T) {
	m := New(TypeInterval, 0)
	a, _ := m.Allocate(100)
	b, _ := m.Allocate(100)
	_, _ = m.Allocate(100)

	m.Release(a, 100)
	// A 100-byte hole opened up at offset 0; a same-sized allocation should
	// reuse it rather than extending the tail.
	off, ok := m.Allocate(100)
	require.True(t, ok)
	require.Equal(t, a, off)

	m.Release(b, 100)
	require.Equal(t, uint64(300), m.UsedBoundary())
}

func TestReleaseMergesAdjacentFreeIntervals(t *testing.T) {
	m := New(TypeInterval, 0)
	a, _ := m.Allocate(100)
	b, _ := m.Allocate(100)
	c, _ := m.Allocate(100)

	m.Release(a, 100)
	m.Release(c, 100)
	m.Release(b, 100)

	// All three adjacent releases should merge into one free run that also
	// abuts the tail, collapsing usedBoundary back to zero.
	require.Equal(t, uint64(0), m.UsedBoundary())
	off, ok := m.Allocate(300)
	require.True(t, ok)
	require.Equal(t, uint64(0), off)
}

func TestReleaseShrinksUsedBoundary(t *testing.T) {
	m := New(TypeInterval, 0)
	_, _ = m.Allocate(100)
	b, _ := m.Allocate(50)

	m.Release(b, 50)
	require.Equal(t, uint64(100), m.UsedBoundary())
}

func TestRecalculateCapacityCorrectsHint(t *testing.T) {
	m := New(TypeInterval, 1000)
	a, _ := m.Allocate(10)
	_, _ = m.Allocate(10)

	// Allocate shrinks the hint speculatively and Release only raises it to
	// the merged interval's size. RecalculateCapacity takes the larger of
	// the free tail (1000-20 = 980) and the largest hole (10).
	m.Release(a, 10)
	m.RecalculateCapacity()
	require.Equal(t, uint64(980), m.MaxPossibleAllocation())
}

func TestTruncateRejectsBelowUsedBoundary(t *testing.T) {
	if !invariants.Enabled {
		t.Skip("requires the invariants build tag")
	}
	defer func() {
		r := recover()
		require.NotNil(t, r)
	}()
	m := New(TypeInterval, 0)
	_, _ = m.Allocate(100)
	m.Truncate(50)
}

func TestAllocateZeroSizeFails(t *testing.T) {
	m := New(TypeInterval, 0)
	_, ok := m.Allocate(0)
	require.False(t, ok)
}
