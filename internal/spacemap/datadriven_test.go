// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package spacemap

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
)

// TestDataDriven exercises the free-interval allocator against scripted
// allocate/release/truncate sequences, matching the table-style test format
// SPEC_FULL.md's ambient test tooling calls for.
func TestDataDriven(t *testing.T) {
	datadriven.RunTest(t, "testdata/spacemap", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "init":
			var capacity uint64
			td.ScanArgs(t, "capacity", &capacity)
			m = New(TypeInterval, capacity)
			return ""
		case "allocate":
			var size uint64
			td.ScanArgs(t, "size", &size)
			off, ok := m.Allocate(size)
			if !ok {
				return "no room\n"
			}
			return fmt.Sprintf("offset=%d\n", off)
		case "release":
			var offset, size uint64
			td.ScanArgs(t, "offset", &offset)
			td.ScanArgs(t, "size", &size)
			m.Release(offset, size)
			return ""
		case "truncate":
			var size uint64
			td.ScanArgs(t, "size", &size)
			m.Truncate(size)
			return ""
		case "recalculate":
			m.RecalculateCapacity()
			return ""
		case "state":
			var lines []string
			lines = append(lines, fmt.Sprintf("used_boundary=%d", m.UsedBoundary()))
			lines = append(lines, fmt.Sprintf("capacity=%d", m.Capacity()))
			lines = append(lines, fmt.Sprintf("max_possible=%d", m.MaxPossibleAllocation()))
			return strings.Join(lines, "\n") + "\n"
		default:
			return fmt.Sprintf("unrecognized command %q\n", td.Cmd)
		}
	})
}

// m is the space map under test, reset by the "init" directive.
var m *SpaceMap
