// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package blobstat

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/tonsnakelin/blobstore/internal/base"
	"github.com/tonsnakelin/blobstore/internal/spacemap"
)

// TestDataDriven exercises a single Stat's allocate/release/truncate
// lifecycle, matching the table-style test format SPEC_FULL.md's ambient
// test tooling calls for.
func TestDataDriven(t *testing.T) {
	datadriven.RunTest(t, "testdata/stat", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "init":
			var capacity uint64
			td.ScanArgs(t, "capacity", &capacity)
			dsStat = newStat(base.BlobID(1), "dir", spacemap.TypeInterval, capacity)
			return ""
		case "allocate":
			var size uint64
			td.ScanArgs(t, "size", &size)
			dsStat.Lock()
			defer dsStat.Unlock()
			off, ok := dsStat.Allocate(size)
			if !ok {
				return "rejected\n"
			}
			return fmt.Sprintf("offset=%d\n", off)
		case "release":
			var offset, size uint64
			td.ScanArgs(t, "offset", &offset)
			td.ScanArgs(t, "size", &size)
			dsStat.Lock()
			defer dsStat.Unlock()
			remaining := dsStat.Release(offset, size)
			return fmt.Sprintf("valid_size=%d\n", remaining)
		case "mark-readonly":
			dsStat.Lock()
			dsStat.MarkReadOnly()
			dsStat.Unlock()
			return ""
		case "truncate":
			var size uint64
			td.ScanArgs(t, "size", &size)
			dsStat.Lock()
			defer dsStat.Unlock()
			dsStat.TruncateToLocked(size)
			return ""
		case "snapshot":
			snap := dsStat.Snapshot()
			var lines []string
			lines = append(lines, fmt.Sprintf("total_size=%d", snap.TotalSize))
			lines = append(lines, fmt.Sprintf("valid_size=%d", snap.ValidSize))
			lines = append(lines, fmt.Sprintf("used_boundary=%d", snap.UsedBoundary))
			lines = append(lines, fmt.Sprintf("read_only=%v", snap.ReadOnly))
			lines = append(lines, fmt.Sprintf("valid_rate=%.3f", snap.ValidRate()))
			return strings.Join(lines, "\n") + "\n"
		default:
			return fmt.Sprintf("unrecognized command %q\n", td.Cmd)
		}
	})
}

// dsStat is the Stat under test, reset by the "init" directive.
var dsStat *Stat
