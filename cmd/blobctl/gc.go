// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "identify blob files eligible for garbage collection",
	Long: `gc runs getGCStats over every writable blob file, truncating any
whose on-disk size exceeds its used boundary and marking (but not yet
migrating) any below the configured valid-rate threshold. Migration itself
requires the directory's live-entry index, which this standalone tool has
no access to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		ids, err := s.GetGCStats()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("no blob files need gc")
			return nil
		}
		fmt.Println("blob files marked read-only, pending migration:")
		for _, id := range ids {
			fmt.Printf("  %s\n", id)
		}
		return nil
	},
}
