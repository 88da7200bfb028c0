// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list every known blob file and its accounting",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		ids, err := s.GetGCStats()
		if err != nil {
			return err
		}
		needsGC := make(map[string]bool, len(ids))
		for _, id := range ids {
			needsGC[id.String()] = true
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"blob id", "total size", "valid size", "used boundary", "valid rate", "read only", "needs gc"})
		for _, row := range s.DebugStats() {
			table.Append([]string{
				row.ID.String(),
				fmt.Sprintf("%d", row.TotalSize),
				fmt.Sprintf("%d", row.ValidSize),
				fmt.Sprintf("%d", row.UsedBoundary),
				fmt.Sprintf("%.3f", row.ValidRate()),
				fmt.Sprintf("%v", row.ReadOnly),
				fmt.Sprintf("%v", needsGC[row.ID.String()]),
			})
		}
		table.Render()
		return nil
	},
}
