// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "print aggregate disk and valid-byte usage across the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		usage := s.FileUsageStatistics()
		fmt.Printf("files:       %d\n", usage.TotalFileCount)
		fmt.Printf("total bytes: %d\n", usage.TotalDiskSize)
		fmt.Printf("valid bytes: %d\n", usage.TotalValidSize)
		if usage.TotalDiskSize > 0 {
			fmt.Printf("valid rate:  %.3f\n", float64(usage.TotalValidSize)/float64(usage.TotalDiskSize))
		}
		return nil
	},
}
