// Copyright 2024 The Blobstore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Command blobctl inspects a blob store directory: listing its blob files
// and their accounting, and forcing a GC round, without running a full
// directory/embedder on top of it.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonsnakelin/blobstore"
	"github.com/tonsnakelin/blobstore/vfs"
)

var dir string

var rootCmd = &cobra.Command{
	Use:   "blobctl [command] (flags)",
	Short: "blobctl inspects and administers a blob store directory",
}

func openStore() (*blobstore.Store, error) {
	s := blobstore.New(vfs.Default, blobstore.SingleDirDelegator{Dir: dir}, blobstore.Config{})
	if err := s.RegisterPaths(); err != nil {
		return nil, err
	}
	return s, nil
}

func main() {
	log.SetFlags(0)
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().StringVarP(&dir, "dir", "d", ".", "blob store directory")
	rootCmd.AddCommand(listCmd, gcCmd, usageCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
