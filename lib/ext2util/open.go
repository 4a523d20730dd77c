// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ext2util wires a named device file up to the ext2 package,
// mirroring lib/btrfsutil/open.go's Open/OpenFilesystem pair but for a
// single-device ext2 volume rather than a multi-device btrfs one.
package ext2util

import (
	"context"
	"os"

	"github.com/managarm/blockfs-go/ext2"
	"github.com/managarm/blockfs-go/lib/diskio"
	"github.com/managarm/blockfs-go/lib/textui"
)

// Open opens filename and parses it as an ext2 volume.
func Open(flag int, filename string) (*ext2.FS, error) {
	osFile, err := os.OpenFile(filename, flag, 0)
	if err != nil {
		return nil, err
	}
	typedFile := &diskio.OSFile[int64]{File: osFile}
	bufFile := diskio.NewBufferedFile[int64](
		typedFile,
		textui.Tunable[int64](16*1024), // block size: 16KiB
		textui.Tunable(1024),           // number of blocks to buffer; total of 16MiB
	)
	return ext2.Open(bufFile)
}

// OpenFilesystem opens filename and builds a read/write C5 facade over
// it, the way a consumer of this module actually wants to start.
func OpenFilesystem(ctx context.Context, flag int, filename string) (*ext2.Filesystem, error) {
	fs, err := Open(flag, filename)
	if err != nil {
		return nil, err
	}
	return ext2.NewFilesystem(ctx, fs)
}
