// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ext2

import (
	"fmt"

	"github.com/managarm/blockfs-go/lib/diskio"
)

// FS is the open ext2 volume: a block device plus its parsed superblock
// and block-group descriptor table, grounded on
// original_source/drivers/libblockfs/src/ext2fs.cpp's FileSystem::init.
type FS struct {
	Dev    diskio.File[int64]
	SB     *Superblock
	Groups []GroupDesc
}

// Open parses the superblock and block-group descriptor table off of
// dev and returns the resulting FS.
func Open(dev diskio.File[int64]) (*FS, error) {
	sbBuf := make([]byte, 1024)
	if _, err := dev.ReadAt(sbBuf, 1024); err != nil {
		return nil, fmt.Errorf("ext2: reading superblock: %w", err)
	}
	sb, err := ParseSuperblock(sbBuf)
	if err != nil {
		return nil, err
	}

	fs := &FS{Dev: dev, SB: sb}

	bgdtOff := int64(bgdtBlock(sb)) * int64(sb.BlockSize)
	bgdtSize := int(sb.NumGroups) * 32
	bgdtBuf := make([]byte, bgdtSize)
	if _, err := dev.ReadAt(bgdtBuf, bgdtOff); err != nil {
		return nil, fmt.Errorf("ext2: reading block-group descriptor table: %w", err)
	}
	groups, err := ParseGroupDescTable(bgdtBuf, sb.NumGroups)
	if err != nil {
		return nil, err
	}
	fs.Groups = groups

	return fs, nil
}

// readBlock reads one full block's worth of data at physical block num.
func (fs *FS) readBlock(num uint32) ([]byte, error) {
	buf := make([]byte, fs.SB.BlockSize)
	if _, err := fs.Dev.ReadAt(buf, int64(num)*int64(fs.SB.BlockSize)); err != nil {
		return nil, fmt.Errorf("ext2: reading block %v: %w", num, err)
	}
	return buf, nil
}

// RootInode returns the filesystem's root directory inode (always inode
// number 2, per ext2fs.hpp's rootIno).
func (fs *FS) RootInode() (*Inode, error) {
	return fs.GetInode(rootIno)
}
