// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ext2

import (
	"fmt"

	"github.com/managarm/blockfs-go/lib/binstruct"
)

// allocateBlock finds a single free block by scanning the block bitmap
// of each group starting at preferredGroup, claims it (sets the bit and
// writes the bitmap back), and returns its physical block number.
// Grounded on original_source/drivers/libblockfs/src/ext2/ext2fs.cpp's
// FileSystem::allocateBlocks, simplified to one block at a time since
// this package's write path is incidental, not a full allocator.
func (fs *FS) allocateBlock(preferredGroup uint32) (uint32, error) {
	n := uint32(len(fs.Groups))
	for i := uint32(0); i < n; i++ {
		group := (preferredGroup + i) % n
		bitmap, err := fs.readBlock(fs.Groups[group].BlockBitmap)
		if err != nil {
			return 0, err
		}
		idx, ok := firstZeroBit(bitmap, fs.SB.BlocksPerGroup())
		if !ok {
			continue
		}
		setBit(bitmap, idx)
		if _, err := fs.Dev.WriteAt(bitmap, int64(fs.Groups[group].BlockBitmap)*int64(fs.SB.BlockSize)); err != nil {
			return 0, err
		}
		block := fs.SB.FirstDataBlock() + group*fs.SB.BlocksPerGroup() + idx
		zero := make([]byte, fs.SB.BlockSize)
		if _, err := fs.Dev.WriteAt(zero, int64(block)*int64(fs.SB.BlockSize)); err != nil {
			return 0, err
		}
		return block, nil
	}
	return 0, fmt.Errorf("ext2: no free blocks")
}

// allocateInode finds a free inode number by scanning the inode bitmap
// of each group starting at preferredGroup, claims it, and returns the
// 1-based inode number. Grounded on the same source's
// FileSystem::allocateInode.
func (fs *FS) allocateInode(preferredGroup uint32, directory bool) (uint32, error) {
	n := uint32(len(fs.Groups))
	for i := uint32(0); i < n; i++ {
		group := (preferredGroup + i) % n
		bitmap, err := fs.readBlock(fs.Groups[group].InodeBitmap)
		if err != nil {
			return 0, err
		}
		idx, ok := firstZeroBit(bitmap, fs.SB.InodesPerGroup())
		if !ok {
			continue
		}
		setBit(bitmap, idx)
		if _, err := fs.Dev.WriteAt(bitmap, int64(fs.Groups[group].InodeBitmap)*int64(fs.SB.BlockSize)); err != nil {
			return 0, err
		}
		ino := group*fs.SB.InodesPerGroup() + idx + 1
		return ino, nil
	}
	return 0, fmt.Errorf("ext2: no free inodes")
}

// writeInode writes back a decoded inode record to its on-disk location.
func (fs *FS) writeInode(ino *Inode) error {
	group, index := fs.SB.locate(ino.Ino)
	if int(group) >= len(fs.Groups) {
		return fmt.Errorf("ext2: inode %v: group %v out of range", ino.Ino, group)
	}
	off := int64(fs.Groups[group].InodeTable)*int64(fs.SB.BlockSize) + int64(index)*int64(fs.SB.InodeSize)
	buf, err := binstruct.Marshal(ino.raw)
	if err != nil {
		return err
	}
	_, err = fs.Dev.WriteAt(buf, off)
	return err
}

func firstZeroBit(bitmap []byte, limit uint32) (uint32, bool) {
	for i := uint32(0); i < limit; i++ {
		if bitmap[i/8]&(1<<(i%8)) == 0 {
			return i, true
		}
	}
	return 0, false
}

func setBit(bitmap []byte, i uint32) {
	bitmap[i/8] |= 1 << (i % 8)
}
