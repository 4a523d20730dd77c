// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ext2

import (
	"fmt"

	"github.com/managarm/blockfs-go/lib/binstruct"
)

// Superblock is the decoded ext2 superblock plus the values a reader
// needs that aren't stored directly (block size, inode size), grounded
// on original_source/drivers/libblockfs/src/ext2fs.cpp's FileSystem
// constructor and ops.cpp's use of these fields.
type Superblock struct {
	raw diskSuperblock

	BlockSize  uint32
	InodeSize  uint16
	NumGroups  uint32
}

// ParseSuperblock decodes the 1024-byte ext2 superblock starting at byte
// offset 1024 on the device (its fixed location, independent of block
// size) and derives the block size and inode size the rest of this
// package needs.
func ParseSuperblock(dat []byte) (*Superblock, error) {
	if len(dat) < binstruct.StaticSize(diskSuperblock{}) {
		return nil, fmt.Errorf("ext2: superblock: short read: got %v bytes", len(dat))
	}
	var raw diskSuperblock
	if _, err := binstruct.Unmarshal(dat, &raw); err != nil {
		return nil, fmt.Errorf("ext2: superblock: %w", err)
	}
	if raw.Magic != magicExt2 {
		return nil, fmt.Errorf("ext2: superblock: bad magic %#04x (want %#04x)", raw.Magic, magicExt2)
	}

	blockSize := uint32(1024) << raw.LogBlockSize

	inodeSize := uint16(128)
	if raw.RevLevel >= 1 {
		inodeSize = raw.InodeSize
	}

	numGroups := (raw.BlocksCount - raw.FirstDataBlock + raw.BlocksPerGroup - 1) / raw.BlocksPerGroup

	return &Superblock{
		raw:       raw,
		BlockSize: blockSize,
		InodeSize: inodeSize,
		NumGroups: numGroups,
	}, nil
}

func (sb *Superblock) InodesCount() uint32    { return sb.raw.InodesCount }
func (sb *Superblock) BlocksCount() uint32    { return sb.raw.BlocksCount }
func (sb *Superblock) InodesPerGroup() uint32 { return sb.raw.InodesPerGroup }
func (sb *Superblock) BlocksPerGroup() uint32 { return sb.raw.BlocksPerGroup }
func (sb *Superblock) FirstDataBlock() uint32 { return sb.raw.FirstDataBlock }

// locate returns the (group, indexWithinGroup) an inode number resolves
// to, grounded on original_source's "(ino - 1) / inodesPerGroup,
// (ino - 1) % inodesPerGroup" arithmetic (inode numbers are 1-based).
func (sb *Superblock) locate(ino uint32) (group, index uint32) {
	zero := ino - 1
	return zero / sb.raw.InodesPerGroup, zero % sb.raw.InodesPerGroup
}
