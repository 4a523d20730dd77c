// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ext2

import (
	"fmt"

	"github.com/managarm/blockfs-go/lib/binstruct"
)

// GroupDesc is a single decoded block-group descriptor: the locations of
// a group's block bitmap, inode bitmap, and inode table, grounded on
// ext2fs.cpp's FileSystem::init reading of the block-group descriptor
// table (bgdt).
type GroupDesc struct {
	BlockBitmap uint32
	InodeBitmap uint32
	InodeTable  uint32
}

// ParseGroupDescTable decodes the numGroups group descriptors packed
// back to back in dat, as they sit in the block(s) immediately following
// the superblock's block.
func ParseGroupDescTable(dat []byte, numGroups uint32) ([]GroupDesc, error) {
	descSize := binstruct.StaticSize(diskGroupDesc{})
	need := int(numGroups) * descSize
	if len(dat) < need {
		return nil, fmt.Errorf("ext2: block-group descriptor table: short read: need %v bytes, got %v", need, len(dat))
	}
	ret := make([]GroupDesc, numGroups)
	for i := range ret {
		var raw diskGroupDesc
		off := i * descSize
		if _, err := binstruct.Unmarshal(dat[off:off+descSize], &raw); err != nil {
			return nil, fmt.Errorf("ext2: block-group descriptor table: group %v: %w", i, err)
		}
		ret[i] = GroupDesc{
			BlockBitmap: raw.BlockBitmap,
			InodeBitmap: raw.InodeBitmap,
			InodeTable:  raw.InodeTable,
		}
	}
	return ret, nil
}

// bgdtBlock is the block number the group descriptor table starts at:
// the block immediately after the superblock's own block.
func bgdtBlock(sb *Superblock) uint32 {
	return sb.FirstDataBlock() + 1
}
