// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ext2 is a read-complete, write-incidental reader for the ext2
// on-disk format: plain block groups and indirect-block pointer trees,
// no extents and no 64-bit block numbers, grounded on
// original_source/drivers/libblockfs/src/ext2/ext2fs.hpp and
// ext2fs.cpp/ops.cpp.
package ext2

import "github.com/managarm/blockfs-go/lib/binstruct"

const (
	magicExt2 = 0xEF53

	rootIno = 2

	sIFMT   = 0xF000
	sIFLNK  = 0xA000
	sIFREG  = 0x8000
	sIFDIR  = 0x4000
	sIFCHR  = 0x2000
	sIFBLK  = 0x6000
	sIFIFO  = 0x1000
	sIFSOCK = 0xC000

	ftUnknown = 0
	ftRegFile = 1
	ftDir     = 2
	ftChrdev  = 3
	ftBlkdev  = 4
	ftFifo    = 5
	ftSock    = 6
	ftSymlink = 7
)

// diskSuperblock is the 1024-byte on-disk superblock, grounded on
// ext2/ext2fs.hpp's DiskSuperblock.
type diskSuperblock struct {
	InodesCount       uint32    `bin:"off=0x00, siz=0x4"`
	BlocksCount       uint32    `bin:"off=0x04, siz=0x4"`
	RBlocksCount      uint32    `bin:"off=0x08, siz=0x4"`
	FreeBlocksCount   uint32    `bin:"off=0x0c, siz=0x4"`
	FreeInodesCount   uint32    `bin:"off=0x10, siz=0x4"`
	FirstDataBlock    uint32    `bin:"off=0x14, siz=0x4"`
	LogBlockSize      uint32    `bin:"off=0x18, siz=0x4"`
	LogFragSize       uint32    `bin:"off=0x1c, siz=0x4"`
	BlocksPerGroup    uint32    `bin:"off=0x20, siz=0x4"`
	FragsPerGroup     uint32    `bin:"off=0x24, siz=0x4"`
	InodesPerGroup    uint32    `bin:"off=0x28, siz=0x4"`
	MTime             uint32    `bin:"off=0x2c, siz=0x4"`
	WTime             uint32    `bin:"off=0x30, siz=0x4"`
	MntCount          uint16    `bin:"off=0x34, siz=0x2"`
	MaxMntCount       uint16    `bin:"off=0x36, siz=0x2"`
	Magic             uint16    `bin:"off=0x38, siz=0x2"`
	State             uint16    `bin:"off=0x3a, siz=0x2"`
	Errors            uint16    `bin:"off=0x3c, siz=0x2"`
	MinorRevLevel     uint16    `bin:"off=0x3e, siz=0x2"`
	LastCheck         uint32    `bin:"off=0x40, siz=0x4"`
	CheckInterval     uint32    `bin:"off=0x44, siz=0x4"`
	CreatorOS         uint32    `bin:"off=0x48, siz=0x4"`
	RevLevel          uint32    `bin:"off=0x4c, siz=0x4"`
	DefResuid         uint16    `bin:"off=0x50, siz=0x2"`
	DefResgid         uint16    `bin:"off=0x52, siz=0x2"`
	FirstIno          uint32    `bin:"off=0x54, siz=0x4"`
	InodeSize         uint16    `bin:"off=0x58, siz=0x2"`
	BlockGroupNr      uint16    `bin:"off=0x5a, siz=0x2"`
	FeatureCompat     uint32    `bin:"off=0x5c, siz=0x4"`
	FeatureIncompat   uint32    `bin:"off=0x60, siz=0x4"`
	FeatureROCompat   uint32    `bin:"off=0x64, siz=0x4"`
	UUID              [16]byte  `bin:"off=0x68, siz=0x10"`
	VolumeName        [16]byte  `bin:"off=0x78, siz=0x10"`
	LastMounted       [64]byte  `bin:"off=0x88, siz=0x40"`
	AlgoBitmap        uint32    `bin:"off=0xc8, siz=0x4"`
	PreallocBlocks    uint8     `bin:"off=0xcc, siz=0x1"`
	PreallocDirBlocks uint8     `bin:"off=0xcd, siz=0x1"`
	Alignment         uint16    `bin:"off=0xce, siz=0x2"`
	JournalUUID       [16]byte  `bin:"off=0xd0, siz=0x10"`
	JournalInum       uint32    `bin:"off=0xe0, siz=0x4"`
	JournalDev        uint32    `bin:"off=0xe4, siz=0x4"`
	LastOrphan        uint32    `bin:"off=0xe8, siz=0x4"`
	HashSeed          [4]uint32 `bin:"off=0xec, siz=0x10"`
	DefHashVersion    uint8     `bin:"off=0xfc, siz=0x1"`
	Padding           [3]byte   `bin:"off=0xfd, siz=0x3"`
	DefaultMountOpts  uint32    `bin:"off=0x100, siz=0x4"`
	FirstMetaBg       uint32    `bin:"off=0x104, siz=0x4"`
	Unused            [760]byte `bin:"off=0x108, siz=0x2f8"`

	binstruct.End `bin:"off=0x400"`
}

// diskGroupDesc is a single 32-byte block-group descriptor, grounded on
// ext2/ext2fs.hpp's DiskGroupDesc.
type diskGroupDesc struct {
	BlockBitmap     uint32  `bin:"off=0x00, siz=0x4"`
	InodeBitmap     uint32  `bin:"off=0x04, siz=0x4"`
	InodeTable      uint32  `bin:"off=0x08, siz=0x4"`
	FreeBlocksCount uint16  `bin:"off=0x0c, siz=0x2"`
	FreeInodesCount uint16  `bin:"off=0x0e, siz=0x2"`
	UsedDirsCount   uint16  `bin:"off=0x10, siz=0x2"`
	Pad             uint16  `bin:"off=0x12, siz=0x2"`
	Reserved        [12]byte `bin:"off=0x14, siz=0xc"`

	binstruct.End `bin:"off=0x20"`
}

// diskInode is the 128-byte (or inodeSize-byte, for dynamic-rev
// filesystems, the first 128 bytes of which this struct covers) on-disk
// inode record, grounded on ext2/ext2fs.hpp's DiskInode.
type diskInode struct {
	Mode        uint16    `bin:"off=0x00, siz=0x2"`
	UID         uint16    `bin:"off=0x02, siz=0x2"`
	Size        uint32    `bin:"off=0x04, siz=0x4"`
	ATime       uint32    `bin:"off=0x08, siz=0x4"`
	CTime       uint32    `bin:"off=0x0c, siz=0x4"`
	MTime       uint32    `bin:"off=0x10, siz=0x4"`
	DTime       uint32    `bin:"off=0x14, siz=0x4"`
	GID         uint16    `bin:"off=0x18, siz=0x2"`
	LinksCount  uint16    `bin:"off=0x1a, siz=0x2"`
	Blocks      uint32    `bin:"off=0x1c, siz=0x4"`
	Flags       uint32    `bin:"off=0x20, siz=0x4"`
	OSDL        uint32    `bin:"off=0x24, siz=0x4"`
	Data        [60]byte  `bin:"off=0x28, siz=0x3c"` // 12 direct + 3 indirect uint32 pointers, or an inline symlink target
	Generation  uint32    `bin:"off=0x64, siz=0x4"`
	FileACL     uint32    `bin:"off=0x68, siz=0x4"`
	DirACL      uint32    `bin:"off=0x6c, siz=0x4"`
	FAddr       uint32    `bin:"off=0x70, siz=0x4"`
	OSD2        [12]byte  `bin:"off=0x74, siz=0xc"`

	binstruct.End `bin:"off=0x80"`
}

// Layout of diskInode.Data, as the 15-element uint32 block-pointer array
// original_source calls FileData.Blocks:
//
//	direct[0..11], singleIndirect, doubleIndirect, tripleIndirect
const (
	numDirect      = 12
	idxSingleIndir = numDirect
	idxDoubleIndir = numDirect + 1
	idxTripleIndir = numDirect + 2
)

// diskDirEntry is the fixed-size prefix of a directory entry; the name
// (NameLength bytes) immediately follows in the block, and the entry is
// padded out to RecordLength so that entries tile the block exactly.
// Grounded on ext2/ext2fs.hpp's DiskDirEntry.
type diskDirEntry struct {
	Inode        uint32 `bin:"off=0x0, siz=0x4"`
	RecordLength uint16 `bin:"off=0x4, siz=0x2"`
	NameLength   uint8  `bin:"off=0x6, siz=0x1"`
	FileType     uint8  `bin:"off=0x7, siz=0x1"`

	binstruct.End `bin:"off=0x8"`
}

const dirEntryHeaderSize = 8
