// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ext2

import (
	"fmt"

	"github.com/managarm/blockfs-go/lib/binstruct"
)

// Inode is a decoded ext2 inode plus the identity (inode number) and
// filesystem it came from, grounded on
// original_source/drivers/libblockfs/src/ext2fs.cpp's FileSystem::accessInode.
type Inode struct {
	fs  *FS
	Ino uint32
	raw diskInode
}

// GetInode reads and decodes the on-disk inode record for ino, locating
// it via Superblock.locate and the block-group descriptor table's
// InodeTable pointer.
func (fs *FS) GetInode(ino uint32) (*Inode, error) {
	group, index := fs.SB.locate(ino)
	if int(group) >= len(fs.Groups) {
		return nil, fmt.Errorf("ext2: inode %v: group %v out of range (have %v groups)", ino, group, len(fs.Groups))
	}

	inodeSize := int64(fs.SB.InodeSize)
	tableBlock := fs.Groups[group].InodeTable
	off := int64(tableBlock)*int64(fs.SB.BlockSize) + int64(index)*inodeSize

	buf := make([]byte, binstruct.StaticSize(diskInode{}))
	if _, err := fs.Dev.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("ext2: inode %v: %w", ino, err)
	}
	var raw diskInode
	if _, err := binstruct.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("ext2: inode %v: %w", ino, err)
	}

	return &Inode{fs: fs, Ino: ino, raw: raw}, nil
}

// RawBytes re-marshals the inode's decoded on-disk record back to its
// raw byte form, for debug tooling that wants to inspect the exact
// bytes a GetInode call parsed rather than the Go-side fields.
func (i *Inode) RawBytes() ([]byte, error) {
	return binstruct.Marshal(i.raw)
}

func (ino *Inode) Mode() uint16 { return ino.raw.Mode }
func (ino *Inode) Size() uint64 { return uint64(ino.raw.Size) }

func (ino *Inode) IsDir() bool     { return ino.raw.Mode&sIFMT == sIFDIR }
func (ino *Inode) IsRegular() bool { return ino.raw.Mode&sIFMT == sIFREG }
func (ino *Inode) IsSymlink() bool { return ino.raw.Mode&sIFMT == sIFLNK }

// FileType returns the diskDirEntry file-type tag this inode's mode bits
// correspond to, for writing directory entries that point at it.
func (ino *Inode) FileType() uint8 {
	switch ino.raw.Mode & sIFMT {
	case sIFREG:
		return ftRegFile
	case sIFDIR:
		return ftDir
	case sIFCHR:
		return ftChrdev
	case sIFBLK:
		return ftBlkdev
	case sIFIFO:
		return ftFifo
	case sIFSOCK:
		return ftSock
	case sIFLNK:
		return ftSymlink
	default:
		return ftUnknown
	}
}

// fastSymlinkTargetMax is the longest target original_source stores
// inline in diskInode.Data instead of in a data block: the target fits,
// and ino.raw.Blocks stays 0.
const fastSymlinkTargetMax = len(diskInode{}.Data)

// ReadSymlink returns a symlink's target, either read inline out of the
// inode (a "fast symlink", when the target is short enough and no data
// block was allocated) or out of its first data block.
func (ino *Inode) ReadSymlink() (string, error) {
	if !ino.IsSymlink() {
		return "", fmt.Errorf("ext2: inode %v is not a symlink", ino.Ino)
	}
	size := int(ino.Size())
	if ino.raw.Blocks == 0 {
		if size > fastSymlinkTargetMax {
			return "", fmt.Errorf("ext2: inode %v: symlink target too long (%v bytes)", ino.Ino, size)
		}
		return string(ino.raw.Data[:size]), nil
	}
	buf := make([]byte, ino.fs.SB.BlockSize)
	n, err := ino.ReadAt(buf, 0)
	if err != nil {
		return "", err
	}
	if n < size {
		return "", fmt.Errorf("ext2: inode %v: short symlink target read", ino.Ino)
	}
	return string(buf[:size]), nil
}

// ReadAt implements io.ReaderAt semantics over the inode's logical byte
// stream, resolving each block touched via resolveBlock and reading
// directly off the device (no page cache here; the facade layers that
// on via pagecache.Backing, mirroring lib/btrfs/inode_manager.go).
func (ino *Inode) ReadAt(p []byte, off int64) (int, error) {
	size := int64(ino.Size())
	if off >= size {
		return 0, fmt.Errorf("ext2: inode %v: read at %v is past EOF (%v)", ino.Ino, off, size)
	}
	if off+int64(len(p)) > size {
		p = p[:size-off]
	}

	blockSize := int64(ino.fs.SB.BlockSize)
	total := 0
	for total < len(p) {
		cur := off + int64(total)
		logical := uint32(cur / blockSize)
		withinBlock := cur % blockSize

		phys, err := resolveBlock(ino.raw.Data, ino.fs.SB.BlockSize, logical, ino.fs.readBlock)
		if err != nil {
			return total, err
		}

		n := int(blockSize - withinBlock)
		if remain := len(p) - total; n > remain {
			n = remain
		}

		if phys == 0 {
			for i := 0; i < n; i++ {
				p[total+i] = 0
			}
		} else {
			buf, err := ino.fs.readBlock(phys)
			if err != nil {
				return total, err
			}
			copy(p[total:total+n], buf[withinBlock:])
		}

		total += n
	}

	return total, nil
}
