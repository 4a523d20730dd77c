// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ext2

import (
	"fmt"

	"github.com/managarm/blockfs-go/lib/binstruct"
)

// insertEntry appends a (name, ino, fileType) directory entry to dir,
// grounded on original_source's Inode::insertEntry: shrink the first
// entry of the last block that has enough slack to its true size and
// place the new entry in the reclaimed space, or allocate a fresh block
// when the last block has no room. This package's write path is
// incidental (directory-entry insertion for mkdir/symlink only), so
// unlike the original it does not search every block's entries for
// reclaimable slack -- only the entries of the directory's last block.
func (dir *Inode) insertEntry(name string, ino uint32, fileType uint8) error {
	if !dir.IsDir() {
		return fmt.Errorf("ext2: inode %v is not a directory", dir.Ino)
	}
	if existing, err := dir.Lookup(name); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("ext2: %q already exists in inode %v", name, dir.Ino)
	}

	needed := align4(dirEntryHeaderSize + len(name))
	blockSize := int64(dir.fs.SB.BlockSize)
	size := int64(dir.Size())

	if size > 0 {
		lastBlockOff := size - blockSize
		block := make([]byte, blockSize)
		if _, err := dir.ReadAt(block, lastBlockOff); err != nil {
			return err
		}
		if ok, err := tryInsertIntoBlock(block, name, ino, fileType, needed); err != nil {
			return err
		} else if ok {
			return dir.writeDirBlock(lastBlockOff, block)
		}
	}

	block, err := dir.appendBlock()
	if err != nil {
		return err
	}
	writeDirEntry(block, 0, uint16(blockSize), ino, fileType, name)
	return dir.writeDirBlock(size, block)
}

// tryInsertIntoBlock looks for an existing entry whose recordLength has
// more slack than its own (aligned) header+name needs, and carves the
// new entry out of that slack. Returns ok=false if no such slack exists.
func tryInsertIntoBlock(block []byte, name string, ino uint32, fileType uint8, needed int) (bool, error) {
	headerSize := binstruct.StaticSize(diskDirEntry{})
	pos := 0
	for pos+headerSize <= len(block) {
		var raw diskDirEntry
		if _, err := binstruct.Unmarshal(block[pos:pos+headerSize], &raw); err != nil {
			return false, err
		}
		if raw.RecordLength < uint16(headerSize) {
			return false, fmt.Errorf("corrupt directory entry at offset %v", pos)
		}
		used := 0
		if raw.Inode != 0 {
			used = align4(headerSize + int(raw.NameLength))
		}
		slack := int(raw.RecordLength) - used
		if slack >= needed {
			if used > 0 {
				writeRecordLength(block, pos, uint16(used))
				pos += used
			}
			writeDirEntry(block, pos, uint16(slack), ino, fileType, name)
			return true, nil
		}
		pos += int(raw.RecordLength)
	}
	return false, nil
}

func writeRecordLength(block []byte, pos int, recLen uint16) {
	block[pos+4] = byte(recLen)
	block[pos+5] = byte(recLen >> 8)
}

func writeDirEntry(block []byte, pos int, recLen uint16, ino uint32, fileType uint8, name string) {
	raw := diskDirEntry{
		Inode:        ino,
		RecordLength: recLen,
		NameLength:   uint8(len(name)),
		FileType:     fileType,
	}
	buf, _ := binstruct.Marshal(raw)
	copy(block[pos:], buf)
	copy(block[pos+dirEntryHeaderSize:], name)
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// appendBlock allocates a new, zeroed block and grows the directory's
// size and block-pointer tree to include it. It returns an all-zero
// buffer of one block; the caller writes the block's directory entries
// into it and stores it with writeDirBlock.
func (dir *Inode) appendBlock() ([]byte, error) {
	phys, err := dir.fs.allocateBlock(0)
	if err != nil {
		return nil, err
	}
	logical := uint32(dir.Size() / uint64(dir.fs.SB.BlockSize))
	if err := dir.setBlockPointer(logical, phys); err != nil {
		return nil, err
	}
	dir.raw.Size += dir.fs.SB.BlockSize
	dir.raw.Blocks += dir.fs.SB.BlockSize / 512
	if err := dir.fs.writeInode(dir); err != nil {
		return nil, err
	}
	return make([]byte, dir.fs.SB.BlockSize), nil
}

// writeDirBlock writes block back to the directory's data at byte offset
// off (which must be block-aligned).
func (dir *Inode) writeDirBlock(off int64, block []byte) error {
	blockSize := int64(dir.fs.SB.BlockSize)
	phys, err := resolveBlock(dir.raw.Data, dir.fs.SB.BlockSize, uint32(off/blockSize), dir.fs.readBlock)
	if err != nil {
		return err
	}
	if phys == 0 {
		return fmt.Errorf("ext2: inode %v: hole at logical block %v has no backing block to write", dir.Ino, off/blockSize)
	}
	_, err = dir.fs.Dev.WriteAt(block, int64(phys)*blockSize)
	return err
}

// setBlockPointer assigns the physical block phys to logical block index
// logical within dir, allocating indirect blocks as needed. Only direct
// and single-indirect ranges are supported, since the incidental write
// path exists for newly created, small directories and symlink targets.
func (dir *Inode) setBlockPointer(logical uint32, phys uint32) error {
	ppb := pointersPerBlock(dir.fs.SB.BlockSize)
	if logical < numDirect {
		blockPointers(dir.raw.Data[:]).set(logical, phys)
		return nil
	}
	logical -= numDirect
	if logical >= ppb {
		return fmt.Errorf("ext2: inode %v: double/triple indirect block allocation is unsupported", dir.Ino)
	}

	indirectBlock := blockPointers(dir.raw.Data[:]).at(idxSingleIndir)
	var buf []byte
	if indirectBlock == 0 {
		allocated, err := dir.fs.allocateBlock(0)
		if err != nil {
			return err
		}
		blockPointers(dir.raw.Data[:]).set(idxSingleIndir, allocated)
		indirectBlock = allocated
		buf = make([]byte, dir.fs.SB.BlockSize)
	} else {
		var err error
		buf, err = dir.fs.readBlock(indirectBlock)
		if err != nil {
			return err
		}
	}
	blockPointers(buf).set(logical, phys)
	_, err := dir.fs.Dev.WriteAt(buf, int64(indirectBlock)*int64(dir.fs.SB.BlockSize))
	return err
}
