// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ext2

import (
	"fmt"

	"github.com/managarm/blockfs-go/lib/binstruct"
)

// DirEntry is a single decoded directory entry.
type DirEntry struct {
	Inode    uint32
	FileType uint8
	Name     string
}

// ReadEntries returns every live entry in a directory inode, grounded on
// original_source's ops.cpp directory-scan loop: walk the directory's
// data blocks, and within each block walk diskDirEntry records by
// RecordLength until the block is exhausted, skipping entries with
// Inode == 0 (deleted slots).
func (ino *Inode) ReadEntries() ([]DirEntry, error) {
	if !ino.IsDir() {
		return nil, fmt.Errorf("ext2: inode %v is not a directory", ino.Ino)
	}

	blockSize := int64(ino.fs.SB.BlockSize)
	size := int64(ino.Size())

	var entries []DirEntry
	block := make([]byte, blockSize)
	for blockOff := int64(0); blockOff < size; blockOff += blockSize {
		n, err := ino.ReadAt(block, blockOff)
		if err != nil {
			return nil, err
		}
		if err := scanDirBlock(block[:n], &entries); err != nil {
			return nil, fmt.Errorf("ext2: inode %v: %w", ino.Ino, err)
		}
	}
	return entries, nil
}

func scanDirBlock(block []byte, out *[]DirEntry) error {
	headerSize := binstruct.StaticSize(diskDirEntry{})
	pos := 0
	for pos+headerSize <= len(block) {
		var raw diskDirEntry
		if _, err := binstruct.Unmarshal(block[pos:pos+headerSize], &raw); err != nil {
			return err
		}
		if raw.RecordLength < uint16(headerSize) {
			return fmt.Errorf("corrupt directory entry: record length %v shorter than header", raw.RecordLength)
		}
		if raw.Inode != 0 {
			nameStart := pos + headerSize
			nameEnd := nameStart + int(raw.NameLength)
			if nameEnd > len(block) {
				return fmt.Errorf("corrupt directory entry: name runs past end of block")
			}
			*out = append(*out, DirEntry{
				Inode:    raw.Inode,
				FileType: raw.FileType,
				Name:     string(block[nameStart:nameEnd]),
			})
		}
		pos += int(raw.RecordLength)
	}
	return nil
}

// Lookup finds a single entry by name within a directory inode.
func (ino *Inode) Lookup(name string) (*DirEntry, error) {
	entries, err := ino.ReadEntries()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Name == name {
			return &entries[i], nil
		}
	}
	return nil, nil
}
