// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ext2

import (
	"fmt"
)

// newInode allocates an inode number and an in-memory record for it
// (not yet linked into any directory), grounded on original_source's
// FileSystem::allocateInode plus Inode's constructor defaults.
func (fs *FS) newInode(mode uint16, parentIno uint32) (*Inode, error) {
	group, _ := fs.SB.locate(parentIno)
	ino, err := fs.allocateInode(group, mode&sIFMT == sIFDIR)
	if err != nil {
		return nil, err
	}
	inode := &Inode{
		fs:  fs,
		Ino: ino,
		raw: diskInode{Mode: mode, LinksCount: 1},
	}
	if err := fs.writeInode(inode); err != nil {
		return nil, err
	}
	return inode, nil
}

// Mkdir creates a new, empty subdirectory named name under dir, wired
// with "." and ".." entries, grounded on original_source's
// FileSystem::createDirectory plus Inode::mkdir.
func (fs *FS) Mkdir(dir *Inode, name string) (*Inode, error) {
	if !dir.IsDir() {
		return nil, fmt.Errorf("ext2: inode %v is not a directory", dir.Ino)
	}

	child, err := fs.newInode(sIFDIR, dir.Ino)
	if err != nil {
		return nil, err
	}

	block, err := child.appendBlock()
	if err != nil {
		return nil, err
	}
	blockSize := uint16(fs.SB.BlockSize)
	dotLen := uint16(align4(dirEntryHeaderSize + 1))
	writeDirEntry(block, 0, dotLen, child.Ino, ftDir, ".")
	writeDirEntry(block, int(dotLen), blockSize-dotLen, dir.Ino, ftDir, "..")
	if err := child.writeDirBlock(0, block); err != nil {
		return nil, err
	}
	child.raw.LinksCount = 2
	if err := fs.writeInode(child); err != nil {
		return nil, err
	}

	if err := dir.insertEntry(name, child.Ino, ftDir); err != nil {
		return nil, err
	}
	dir.raw.LinksCount++
	if err := fs.writeInode(dir); err != nil {
		return nil, err
	}

	return child, nil
}

// Symlink creates a new symlink named name under dir pointing at target,
// storing the target inline when it fits (the common case), grounded on
// original_source's FileSystem::createSymlink plus Inode::symlink.
func (fs *FS) Symlink(dir *Inode, name, target string) (*Inode, error) {
	if !dir.IsDir() {
		return nil, fmt.Errorf("ext2: inode %v is not a directory", dir.Ino)
	}
	if len(target) > fastSymlinkTargetMax {
		return nil, fmt.Errorf("ext2: symlink target too long (%v bytes)", len(target))
	}

	child, err := fs.newInode(sIFLNK, dir.Ino)
	if err != nil {
		return nil, err
	}
	copy(child.raw.Data[:], target)
	child.raw.Size = uint32(len(target))
	if err := fs.writeInode(child); err != nil {
		return nil, err
	}

	if err := dir.insertEntry(name, child.Ino, ftSymlink); err != nil {
		return nil, err
	}

	return child, nil
}
