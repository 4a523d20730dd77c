// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ext2

import (
	"context"

	"github.com/managarm/blockfs-go/vfs"
)

// Filesystem is the C5 facade over an open ext2 volume, mirroring
// lib/btrfs/facade.go's Filesystem but with real (not ErrUnsupported)
// Mkdir and Symlink, since ext2's write path is incidental rather than
// entirely absent.
type Filesystem struct {
	FS      *FS
	Inodes  *InodeManager
	RootIno uint32
}

// NewFilesystem builds a facade over fs, rooted at inode 2.
func NewFilesystem(ctx context.Context, fs *FS) (*Filesystem, error) {
	root, err := fs.RootInode()
	if err != nil {
		return nil, vfs.Wrap(vfs.ErrMalformedFilesystem, "root inode", err)
	}
	return &Filesystem{
		FS:      fs,
		Inodes:  NewInodeManager(ctx, fs),
		RootIno: root.Ino,
	}, nil
}

var _ vfs.Namespace = (*Filesystem)(nil)

func dirEntryType(ft uint8) vfs.FileType {
	switch ft {
	case ftDir:
		return vfs.TypeDirectory
	case ftSymlink:
		return vfs.TypeSymlink
	case ftRegFile:
		return vfs.TypeRegular
	default:
		return vfs.TypeNone
	}
}

// Lookup implements vfs.Namespace via a directory entry scan, grounded
// on original_source's Inode::findEntry.
func (f *Filesystem) Lookup(dir uint64, name string) (uint64, vfs.FileType, error) {
	d, err := f.FS.GetInode(uint32(dir))
	if err != nil {
		return 0, vfs.TypeNone, vfs.Wrap(vfs.ErrFileNotFound, "lookup: "+name, err)
	}
	entry, err := d.Lookup(name)
	if err != nil {
		return 0, vfs.TypeNone, vfs.Wrap(vfs.ErrNotDirectory, "lookup: not a directory", err)
	}
	if entry == nil {
		return 0, vfs.TypeNone, vfs.Wrap(vfs.ErrFileNotFound, "lookup "+name, nil)
	}
	return uint64(entry.Inode), dirEntryType(entry.FileType), nil
}

// Obstructed implements vfs.Namespace; a single ext2 volume never
// stacks sub-mounts, so nothing is obstructed.
func (f *Filesystem) Obstructed(dir uint64) bool {
	return false
}

// ReadEntries implements the node_ops ReadEntries bullet, paging through
// a directory's entries in on-disk order starting at cursor (the 0-based
// index of the next entry to return, i.e. how many entries earlier calls
// already returned; 0 means "from the start").
func (f *Filesystem) ReadEntries(ctx context.Context, dir uint64, cursor uint64, limit int) ([]vfs.DirEntry, uint64, error) {
	d, err := f.FS.GetInode(uint32(dir))
	if err != nil {
		return nil, cursor, vfs.Wrap(vfs.ErrNotDirectory, "readEntries", err)
	}
	entries, err := d.ReadEntries()
	if err != nil {
		return nil, cursor, vfs.Wrap(vfs.ErrNotDirectory, "readEntries", err)
	}

	var out []vfs.DirEntry
	next := cursor
	for i := cursor; i < uint64(len(entries)); i++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		e := entries[i]
		out = append(out, vfs.DirEntry{
			Name:  e.Name,
			Inode: uint64(e.Inode),
			Type:  dirEntryType(e.FileType),
		})
		next = i + 1
	}
	return out, next, nil
}

// ReadSymlink implements the node_ops ReadSymlink bullet.
func (f *Filesystem) ReadSymlink(ino uint64) (string, error) {
	inode, err := f.FS.GetInode(uint32(ino))
	if err != nil {
		return "", vfs.Wrap(vfs.ErrIO, "readSymlink", err)
	}
	target, err := inode.ReadSymlink()
	if err != nil {
		return "", vfs.Wrap(vfs.ErrIO, "readSymlink", err)
	}
	return target, nil
}

// GetStats implements the node_ops GetStats bullet.
func (f *Filesystem) GetStats(ino uint64) (vfs.Stat, error) {
	inode, err := f.FS.GetInode(uint32(ino))
	if err != nil {
		return vfs.Stat{}, vfs.Wrap(vfs.ErrFileNotFound, "getStats", err)
	}
	return vfs.Stat{
		Inode:   ino,
		Type:    deriveFileType(inode),
		NLink:   uint32(inode.raw.LinksCount),
		Size:    int64(inode.Size()),
		Mode:    uint32(inode.Mode()),
		UID:     uint32(inode.raw.UID),
		GID:     uint32(inode.raw.GID),
		ATimeNS: int64(inode.raw.ATime) * 1e9,
		MTimeNS: int64(inode.raw.MTime) * 1e9,
		CTimeNS: int64(inode.raw.CTime) * 1e9,
	}, nil
}

// NodeOps builds the upward vtable for ino. Mkdir and Symlink are wired
// to the real, incidental write path; the remaining mutators -- link,
// unlink, chmod, flag changes, and anything requiring resize/truncate --
// are out of scope and report ErrUnsupported, matching the STUBBED
// entries original_source leaves for features this module doesn't carry.
func (f *Filesystem) NodeOps(ino uint64) vfs.NodeOps {
	unsupported := func(name string) error { return vfs.Wrap(vfs.ErrUnsupported, name, nil) }
	return vfs.NodeOps{
		GetStats: func(context.Context) (vfs.Stat, error) { return f.GetStats(ino) },
		GetLink: func(_ context.Context, name string) (uint64, vfs.FileType, error) {
			return f.Lookup(ino, name)
		},
		ReadSymlink: func(context.Context) (string, error) { return f.ReadSymlink(ino) },
		ReadEntries: func(ctx context.Context, cursor uint64, limit int) ([]vfs.DirEntry, uint64, error) {
			return f.ReadEntries(ctx, ino, cursor, limit)
		},
		Mkdir: func(_ context.Context, name string) error {
			dir, err := f.FS.GetInode(uint32(ino))
			if err != nil {
				return vfs.Wrap(vfs.ErrFileNotFound, "mkdir", err)
			}
			_, err = f.FS.Mkdir(dir, name)
			return err
		},
		Symlink: func(_ context.Context, name, target string) error {
			dir, err := f.FS.GetInode(uint32(ino))
			if err != nil {
				return vfs.Wrap(vfs.ErrFileNotFound, "symlink", err)
			}
			_, err = f.FS.Symlink(dir, name, target)
			return err
		},
		Link:         func(context.Context, string, uint64) error { return unsupported("link") },
		Unlink:       func(context.Context, string) error { return unsupported("unlink") },
		Chmod:        func(context.Context, uint32) error { return unsupported("chmod") },
		SetFileFlags: func(context.Context, uint32) error { return unsupported("setFileFlags") },
		GetFileFlags: func(context.Context) (uint32, error) { return 0, unsupported("getFileFlags") },
	}
}
