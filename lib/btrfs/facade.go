// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"context"
	"errors"
	iofs "io/fs"

	"github.com/managarm/blockfs-go/lib/btrfs/btrfsitem"
	"github.com/managarm/blockfs-go/vfs"
)

// Filesystem is C5's facade over a single btrfs subvolume: directory
// lookup, symlink reads, stat, and path traversal, instantiated against
// the generic vfs.Namespace/vfs.NodeOps contract the way
// original_source/drivers/libblockfs/src/common-ops.hpp's free functions
// are instantiated over concept FileSystem<T>.
type Filesystem struct {
	SV      *Subvolume
	Inodes  *InodeManager
	RootIno ObjID
}

// NewFilesystem builds a read-only C5 facade over sv, rooted at the
// subvolume's root inode (spec.md §4.5's "the facade's root").
func NewFilesystem(ctx context.Context, sv *Subvolume) (*Filesystem, error) {
	root, err := sv.GetRootInode()
	if err != nil {
		return nil, vfs.Wrap(vfs.ErrMalformedFilesystem, "subvolume root", err)
	}
	return &Filesystem{
		SV:      sv,
		Inodes:  NewInodeManager(ctx, sv),
		RootIno: root,
	}, nil
}

var _ vfs.Namespace = (*Filesystem)(nil)

// Lookup implements vfs.Namespace and spec.md §4.5's find_entry,
// grounded on original_source/drivers/libblockfs/src/btrfs/ops.cpp's
// findEntry: cursor-initialize LowerBound at (dir, DIR_ITEM, 0), then
// NextKey through every DIR_ITEM on this directory (the noOffset prefix
// match), comparing each decoded entry's name until one matches or the
// prefix runs out. This is C3's lower_bound+next_key iteration, not a
// precomputed map lookup.
func (fs *Filesystem) Lookup(dir uint64, name string) (uint64, vfs.FileType, error) {
	item, cur, err := fs.SV.fs.LowerBound(fs.SV.TreeID, Key{
		ObjectID: ObjID(dir),
		ItemType: btrfsitem.DIR_ITEM_KEY,
		Offset:   0,
	})
	for {
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				return 0, vfs.TypeNone, vfs.Wrap(vfs.ErrFileNotFound, "lookup "+name, nil)
			}
			return 0, vfs.TypeNone, vfs.Wrap(vfs.ErrFileNotFound, "lookup: not a directory", err)
		}
		if item.Key.ObjectID != ObjID(dir) || item.Key.ItemType != btrfsitem.DIR_ITEM_KEY {
			return 0, vfs.TypeNone, vfs.Wrap(vfs.ErrFileNotFound, "lookup "+name, nil)
		}
		if entry, ok := item.Body.(btrfsitem.DirEntry); ok && string(entry.Name) == name {
			return uint64(entry.Location.ObjectID), dirEntryType(entry.Type), nil
		}
		item, err = cur.NextKey()
	}
}

// Obstructed implements vfs.Namespace. Nothing in a single subvolume is
// an obstruction today (multi-subvolume mount-point stacking is out of
// scope per spec.md §1's Non-goals), so this always reports false; the
// hook exists so TraverseLinks generalizes cleanly to a future
// multi-subvolume mount without changing its signature.
func (fs *Filesystem) Obstructed(dir uint64) bool {
	return false
}

func dirEntryType(t btrfsitem.FileType) vfs.FileType {
	switch t {
	case btrfsitem.FT_DIR:
		return vfs.TypeDirectory
	case btrfsitem.FT_SYMLINK:
		return vfs.TypeSymlink
	case btrfsitem.FT_REG_FILE:
		return vfs.TypeRegular
	default:
		return vfs.TypeNone
	}
}

// ReadEntries implements the node_ops ReadEntries bullet of spec.md §6
// and §4.5's read_entries, grounded on original_source's readEntries:
// UpperBound on (dir, DIR_INDEX, cursor) gives the next entry strictly
// after cursor; each subsequent NextKey call advances to the following
// one, and cursor is advanced to the yielded item's own key offset
// (not +1) so the next call's UpperBound resumes correctly. Stops once
// the cursor leaves the (dir, DIR_INDEX) prefix or limit is reached.
func (fs *Filesystem) ReadEntries(ctx context.Context, dir uint64, cursor uint64, limit int) ([]vfs.DirEntry, uint64, error) {
	item, cur, err := fs.SV.fs.UpperBound(fs.SV.TreeID, Key{
		ObjectID: ObjID(dir),
		ItemType: btrfsitem.DIR_INDEX_KEY,
		Offset:   cursor,
	})

	var out []vfs.DirEntry
	next := cursor
	for {
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				break
			}
			return nil, cursor, vfs.Wrap(vfs.ErrNotDirectory, "readEntries", err)
		}
		if item.Key.ObjectID != ObjID(dir) || item.Key.ItemType != btrfsitem.DIR_INDEX_KEY {
			break
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		if entry, ok := item.Body.(btrfsitem.DirEntry); ok {
			out = append(out, vfs.DirEntry{
				Name:  string(entry.Name),
				Inode: uint64(entry.Location.ObjectID),
				Type:  dirEntryType(entry.Type),
			})
			next = item.Key.Offset
		}
		item, err = cur.NextKey()
	}
	return out, next, nil
}

// ReadSymlink implements the node_ops ReadSymlink bullet and spec.md
// §4.5's read_symlink, grounded on original_source's readSymlink: a
// single C3 point lookup (Find) at (ino, EXTENT_DATA, 0), not the
// file-extent-list machinery AcquireFile builds for regular files. A
// symlink's target is always stored as a single inline EXTENT_DATA
// item; a non-inline extent here resolves to ErrUnsupported per §9 Q1.
func (fs *Filesystem) ReadSymlink(ino uint64) (string, error) {
	item, err := fs.SV.fs.Find(fs.SV.TreeID, Key{
		ObjectID: ObjID(ino),
		ItemType: btrfsitem.EXTENT_DATA_KEY,
		Offset:   0,
	})
	if err != nil {
		return "", vfs.Wrap(vfs.ErrIO, "readSymlink", err)
	}

	extent, ok := item.Body.(btrfsitem.FileExtent)
	if !ok || extent.Type != btrfsitem.FILE_EXTENT_INLINE {
		return "", vfs.Wrap(vfs.ErrUnsupported, "readSymlink: non-inline symlink target", nil)
	}
	return string(extent.BodyInline), nil
}

// GetStats implements the node_ops GetStats bullet, grounded on
// original_source's getStats.
func (fs *Filesystem) GetStats(ino uint64) (vfs.Stat, error) {
	bare, err := fs.SV.AcquireBareInode(ObjID(ino))
	if err != nil {
		return vfs.Stat{}, vfs.Wrap(vfs.ErrFileNotFound, "getStats", err)
	}
	defer fs.SV.ReleaseBareInode(ObjID(ino))

	item := bare.InodeItem
	return vfs.Stat{
		Inode:   ino,
		Type:    deriveFileType(item.Mode),
		NLink:   uint32(item.NLink),
		Size:    item.Size,
		Mode:    uint32(item.Mode),
		UID:     uint32(item.UID),
		GID:     uint32(item.GID),
		ATimeNS: item.ATime.Sec*1e9 + int64(item.ATime.NSec),
		MTimeNS: item.MTime.Sec*1e9 + int64(item.MTime.NSec),
		CTimeNS: item.CTime.Sec*1e9 + int64(item.CTime.NSec),
	}, nil
}

// NodeOps builds the upward vtable for the given inode, stubbing every
// mutator with ErrUnsupported per spec.md §9's resolved open question
// (clean error, not abort), matching original_source's STUBBED entries
// in btrfs/ops.cpp's nodeOperations.
func (fs *Filesystem) NodeOps(ino uint64) vfs.NodeOps {
	unsupported := func(name string) error { return vfs.Wrap(vfs.ErrUnsupported, name, nil) }
	return vfs.NodeOps{
		GetStats: func(context.Context) (vfs.Stat, error) { return fs.GetStats(ino) },
		GetLink: func(_ context.Context, name string) (uint64, vfs.FileType, error) {
			return fs.Lookup(ino, name)
		},
		ReadSymlink: func(context.Context) (string, error) { return fs.ReadSymlink(ino) },
		ReadEntries: func(ctx context.Context, cursor uint64, limit int) ([]vfs.DirEntry, uint64, error) {
			return fs.ReadEntries(ctx, ino, cursor, limit)
		},
		Mkdir:        func(context.Context, string) error { return unsupported("mkdir") },
		Symlink:      func(context.Context, string, string) error { return unsupported("symlink") },
		Link:         func(context.Context, string, uint64) error { return unsupported("link") },
		Unlink:       func(context.Context, string) error { return unsupported("unlink") },
		Chmod:        func(context.Context, uint32) error { return unsupported("chmod") },
		SetFileFlags: func(context.Context, uint32) error { return unsupported("setFileFlags") },
		GetFileFlags: func(context.Context) (uint32, error) { return 0, unsupported("getFileFlags") },
	}
}
