// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	iofs "io/fs"

	"github.com/managarm/blockfs-go/lib/btrfs/btrfsvol"
	"github.com/managarm/blockfs-go/lib/diskio"
)

// Cursor is C3's resumable iteration handle: a path into a tree plus the
// leaf node it currently addresses, matching spec.md §4.3's description
// of "lower_bound"/"upper_bound" returning a cursor that "next_key" can
// resume from.
type Cursor struct {
	fs   *FS
	path TreePath
	node *diskio.Ref[btrfsvol.LogicalAddr, Node]
}

// Find is C3's point lookup: the item whose key equals k, or
// io/fs.ErrNotExist.
func (fs *FS) Find(treeID ObjID, k Key) (Item, error) {
	return fs.TreeLookup(treeID, k)
}

// LowerBound returns the leftmost item whose key is >= k, along with a
// Cursor that NextKey can resume iteration from. Grounded on
// original_source/drivers/libblockfs/src/btrfs/btrfs.cpp's lowerBound
// (recursive descent taking the first key-pointer/item that is not less
// than k at each level).
func (fs *FS) LowerBound(treeID ObjID, k Key) (Item, *Cursor, error) {
	rootInfo, err := LookupTreeRoot(fs, treeID)
	if err != nil {
		return Item{}, nil, err
	}
	path, node, err := fs.treeSearch(*rootInfo, func(key Key, _ uint32) int {
		if key.Cmp(k) >= 0 {
			return 0
		}
		return -1
	})
	if err != nil {
		return Item{}, nil, err
	}
	item := node.Data.BodyLeaf[path.Node(-1).FromItemIdx]
	return item, &Cursor{fs: fs, path: path, node: node}, nil
}

// UpperBound returns the leftmost item whose key is > k, along with a
// resumable Cursor. Grounded on original_source's upperBound, the same
// recursive descent as lowerBound with a strict comparison.
func (fs *FS) UpperBound(treeID ObjID, k Key) (Item, *Cursor, error) {
	rootInfo, err := LookupTreeRoot(fs, treeID)
	if err != nil {
		return Item{}, nil, err
	}
	path, node, err := fs.treeSearch(*rootInfo, func(key Key, _ uint32) int {
		if key.Cmp(k) > 0 {
			return 0
		}
		return -1
	})
	if err != nil {
		return Item{}, nil, err
	}
	item := node.Data.BodyLeaf[path.Node(-1).FromItemIdx]
	return item, &Cursor{fs: fs, path: path, node: node}, nil
}

// FirstKey returns the leftmost item in the tree (the leftmost descent
// from the root), along with a resumable Cursor. Grounded on
// original_source's firstKey.
func (fs *FS) FirstKey(treeID ObjID) (Item, *Cursor, error) {
	rootInfo, err := LookupTreeRoot(fs, treeID)
	if err != nil {
		return Item{}, nil, err
	}
	path := TreePath{{
		FromTree:       rootInfo.TreeID,
		FromGeneration: rootInfo.Generation,
		FromItemIdx:    -1,
		ToNodeAddr:     rootInfo.RootNode,
		ToNodeLevel:    rootInfo.Level,
	}}
	for {
		if path.Node(-1).ToNodeAddr == 0 {
			return Item{}, nil, iofs.ErrNotExist
		}
		node, err := fs.ReadNode(path)
		if err != nil {
			return Item{}, nil, err
		}
		if node.Data.Head.Level > 0 {
			if len(node.Data.BodyInternal) == 0 {
				return Item{}, nil, iofs.ErrNotExist
			}
			path = append(path, TreePathElem{
				FromTree:       node.Data.Head.Owner,
				FromGeneration: node.Data.Head.Generation,
				FromItemIdx:    0,
				ToNodeAddr:     node.Data.BodyInternal[0].BlockPtr,
				ToNodeLevel:    node.Data.Head.Level - 1,
			})
			continue
		}
		if len(node.Data.BodyLeaf) == 0 {
			return Item{}, nil, iofs.ErrNotExist
		}
		path = append(path, TreePathElem{
			FromTree:       node.Data.Head.Owner,
			FromGeneration: node.Data.Head.Generation,
			FromItemIdx:    0,
		})
		return node.Data.BodyLeaf[0], &Cursor{fs: fs, path: path, node: node}, nil
	}
}

// NextKey advances the cursor to the next item in key order, using the
// copy-then-commit protocol described in spec.md §4.3: fs.next operates
// on a deep copy of the path (see io3_btree.go) and this method commits
// that copy into the cursor only once a next item has actually been
// found, so a failed advance (end of tree, or a read error) leaves the
// cursor exactly where it was. Grounded on
// original_source/drivers/libblockfs/src/btrfs/btrfs.cpp's nextKey (pop +
// upper-bound + recurse via firstKey on a temporary stack, commit only on
// success) and on io3_btree.go's own next/TreeSearchAll usage of it.
func (c *Cursor) NextKey() (Item, error) {
	newPath, newNode, err := c.fs.next(c.path, c.node)
	if err != nil {
		return Item{}, err
	}
	if len(newPath) == 0 {
		return Item{}, iofs.ErrNotExist
	}
	// Commit.
	c.path = newPath
	c.node = newNode
	return newNode.Data.BodyLeaf[newPath.Node(-1).FromItemIdx], nil
}

// Key returns the key of the item the cursor currently addresses.
func (c *Cursor) Key() Key {
	return c.node.Data.BodyLeaf[c.path.Node(-1).FromItemIdx].Key
}
