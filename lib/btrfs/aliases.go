// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"github.com/managarm/blockfs-go/lib/btrfs/internal"
	"github.com/managarm/blockfs-go/lib/util"
)

type (
	// (u)int64 types

	Generation = internal.Generation
	ObjID      = internal.ObjID

	// complex types

	Key  = internal.Key
	Time = internal.Time
	UUID = util.UUID
)

// Well-known object IDs, re-exported from internal so that the tree-walk
// and filesystem code above can refer to them without qualification.
const (
	ROOT_TREE_OBJECTID        = internal.ROOT_TREE_OBJECTID
	CHUNK_TREE_OBJECTID       = internal.CHUNK_TREE_OBJECTID
	TREE_LOG_OBJECTID         = internal.TREE_LOG_OBJECTID
	BLOCK_GROUP_TREE_OBJECTID = internal.BLOCK_GROUP_TREE_OBJECTID
	FIRST_FREE_OBJECTID       = internal.FIRST_FREE_OBJECTID
	FS_TREE_OBJECTID          = internal.FS_TREE_OBJECTID
)
