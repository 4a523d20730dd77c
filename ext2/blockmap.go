// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ext2

import (
	"encoding/binary"
	"fmt"
)

// blockPointers views a raw block buffer (or the 60-byte diskInode.Data
// array) as a flat array of little-endian uint32 block numbers, the
// on-disk shape of both indirect blocks and FileData.Blocks.
type blockPointers []byte

func (bp blockPointers) at(i uint32) uint32 {
	return binary.LittleEndian.Uint32(bp[i*4:])
}

func (bp blockPointers) set(i uint32, v uint32) {
	binary.LittleEndian.PutUint32(bp[i*4:], v)
}

func pointersPerBlock(blockSize uint32) uint32 {
	return blockSize / 4
}

// resolveBlock translates a 0-based logical block index within a file to
// a physical block number, walking the direct/single/double/triple
// indirect pointer tree exactly as original_source's ext2fs.cpp resolves
// block offsets (no extents, no 64-bit block numbers). readBlock reads
// one full block's worth of data (an indirect block of pointers) given
// its physical block number.
func resolveBlock(data [60]byte, blockSize uint32, logical uint32, readBlock func(uint32) ([]byte, error)) (uint32, error) {
	direct := blockPointers(data[:])
	ppb := pointersPerBlock(blockSize)

	if logical < numDirect {
		return direct.at(logical), nil
	}
	logical -= numDirect

	if logical < ppb {
		return indirectLookup(direct.at(idxSingleIndir), logical, readBlock)
	}
	logical -= ppb

	if logical < ppb*ppb {
		outer := logical / ppb
		inner := logical % ppb
		mid, err := indirectLookup(direct.at(idxDoubleIndir), outer, readBlock)
		if err != nil || mid == 0 {
			return mid, err
		}
		return indirectLookup(mid, inner, readBlock)
	}
	logical -= ppb * ppb

	if logical < ppb*ppb*ppb {
		outer := logical / (ppb * ppb)
		rem := logical % (ppb * ppb)
		mid1 := rem / ppb
		mid2 := rem % ppb
		l1, err := indirectLookup(direct.at(idxTripleIndir), outer, readBlock)
		if err != nil || l1 == 0 {
			return l1, err
		}
		l2, err := indirectLookup(l1, mid1, readBlock)
		if err != nil || l2 == 0 {
			return l2, err
		}
		return indirectLookup(l2, mid2, readBlock)
	}

	return 0, fmt.Errorf("ext2: logical block %v is beyond triple-indirect range", logical)
}

// indirectLookup reads the indirect block at physical block num and
// returns the pointer at slot idx within it. A num of 0 (a hole) short-
// circuits to returning 0 without reading anything, since block 0 is
// never a valid data/indirect block on ext2.
func indirectLookup(num uint32, idx uint32, readBlock func(uint32) ([]byte, error)) (uint32, error) {
	if num == 0 {
		return 0, nil
	}
	buf, err := readBlock(num)
	if err != nil {
		return 0, err
	}
	return blockPointers(buf).at(idx), nil
}
