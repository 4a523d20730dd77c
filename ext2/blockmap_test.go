// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ext2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBlockDirect(t *testing.T) {
	t.Parallel()
	var data [60]byte
	blockPointers(data[:]).set(0, 100)
	blockPointers(data[:]).set(11, 111)

	got, err := resolveBlock(data, 1024, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), got)

	got, err = resolveBlock(data, 1024, 11, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(111), got)
}

func TestResolveBlockHoleIsZero(t *testing.T) {
	t.Parallel()
	var data [60]byte
	got, err := resolveBlock(data, 1024, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), got)
}

func TestResolveBlockSingleIndirect(t *testing.T) {
	t.Parallel()
	const blockSize = 1024
	ppb := pointersPerBlock(blockSize)

	indirect := make([]byte, blockSize)
	blockPointers(indirect).set(0, 500)
	blockPointers(indirect).set(ppb-1, 501)

	var data [60]byte
	blockPointers(data[:]).set(idxSingleIndir, 42)

	readBlock := func(num uint32) ([]byte, error) {
		assert.Equal(t, uint32(42), num)
		return indirect, nil
	}

	got, err := resolveBlock(data, blockSize, numDirect, readBlock)
	require.NoError(t, err)
	assert.Equal(t, uint32(500), got)

	got, err = resolveBlock(data, blockSize, numDirect+ppb-1, readBlock)
	require.NoError(t, err)
	assert.Equal(t, uint32(501), got)
}

func TestResolveBlockDoubleIndirect(t *testing.T) {
	t.Parallel()
	const blockSize = 1024
	ppb := pointersPerBlock(blockSize)

	leaf := make([]byte, blockSize)
	blockPointers(leaf).set(2, 900)

	mid := make([]byte, blockSize)
	blockPointers(mid).set(0, 800)

	var data [60]byte
	blockPointers(data[:]).set(idxDoubleIndir, 77)

	readBlock := func(num uint32) ([]byte, error) {
		switch num {
		case 77:
			return mid, nil
		case 800:
			return leaf, nil
		default:
			t.Fatalf("unexpected readBlock(%v)", num)
			return nil, nil
		}
	}

	logical := numDirect + ppb + 2
	got, err := resolveBlock(data, blockSize, logical, readBlock)
	require.NoError(t, err)
	assert.Equal(t, uint32(900), got)
}

func TestResolveBlockBeyondTripleIndirect(t *testing.T) {
	t.Parallel()
	const blockSize = 1024
	ppb := pointersPerBlock(blockSize)
	var data [60]byte

	logical := numDirect + ppb + ppb*ppb + ppb*ppb*ppb
	_, err := resolveBlock(data, blockSize, logical, nil)
	assert.Error(t, err)
}

func TestFirstZeroBit(t *testing.T) {
	t.Parallel()
	bitmap := make([]byte, 4)
	bitmap[0] = 0b00000111 // bits 0,1,2 set
	idx, ok := firstZeroBit(bitmap, 32)
	require.True(t, ok)
	assert.Equal(t, uint32(3), idx)

	setBit(bitmap, idx)
	idx2, ok := firstZeroBit(bitmap, 32)
	require.True(t, ok)
	assert.Equal(t, uint32(4), idx2)
}

func TestFirstZeroBitNoneFree(t *testing.T) {
	t.Parallel()
	bitmap := []byte{0xFF}
	_, ok := firstZeroBit(bitmap, 8)
	assert.False(t, ok)
}

func TestAlign4(t *testing.T) {
	t.Parallel()
	cases := map[int]int{0: 0, 1: 4, 3: 4, 4: 4, 5: 8, 8: 8}
	for in, want := range cases {
		assert.Equal(t, want, align4(in))
	}
}
