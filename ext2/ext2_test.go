// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ext2_test

import (
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/managarm/blockfs-go/ext2"
	"github.com/managarm/blockfs-go/lib/diskio"
	"github.com/managarm/blockfs-go/vfs"
)

// memFile is a growable in-memory diskio.File[int64], standing in for a
// real block device the way diskio_test's byteReaderWithName stands in
// for a real *os.File.
type memFile struct {
	data []byte
}

func (f *memFile) Name() string  { return "memfile" }
func (f *memFile) Size() int64   { return int64(len(f.data)) }
func (f *memFile) Close() error  { return nil }
func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off) >= len(f.data) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(f.data) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:], p)
	return len(p), nil
}

var _ diskio.File[int64] = (*memFile)(nil)

const (
	testBlockSize      = 1024
	testInodesPerGroup = 32
	testBlocksPerGroup = 8192
	testBlocksCount    = 64
	testInodeSize      = 128

	blkBoot     = 0
	blkSB       = 1
	blkBGDT     = 2
	blkBlockBM  = 3
	blkInodeBM  = 4
	blkITabLo   = 5 // inode table spans blocks 5-8 (32 inodes * 128 bytes = 4096 bytes = 4 blocks)
	blkRootData = 9
	blkFirstFree = 10

	inoReserved = 1
	inoRoot     = 2
	inoLink     = 3
)

func putU16(buf []byte, off int, v uint16) { binary.LittleEndian.PutUint16(buf[off:], v) }
func putU32(buf []byte, off int, v uint32) { binary.LittleEndian.PutUint32(buf[off:], v) }

// buildImage hand-assembles a minimal, single-block-group ext2 image: a
// root directory (inode 2) containing "." and ".." plus a "link" entry
// pointing at an inline ("fast") symlink (inode 3). Block/inode bitmaps
// mark everything through blkRootData/inoLink used, leaving blkFirstFree
// onward and inode index testInodesPerGroup-1 free for allocation tests.
func buildImage(t *testing.T) *memFile {
	t.Helper()
	f := &memFile{data: make([]byte, testBlocksCount*testBlockSize)}

	block := func(n int) []byte {
		return f.data[n*testBlockSize : (n+1)*testBlockSize]
	}

	// Superblock, at byte offset 1024 (== block 1 at this block size).
	sb := block(blkSB)
	putU32(sb, 0x00, testInodesPerGroup)  // InodesCount
	putU32(sb, 0x04, testBlocksCount)     // BlocksCount
	putU32(sb, 0x14, 1)                   // FirstDataBlock
	putU32(sb, 0x18, 0)                   // LogBlockSize -> 1024<<0 = 1024
	putU32(sb, 0x20, testBlocksPerGroup)  // BlocksPerGroup
	putU32(sb, 0x28, testInodesPerGroup)  // InodesPerGroup
	putU16(sb, 0x38, 0xEF53)              // Magic

	// Block-group descriptor table: one group.
	bgdt := block(blkBGDT)
	putU32(bgdt, 0x00, blkBlockBM)
	putU32(bgdt, 0x04, blkInodeBM)
	putU32(bgdt, 0x08, blkITabLo)

	// Block bitmap: mark blocks [0, blkFirstFree) used (index i <-> block FirstDataBlock+i == 1+i).
	blockBM := block(blkBlockBM)
	for i := 0; i < blkFirstFree-1; i++ {
		blockBM[i/8] |= 1 << (i % 8)
	}

	// Inode bitmap: mark inodes 1..3 used (index i <-> inode i+1).
	inodeBM := block(blkInodeBM)
	for i := 0; i < inoLink; i++ {
		inodeBM[i/8] |= 1 << (i % 8)
	}

	// Root inode (#2): a directory, one data block (blkRootData).
	rootInode := f.data[blkITabLo*testBlockSize+(inoRoot-1)*testInodeSize:]
	putU16(rootInode, 0x00, 0x4000|0755) // Mode: S_IFDIR
	putU32(rootInode, 0x04, testBlockSize) // Size
	putU16(rootInode, 0x1a, 2)            // LinksCount
	putU32(rootInode, 0x1c, testBlockSize/512) // Blocks (512-byte sectors)
	putU32(rootInode, 0x28, blkRootData)  // Data[0] (direct block 0)

	// Symlink inode (#3): inline ("fast") target, no data block.
	linkInode := f.data[blkITabLo*testBlockSize+(inoLink-1)*testInodeSize:]
	const target = "hello"
	putU16(linkInode, 0x00, 0xA000|0777) // Mode: S_IFLNK
	putU32(linkInode, 0x04, uint32(len(target)))
	putU16(linkInode, 0x1a, 1)
	copy(linkInode[0x28:], target)

	// Root directory data block: ".", "..", "link".
	dirBlock := block(blkRootData)
	writeDirEntry(dirBlock, 0, inoRoot, 2, ".")
	writeDirEntry(dirBlock, 12, inoRoot, 2, "..")
	writeDirEntry(dirBlock, 24, inoLink, 7 /* ftSymlink */, "link")
	// The last entry's record length spans the rest of the block.
	binary.LittleEndian.PutUint16(dirBlock[24+4:], uint16(testBlockSize-24))

	return f
}

// writeDirEntry writes a diskDirEntry at byte offset pos within block,
// with a record length just covering header+name (4-byte aligned);
// callers needing the final entry to tile the rest of the block patch
// RecordLength afterward.
func writeDirEntry(block []byte, pos int, ino uint32, fileType uint8, name string) {
	putU32(block, pos+0, ino)
	recLen := (8 + len(name) + 3) &^ 3
	putU16(block, pos+4, uint16(recLen))
	block[pos+6] = uint8(len(name))
	block[pos+7] = fileType
	copy(block[pos+8:], name)
}

func openTestFS(t *testing.T) *ext2.FS {
	t.Helper()
	fs, err := ext2.Open(buildImage(t))
	require.NoError(t, err)
	return fs
}

func TestOpenParsesSuperblockAndGroups(t *testing.T) {
	t.Parallel()
	fs := openTestFS(t)
	assert.Equal(t, uint32(testBlockSize), fs.SB.BlockSize)
	assert.Equal(t, uint16(testInodeSize), fs.SB.InodeSize)
	assert.Equal(t, uint32(1), fs.SB.NumGroups)
	require.Len(t, fs.Groups, 1)
	assert.Equal(t, uint32(blkBlockBM), fs.Groups[0].BlockBitmap)
	assert.Equal(t, uint32(blkInodeBM), fs.Groups[0].InodeBitmap)
	assert.Equal(t, uint32(blkITabLo), fs.Groups[0].InodeTable)
}

func TestRootInodeLookupAndReadEntries(t *testing.T) {
	t.Parallel()
	fs := openTestFS(t)

	root, err := fs.RootInode()
	require.NoError(t, err)
	assert.True(t, root.IsDir())

	entries, err := root.ReadEntries()
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.ElementsMatch(t, []string{".", "..", "link"}, names)

	found, err := root.Lookup("link")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, uint32(inoLink), found.Inode)

	missing, err := root.Lookup("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReadSymlinkInline(t *testing.T) {
	t.Parallel()
	fs := openTestFS(t)

	link, err := fs.GetInode(inoLink)
	require.NoError(t, err)
	assert.True(t, link.IsSymlink())

	target, err := link.ReadSymlink()
	require.NoError(t, err)
	assert.Equal(t, "hello", target)
}

func TestMkdirCreatesChildWithDotEntries(t *testing.T) {
	t.Parallel()
	fs := openTestFS(t)
	root, err := fs.RootInode()
	require.NoError(t, err)

	child, err := fs.Mkdir(root, "subdir")
	require.NoError(t, err)
	assert.True(t, child.IsDir())

	// The parent now lists the new entry, and LinksCount grew.
	root, err = fs.RootInode()
	require.NoError(t, err)
	entry, err := root.Lookup("subdir")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, child.Ino, entry.Inode)

	// The child has "." and ".." wired to itself/the parent.
	entries, err := child.ReadEntries()
	require.NoError(t, err)
	byName := map[string]uint32{}
	for _, e := range entries {
		byName[e.Name] = e.Inode
	}
	assert.Equal(t, child.Ino, byName["."])
	assert.Equal(t, root.Ino, byName[".."])
}

func TestSymlinkCreateAndReadBack(t *testing.T) {
	t.Parallel()
	fs := openTestFS(t)
	root, err := fs.RootInode()
	require.NoError(t, err)

	child, err := fs.Symlink(root, "newlink", "some/target")
	require.NoError(t, err)
	assert.True(t, child.IsSymlink())

	reopened, err := fs.GetInode(child.Ino)
	require.NoError(t, err)
	target, err := reopened.ReadSymlink()
	require.NoError(t, err)
	assert.Equal(t, "some/target", target)
}

func TestMkdirRejectsDuplicateName(t *testing.T) {
	t.Parallel()
	fs := openTestFS(t)
	root, err := fs.RootInode()
	require.NoError(t, err)

	_, err = fs.Mkdir(root, "link") // "link" already exists in the root
	assert.Error(t, err)
}

func TestFacadeLookupAndReadSymlink(t *testing.T) {
	t.Parallel()
	fs := openTestFS(t)
	ctx := context.Background()

	facade, err := ext2.NewFilesystem(ctx, fs)
	require.NoError(t, err)
	assert.Equal(t, uint32(inoRoot), facade.RootIno)

	ino, typ, err := facade.Lookup(uint64(facade.RootIno), "link")
	require.NoError(t, err)
	assert.Equal(t, uint64(inoLink), ino)
	assert.Equal(t, vfs.TypeSymlink, typ)

	target, err := facade.ReadSymlink(ino)
	require.NoError(t, err)
	assert.Equal(t, "hello", target)

	_, _, err = facade.Lookup(uint64(facade.RootIno), "nonexistent")
	assert.ErrorIs(t, err, vfs.ErrFileNotFound)
}

func TestFacadeNodeOpsMkdirIsWired(t *testing.T) {
	t.Parallel()
	fs := openTestFS(t)
	ctx := context.Background()

	facade, err := ext2.NewFilesystem(ctx, fs)
	require.NoError(t, err)

	ops := facade.NodeOps(uint64(facade.RootIno))
	err = ops.Mkdir(ctx, "viaFacade")
	require.NoError(t, err)

	ino, typ, err := facade.Lookup(uint64(facade.RootIno), "viaFacade")
	require.NoError(t, err)
	assert.Equal(t, vfs.TypeDirectory, typ)
	assert.NotZero(t, ino)

	// The remaining mutators are intentionally unsupported.
	err = ops.Chmod(ctx, 0644)
	assert.ErrorIs(t, err, vfs.ErrUnsupported)
}
