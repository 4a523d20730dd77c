package vfs

import (
	"context"
	"io"
	"sync"
)

// FileType mirrors original_source's blockfs::FileType enum.
type FileType int

const (
	TypeNone FileType = iota
	TypeRegular
	TypeDirectory
	TypeSymlink
)

// Inode is the minimal contract a backend's inode object exposes to the
// generic free functions below. Grounded on
// original_source/drivers/libblockfs/src/btrfs/btrfs.hpp's Inode
// (readyEvent, fileSize, fileType) and common-ops.hpp's usage of them.
type Inode interface {
	Ready() <-chan struct{}
	Type() FileType
	FileSize() int64
	ReadAt(p []byte, off int64) (int, error)
}

// OpenFile is a per-open cursor over an Inode: the Go analogue of
// original_source's btrfs::OpenFile, and of common-ops.hpp's File<T>
// concept (a mutex-guarded offset plus a reference to the inode).
type OpenFile[I Inode] struct {
	mu     sync.Mutex
	Inode  I
	Offset int64
}

func NewOpenFile[I Inode](inode I) *OpenFile[I] {
	return &OpenFile[I]{Inode: inode}
}

// SeekAbs is the generic doSeekAbs<T>.
func (f *OpenFile[I]) SeekAbs(offset int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Offset = offset
	return f.Offset
}

// SeekRel is the generic doSeekRel<T>.
func (f *OpenFile[I]) SeekRel(offset int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Offset += offset
	return f.Offset
}

// SeekEof is the generic doSeekEof<T>: wait for the inode to be ready,
// then seek relative to its file size.
func (f *OpenFile[I]) SeekEof(ctx context.Context, offset int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := waitReady(ctx, f.Inode); err != nil {
		return 0, err
	}
	f.Offset = offset + f.Inode.FileSize()
	return f.Offset, nil
}

// Read is the generic doRead<T>: read from, and advance, the cursor.
func (f *OpenFile[I]) Read(ctx context.Context, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := doReadImpl(ctx, f.Inode, p, f.Offset)
	f.Offset += int64(n)
	return n, err
}

// Pread is the generic doPread<T>: read at an explicit offset, leaving the
// cursor untouched.
func (f *OpenFile[I]) Pread(ctx context.Context, offset int64, p []byte) (int, error) {
	if offset < 0 {
		return 0, Wrap(ErrIllegalOperationTarget, "pread: negative offset", nil)
	}
	return doReadImpl(ctx, f.Inode, p, offset)
}

func waitReady(ctx context.Context, inode Inode) error {
	select {
	case <-inode.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doReadImpl is the generic detail::doReadImpl<T>.
func doReadImpl(ctx context.Context, inode Inode, p []byte, offset int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := waitReady(ctx, inode); err != nil {
		return 0, err
	}
	if inode.Type() == TypeDirectory {
		return 0, Wrap(ErrIllegalOperationTarget, "read: is a directory", nil)
	}
	if offset >= inode.FileSize() {
		return 0, io.EOF
	}
	remaining := inode.FileSize() - offset
	chunk := int64(len(p))
	if remaining < chunk {
		chunk = remaining
	}
	return inode.ReadAt(p[:chunk], offset)
}

// DirEntry is a single resolved directory entry, backend-agnostic.
type DirEntry struct {
	Name  string
	Inode uint64
	Type  FileType
}

// Namespace is the minimal directory-resolution contract TraverseLinks
// needs from a backend's filesystem facade. Grounded on
// original_source/drivers/libblockfs/src/btrfs/ops.cpp's traverseLinks,
// generalized over both backends via common-ops.hpp's FileSystem<T>
// pattern.
type Namespace interface {
	// Lookup resolves a single path component within dir.
	// TraverseLinks passes every component through, "." and ".."
	// included, except a ".." at the traversal root, which it skips.
	Lookup(dir uint64, name string) (child uint64, typ FileType, err error)
	// Obstructed reports whether dir is an obstructed link (e.g. a
	// submount boundary) that traversal must stop at without
	// descending further.
	Obstructed(dir uint64) bool
}

// TraverseLinks walks components starting from start, stopping early at a
// symlink or an obstruction (returning the partial result and the number
// of components actually consumed), or at a non-directory encountered
// before the last component (ErrNotDirectory). This is a direct
// translation of original_source's btrfs::traverseLinks: ".." at the
// traversal root is a no-op (there is nothing above a mount root to pop
// to); elsewhere it is resolved by re-Looking-up ".." from the current
// directory.
func TraverseLinks(ns Namespace, start uint64, components []string) (nodes []uint64, terminal FileType, processed int, err error) {
	nodes = []uint64{start}
	cur := start
	curType := TypeDirectory

	for i, comp := range components {
		last := i == len(components)-1

		if ns.Obstructed(cur) {
			return nodes, curType, i, nil
		}
		if curType != TypeDirectory {
			return nodes, curType, i, Wrap(ErrNotDirectory, "traverseLinks", nil)
		}

		if comp == ".." && cur == start {
			// No-op at the traversal root: nothing to pop to.
			continue
		}

		child, typ, lookupErr := ns.Lookup(cur, comp)
		if lookupErr != nil {
			return nodes, curType, i, lookupErr
		}

		nodes = append(nodes, child)
		cur = child
		curType = typ

		if typ == TypeSymlink && !last {
			// Stop before descending through a symlink that
			// isn't the final component; the caller is
			// responsible for resolving it and re-traversing.
			return nodes, curType, i + 1, nil
		}
	}
	return nodes, curType, len(components), nil
}

// Stat is the backend-agnostic subset of original_source's getStats
// result.
type Stat struct {
	Inode   uint64
	Type    FileType
	NLink   uint32
	Size    int64
	Mode    uint32
	UID     uint32
	GID     uint32
	ATimeNS int64
	MTimeNS int64
	CTimeNS int64
}

// NodeOps is the upward vtable a backend's directory/symlink node
// exposes, matching spec.md §6's node_ops bullet list. Mutators are wired
// to return ErrUnsupported rather than panic (the resolved §9 open
// question), matching original_source's STUBBED entries in
// btrfs/ops.cpp's nodeOperations, but as clean errors instead of aborts.
type NodeOps struct {
	GetStats      func(ctx context.Context) (Stat, error)
	GetLink       func(ctx context.Context, name string) (ino uint64, typ FileType, err error)
	ReadSymlink   func(ctx context.Context) (string, error)
	ReadEntries   func(ctx context.Context, cursor uint64, limit int) (entries []DirEntry, next uint64, err error)
	Mkdir         func(ctx context.Context, name string) error
	Symlink       func(ctx context.Context, name, target string) error
	Link          func(ctx context.Context, name string, target uint64) error
	Unlink        func(ctx context.Context, name string) error
	Chmod         func(ctx context.Context, mode uint32) error
	SetFileFlags  func(ctx context.Context, flags uint32) error
	GetFileFlags  func(ctx context.Context) (uint32, error)
}
