// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/datawire/dlib/dlog"

	"github.com/managarm/blockfs-go/lib/linux"
	"github.com/managarm/blockfs-go/pagecache"
	"github.com/managarm/blockfs-go/vfs"
)

// ManagedInode is C4's in-memory inode object: one per live inode number,
// gating access behind a Ready channel until its on-disk record and
// page-cache handles are initialized, exactly as spec.md §3's "inode
// state" describes and as
// original_source/drivers/libblockfs/src/btrfs/btrfs.hpp's Inode does
// with readyEvent. It implements vfs.Inode so it can be driven through
// the generic vfs.OpenFile operations.
type ManagedInode struct {
	Number ObjID

	ready   chan struct{}
	errOnce error

	fileType vfs.FileType
	size     int64

	backing *pagecache.Backing
	frontal *pagecache.Frontal
	cancel  context.CancelFunc

	bgCtx context.Context //nolint:containedctx // lifetime is tied to the inode's refcount, not a request
}

func (mi *ManagedInode) Ready() <-chan struct{} { return mi.ready }
func (mi *ManagedInode) Type() vfs.FileType     { return mi.fileType }
func (mi *ManagedInode) FileSize() int64        { return mi.size }

func (mi *ManagedInode) ReadAt(p []byte, off int64) (int, error) {
	return mi.frontal.ReadAt(mi.bgCtx, p, off)
}

var _ vfs.Inode = (*ManagedInode)(nil)

// InodeManager is the weak-cached inode table of C4: AccessInode
// rebuilds a ManagedInode from the subvolume on first access and hands
// out additional references on subsequent accesses; ReleaseInode drops a
// reference, tearing the entry down (cancelling its fault-handler
// goroutine) once the count reaches zero. This is the Go translation of
// original_source's accessInode (weak-pointer lookup, construct +
// initiateInode if absent), approximated with explicit refcounting since
// Go has no public weak-pointer hook equivalent to std::weak_ptr.
type InodeManager struct {
	ctx context.Context //nolint:containedctx // root context fault handlers derive from
	sv  *Subvolume

	mu      sync.Mutex
	entries map[ObjID]*inodeEntry
}

type inodeEntry struct {
	refcount int
	inode    *ManagedInode
}

func NewInodeManager(ctx context.Context, sv *Subvolume) *InodeManager {
	return &InodeManager{
		ctx:     ctx,
		sv:      sv,
		entries: make(map[ObjID]*inodeEntry),
	}
}

// AccessInode is the Go analogue of original_source's accessInode.
func (im *InodeManager) AccessInode(inum ObjID) (*ManagedInode, error) {
	im.mu.Lock()
	if e, ok := im.entries[inum]; ok {
		e.refcount++
		im.mu.Unlock()
		return e.inode, nil
	}
	im.mu.Unlock()

	mi, err := im.initiateInode(inum)
	if err != nil {
		return nil, err
	}

	im.mu.Lock()
	defer im.mu.Unlock()
	if e, ok := im.entries[inum]; ok {
		// Lost a race with a concurrent AccessInode; use the
		// winner's entry and let ours be garbage.
		e.refcount++
		mi.cancel()
		return e.inode, nil
	}
	im.entries[inum] = &inodeEntry{refcount: 1, inode: mi}
	return mi, nil
}

// ReleaseInode drops a reference acquired by AccessInode, tearing down
// the entry's fault-handler goroutine once no references remain. This
// resolves spec.md §9's open question about fault-handler lifetime: the
// handler is cancelled on last release rather than leaking indefinitely.
func (im *InodeManager) ReleaseInode(inum ObjID) {
	im.mu.Lock()
	defer im.mu.Unlock()
	e, ok := im.entries[inum]
	if !ok {
		return
	}
	e.refcount--
	if e.refcount <= 0 {
		e.inode.cancel()
		delete(im.entries, inum)
	}
}

// initiateInode is the Go analogue of original_source's initiateInode:
// look up the INODE_ITEM, derive the file type from the mode bits,
// create the managed-memory pair sized to the file, spawn the
// fault-handler goroutine, and signal readiness.
func (im *InodeManager) initiateInode(inum ObjID) (*ManagedInode, error) {
	bare, err := im.sv.AcquireBareInode(inum)
	if err != nil {
		return nil, vfs.Wrap(vfs.ErrFileNotFound, "initiateInode", err)
	}
	defer im.sv.ReleaseBareInode(inum)

	ctx, cancel := context.WithCancel(im.ctx)

	mi := &ManagedInode{
		Number:   inum,
		ready:    make(chan struct{}),
		fileType: deriveFileType(bare.InodeItem.Mode),
		size:     bare.InodeItem.Size,
		cancel:   cancel,
		bgCtx:    ctx,
	}
	mi.backing, mi.frontal = pagecache.New(mi.size)

	if mi.fileType == vfs.TypeRegular {
		go im.manageFileData(ctx, inum, mi)
	}

	close(mi.ready)
	return mi, nil
}

func deriveFileType(mode linux.StatMode) vfs.FileType {
	switch {
	case mode.IsDir():
		return vfs.TypeDirectory
	case mode.IsRegular():
		return vfs.TypeRegular
	case mode&linux.ModeFmt == linux.ModeFmtSymlink:
		return vfs.TypeSymlink
	default:
		return vfs.TypeNone
	}
}

// manageFileData is the Go analogue of original_source's manageFileData:
// an infinite loop servicing page faults against the inode's managed
// memory by walking its EXTENT_DATA items (via the already-decoded
// Subvolume.File machinery, which performs the inline/regular/sparse
// extent dispatch and checksum verification described in spec.md §4.4
// step 2) and acknowledging each fault once its data has been produced.
// The writeback direction is, as in the original, not implemented: this
// module's ext2 backend is the one that implements incidental writes
// (spec.md §1), and btrfs is read-only by design.
func (im *InodeManager) manageFileData(ctx context.Context, inum ObjID, mi *ManagedInode) {
	file, err := im.sv.AcquireFile(inum)
	if err != nil {
		dlog.Errorf(ctx, "manageFileData: inode %v: %v", inum, err)
		return
	}
	defer im.sv.ReleaseFile(inum)

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-mi.backing.Requests():
			if !ok {
				return
			}
			if req.Kind == pagecache.ManageWriteback {
				// STUBBED, as in the original: btrfs is read-only.
				continue
			}
			buf := make([]byte, req.Length)
			n, err := file.ReadAt(buf, req.Offset)
			if err != nil && !errors.Is(err, io.EOF) {
				dlog.Errorf(ctx, "manageFileData: inode %v: read @%v+%v: %v", inum, req.Offset, req.Length, err)
			}
			mi.backing.Ack(mi.frontal, pagecache.ManageInitialize, req.Offset, int64(n), buf[:n])
		}
	}
}
