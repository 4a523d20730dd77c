// Package pagecache implements, in-process, the request/ack contract that
// the managarm kernel's "managed memory" primitive exposes to a block
// filesystem: a backing handle the inode manager services faults through,
// and a frontal handle a reader blocks against until the overlapping range
// has been initialized. The real kernel object
// (helCreateManagedMemory/submitManageMemory/helUpdateMemory, per
// original_source/drivers/libblockfs/src/btrfs/btrfs.hpp and .cpp) is out
// of scope for this module; this package supplies a faithful in-process
// stand-in so the fault-handler protocol described in spec.md §4.4/§6 is
// independently constructible and testable.
package pagecache

import (
	"context"
	"sync"
)

// ManageKind mirrors the kHelManageInitialize / kHelManageWriteback
// distinction from original_source.
type ManageKind int

const (
	ManageInitialize ManageKind = iota
	ManageWriteback
)

// Request is a single outstanding fault: a range of the managed memory
// object that needs to be serviced before a reader blocked on it may
// proceed.
type Request struct {
	Kind   ManageKind
	Offset int64
	Length int64
}

// region is a currently-serviced (or being-serviced) byte range.
type region struct {
	offset, length int64
}

func (r region) overlaps(offset, length int64) bool {
	return offset < r.offset+r.length && r.offset < offset+length
}

// Backing is the server-side handle: the inode manager's fault handler
// receives Requests and acknowledges them with Ack, which also unblocks
// any Frontal.ReadAt calls waiting on that range.
type Backing struct {
	size int64

	mu      sync.Mutex
	ready   []region
	waiters []chan struct{}

	reqCh chan Request
}

// Frontal is the client-side handle used by vfs.Inode.ReadAt
// implementations to read out of the managed memory once it has been
// initialized.
type Frontal struct {
	b    *Backing
	data []byte
}

// New creates a managed-memory object of the given size, the Go analogue
// of helCreateManagedMemory. The caller must arrange for exactly one
// goroutine to read from Backing.Requests() and eventually Ack every
// request it receives, or Frontal.ReadAt calls into uninitialized ranges
// will block forever.
func New(size int64) (*Backing, *Frontal) {
	b := &Backing{
		size:  size,
		reqCh: make(chan Request, 1),
	}
	f := &Frontal{b: b, data: make([]byte, size)}
	return b, f
}

// Requests delivers fault notifications to the backing (server) side.
func (b *Backing) Requests() <-chan Request {
	return b.reqCh
}

// request enqueues a fault for the given range unconditionally; it does
// not check for coverage by acknowledged regions (ReadAt calls it only
// after isReady has reported the range as not covered).
func (b *Backing) request(kind ManageKind, offset, length int64) {
	b.reqCh <- Request{Kind: kind, Offset: offset, Length: length}
}

// Ack acknowledges that [offset, offset+length) has been initialized (or
// written back), populating it in data and waking any Frontal.ReadAt
// callers blocked on an overlapping range. data must be exactly length
// bytes and is copied in.
func (b *Backing) Ack(f *Frontal, kind ManageKind, offset, length int64, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if kind == ManageInitialize {
		copy(f.data[offset:offset+length], data)
		b.ready = append(b.ready, region{offset: offset, length: length})
	}
	for _, w := range b.waiters {
		close(w)
	}
	b.waiters = nil
}

func (b *Backing) isReady(offset, length int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	// A naive O(n) scan over acknowledged regions; the module expects a
	// small number of outstanding/acked ranges per inode.
	covered := int64(0)
	for _, r := range b.ready {
		if r.overlaps(offset, length) {
			lo := offset
			if r.offset > lo {
				lo = r.offset
			}
			hi := offset + length
			if r.offset+r.length < hi {
				hi = r.offset + r.length
			}
			if hi > lo {
				covered += hi - lo
			}
		}
	}
	return covered >= length
}

func (b *Backing) wait(ctx context.Context) error {
	b.mu.Lock()
	ch := make(chan struct{})
	b.waiters = append(b.waiters, ch)
	b.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadAt blocks until [off, off+len(p)) has been initialized by the
// backing side's fault handler, then copies it out. This is the client
// half of the fault protocol described in spec.md §4.4 step 1.
func (f *Frontal) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	length := int64(len(p))
	if off+length > f.b.size {
		length = f.b.size - off
		if length < 0 {
			length = 0
		}
	}
	for !f.b.isReady(off, length) {
		f.b.request(ManageInitialize, off, length)
		if err := f.b.wait(ctx); err != nil {
			return 0, err
		}
	}
	return copy(p, f.data[off:off+length]), nil
}

// Size returns the size of the managed memory object.
func (f *Frontal) Size() int64 { return f.b.size }
