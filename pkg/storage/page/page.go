// Package page defines the frame type of the buffer pool: a fixed-size
// page buffer together with the metadata the pool needs to manage it.
package page

import (
	"sync"

	"stratum/pkg/primitives"
	"stratum/pkg/storage/disk"
)

// PageSize is the size of each page in bytes (4KB)
const PageSize = disk.PageSize

// Page is one frame of the buffer pool. It owns a page-sized buffer and
// the per-page metadata: the id of the resident page (InvalidPageID when
// the frame is free), the pin count, the dirty flag, and a reader/writer
// latch.
//
// Field discipline: pageID and pinCount are written under the buffer
// pool's mutex. The dirty flag is written under the pool mutex (on unpin
// and flush) or while holding the write latch. The buffer is
// read/written under the latch. The exception is the pool's miss window,
// when the faulting thread owns the frame exclusively and sets up the
// buffer, page id, pin count and dirty flag without the mutex.
type Page struct {
	data     []byte
	pageID   primitives.PageID
	pinCount int32
	isDirty  bool
	latch    sync.RWMutex
}

// New creates an empty frame holding no page.
func New() *Page {
	return &Page{
		data:   make([]byte, PageSize),
		pageID: primitives.InvalidPageID,
	}
}

// ID returns the id of the resident page, or InvalidPageID.
func (p *Page) ID() primitives.PageID {
	return p.pageID
}

// SetID installs the id of the page now resident in this frame.
func (p *Page) SetID(pid primitives.PageID) {
	p.pageID = pid
}

// Data returns the frame's buffer. The slice aliases the frame memory;
// it is valid only while the caller holds a pin.
func (p *Page) Data() []byte {
	return p.data
}

// PinCount returns the number of outstanding pins.
func (p *Page) PinCount() int32 {
	return p.pinCount
}

// IncPin adds a pin.
func (p *Page) IncPin() {
	p.pinCount++
}

// DecPin removes a pin. The caller must know the count is positive.
func (p *Page) DecPin() {
	if p.pinCount <= 0 {
		panic("page: pin count underflow")
	}
	p.pinCount--
}

// SetPinCount overwrites the pin count.
func (p *Page) SetPinCount(n int32) {
	p.pinCount = n
}

// IsDirty reports whether the frame has unwritten modifications.
func (p *Page) IsDirty() bool {
	return p.isDirty
}

// SetDirty sets the dirty flag.
func (p *Page) SetDirty(dirty bool) {
	p.isDirty = dirty
}

// Reset zeroes the buffer and clears the metadata, returning the frame
// to its free state.
func (p *Page) Reset() {
	for i := range p.data {
		p.data[i] = 0
	}
	p.pageID = primitives.InvalidPageID
	p.pinCount = 0
	p.isDirty = false
}

// RLatch acquires the shared latch.
func (p *Page) RLatch() { p.latch.RLock() }

// RUnlatch releases the shared latch.
func (p *Page) RUnlatch() { p.latch.RUnlock() }

// WLatch acquires the exclusive latch.
func (p *Page) WLatch() { p.latch.Lock() }

// WUnlatch releases the exclusive latch.
func (p *Page) WUnlatch() { p.latch.Unlock() }
