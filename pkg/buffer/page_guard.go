package buffer

import (
	"stratum/pkg/primitives"
	"stratum/pkg/storage/page"
)

// PageGuard is a scoped handle to a pinned page. Dropping the guard
// unpins the page with the guard's dirty flag; Drop is idempotent, so
// an early explicit Drop and a deferred one compose safely.
//
// Guards travel by pointer. Handing the pointer to another owner is the
// transfer; the previous holder must not touch it again after that.
type PageGuard struct {
	bpm     *BufferPoolManager
	page    *page.Page
	isDirty bool
}

// FetchPageBasic fetches pid and wraps the pinned frame in a guard that
// holds no latch.
func (bpm *BufferPoolManager) FetchPageBasic(pid primitives.PageID) (*PageGuard, error) {
	frame, err := bpm.FetchPage(pid)
	if err != nil {
		return nil, err
	}
	return &PageGuard{bpm: bpm, page: frame}, nil
}

// NewPageGuarded allocates a new page and wraps the pinned frame in a
// guard that holds no latch.
func (bpm *BufferPoolManager) NewPageGuarded() (*PageGuard, error) {
	frame, err := bpm.NewPage()
	if err != nil {
		return nil, err
	}
	return &PageGuard{bpm: bpm, page: frame}, nil
}

// PageID returns the guarded page's id, or InvalidPageID after Drop.
func (g *PageGuard) PageID() primitives.PageID {
	if g.page == nil {
		return primitives.InvalidPageID
	}
	return g.page.ID()
}

// Data returns the page bytes for reading.
func (g *PageGuard) Data() []byte {
	return g.page.Data()
}

// DataMut returns the page bytes for writing and marks the guard dirty;
// the flag rides on the unpin when the guard drops.
func (g *PageGuard) DataMut() []byte {
	g.isDirty = true
	return g.page.Data()
}

// IsDirty reports whether this guard will unpin dirty.
func (g *PageGuard) IsDirty() bool {
	return g.isDirty
}

// Dropped reports whether the guard has released its holding.
func (g *PageGuard) Dropped() bool {
	return g.page == nil
}

// Drop releases the pin. Safe to call more than once.
func (g *PageGuard) Drop() {
	if g.bpm != nil {
		g.bpm.UnpinPage(g.page.ID(), g.isDirty)
	}
	g.bpm = nil
	g.page = nil
	g.isDirty = false
}

// ReadPageGuard holds a pinned page under its shared latch. Dropping
// releases the latch first, then the pin.
type ReadPageGuard struct {
	guard PageGuard
}

// FetchPageRead fetches pid, pins it, and acquires the shared latch.
func (bpm *BufferPoolManager) FetchPageRead(pid primitives.PageID) (*ReadPageGuard, error) {
	frame, err := bpm.FetchPage(pid)
	if err != nil {
		return nil, err
	}
	frame.RLatch()
	return &ReadPageGuard{guard: PageGuard{bpm: bpm, page: frame}}, nil
}

// PageID returns the guarded page's id, or InvalidPageID after Drop.
func (g *ReadPageGuard) PageID() primitives.PageID {
	return g.guard.PageID()
}

// Data returns the page bytes for reading.
func (g *ReadPageGuard) Data() []byte {
	return g.guard.Data()
}

// Dropped reports whether the guard has released its holding.
func (g *ReadPageGuard) Dropped() bool {
	return g.guard.page == nil
}

// Drop releases the shared latch and the pin. Safe to call more than once.
func (g *ReadPageGuard) Drop() {
	if g.guard.page != nil {
		g.guard.page.RUnlatch()
	}
	g.guard.Drop()
}

// WritePageGuard holds a pinned page under its exclusive latch. Dropping
// releases the latch first, then the pin.
type WritePageGuard struct {
	guard PageGuard
}

// FetchPageWrite fetches pid, pins it, and acquires the exclusive latch.
func (bpm *BufferPoolManager) FetchPageWrite(pid primitives.PageID) (*WritePageGuard, error) {
	frame, err := bpm.FetchPage(pid)
	if err != nil {
		return nil, err
	}
	frame.WLatch()
	return &WritePageGuard{guard: PageGuard{bpm: bpm, page: frame}}, nil
}

// PageID returns the guarded page's id, or InvalidPageID after Drop.
func (g *WritePageGuard) PageID() primitives.PageID {
	return g.guard.PageID()
}

// Data returns the page bytes for reading.
func (g *WritePageGuard) Data() []byte {
	return g.guard.Data()
}

// DataMut returns the page bytes for writing and marks the guard dirty.
func (g *WritePageGuard) DataMut() []byte {
	return g.guard.DataMut()
}

// Dropped reports whether the guard has released its holding.
func (g *WritePageGuard) Dropped() bool {
	return g.guard.page == nil
}

// Drop releases the exclusive latch and the pin. Safe to call more than once.
func (g *WritePageGuard) Drop() {
	if g.guard.page != nil {
		g.guard.page.WUnlatch()
	}
	g.guard.Drop()
}
