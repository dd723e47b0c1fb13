package disk

import (
	"fmt"
	"sync"

	"stratum/pkg/primitives"
)

// MemManager is an in-memory Manager used by tests. It keeps every
// written page in a map and can be told to fail the next reads or
// writes, which makes I/O error propagation testable without touching
// the filesystem.
type MemManager struct {
	mutex    sync.Mutex
	pages    map[primitives.PageID][]byte
	nextPage primitives.PageID
	closed   bool

	// failure injection: when > 0, the next N calls fail and decrement
	failReads  int
	failWrites int

	// write order, for asserting flush-before-read properties
	writeLog []primitives.PageID
}

// NewMemManager creates an empty in-memory page store.
func NewMemManager() *MemManager {
	return &MemManager{
		pages: make(map[primitives.PageID][]byte),
	}
}

// ReadPage copies the stored page into buf; unknown pages read as zeroes.
func (mm *MemManager) ReadPage(pid primitives.PageID, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("read buffer must be %d bytes, got %d", PageSize, len(buf))
	}

	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	if mm.closed {
		return fmt.Errorf("manager is closed")
	}
	if mm.failReads > 0 {
		mm.failReads--
		return fmt.Errorf("injected read failure for %v", pid)
	}

	stored, ok := mm.pages[pid]
	if !ok {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	copy(buf, stored)
	return nil
}

// WritePage stores a copy of data as the content of page pid.
func (mm *MemManager) WritePage(pid primitives.PageID, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("page data must be %d bytes, got %d", PageSize, len(data))
	}

	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	if mm.closed {
		return fmt.Errorf("manager is closed")
	}
	if mm.failWrites > 0 {
		mm.failWrites--
		return fmt.Errorf("injected write failure for %v", pid)
	}

	stored := make([]byte, PageSize)
	copy(stored, data)
	mm.pages[pid] = stored
	mm.writeLog = append(mm.writeLog, pid)
	return nil
}

// AllocatePage returns the next unused page id.
func (mm *MemManager) AllocatePage() primitives.PageID {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	pid := mm.nextPage
	mm.nextPage++
	return pid
}

// Close drops all stored pages.
func (mm *MemManager) Close() error {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	mm.closed = true
	mm.pages = nil
	return nil
}

// FailNextReads makes the next n ReadPage calls return an error.
func (mm *MemManager) FailNextReads(n int) {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()
	mm.failReads = n
}

// FailNextWrites makes the next n WritePage calls return an error.
func (mm *MemManager) FailNextWrites(n int) {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()
	mm.failWrites = n
}

// WriteLog returns the page ids of every WritePage call, in order.
func (mm *MemManager) WriteLog() []primitives.PageID {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	log := make([]primitives.PageID, len(mm.writeLog))
	copy(log, mm.writeLog)
	return log
}

// PageContent returns a copy of the stored bytes for pid, or nil if the
// page was never written.
func (mm *MemManager) PageContent(pid primitives.PageID) []byte {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	stored, ok := mm.pages[pid]
	if !ok {
		return nil
	}
	out := make([]byte, PageSize)
	copy(out, stored)
	return out
}
