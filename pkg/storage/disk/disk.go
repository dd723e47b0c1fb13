// Package disk provides page-granular access to the backing store.
//
// The buffer pool talks to a disk.Manager and nothing else; everything
// above the Manager interface deals in whole pages. Page n lives at byte
// offset n*PageSize, pages are allocated by a monotonically increasing
// counter, and freed page ids are never reused.
package disk

import (
	"stratum/pkg/primitives"
)

const (
	// PageSize is the size of each page in bytes (4KB)
	PageSize = 4096
)

// Manager reads and writes fixed-size pages and allocates page ids.
type Manager interface {
	// ReadPage reads the page with the given id into buf.
	// buf must be exactly PageSize bytes. Reading a page that was never
	// written yields zero bytes, not an error.
	ReadPage(pid primitives.PageID, buf []byte) error

	// WritePage persists data as the content of the page with the given id.
	// data must be exactly PageSize bytes.
	WritePage(pid primitives.PageID, data []byte) error

	// AllocatePage returns the next unused page id.
	AllocatePage() primitives.PageID

	// Close releases the underlying resources. Further reads and writes
	// fail.
	Close() error
}
