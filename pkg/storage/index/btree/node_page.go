// Package btree implements a concurrent B+ tree index on top of the
// buffer pool. Nodes live on pages; the types in this file are typed
// views over the raw frame bytes, so reading and writing a node never
// copies the page.
package btree

import (
	"encoding/binary"
	"fmt"

	"stratum/pkg/primitives"
	"stratum/pkg/storage/page"
)

// Page type tags stored in the first header byte.
const (
	pageTypeInvalid  byte = 0x00
	pageTypeInternal byte = 0x01
	pageTypeLeaf     byte = 0x02
)

// Node header layout, shared by both node kinds:
//
//	0      page type
//	1-3    unused
//	4-7    size (number of occupied slots)
//	8-11   max size
//
// Leaves extend the header:
//
//	12-19  next leaf page id
//
// The slot array starts right after the header. Leaf slots are
// (key int64, rid page id int64, rid slot uint32), 20 bytes; internal
// slots are (key int64, child page id int64), 16 bytes. Slot 0 of an
// internal node stores a child pointer only; its key bytes are unused.
const (
	offPageType = 0
	offSize     = 4
	offMaxSize  = 8
	offNextPage = 12

	internalHeaderSize = 12
	leafHeaderSize     = 20

	leafSlotSize     = 20
	internalSlotSize = 16

	// Physical slot capacities for a 4 KiB page. Node views are sized
	// with one overflow slot beyond the configured max, so configured
	// maxima must stay below these.
	leafSlotCapacity     = (page.PageSize - leafHeaderSize) / leafSlotSize
	internalSlotCapacity = (page.PageSize - internalHeaderSize) / internalSlotSize
)

// nodeView reads the header fields common to both node kinds.
type nodeView struct {
	data []byte
}

func asNode(data []byte) nodeView {
	return nodeView{data: data}
}

func (n nodeView) IsLeaf() bool {
	return n.data[offPageType] == pageTypeLeaf
}

func (n nodeView) Size() int {
	return int(binary.LittleEndian.Uint32(n.data[offSize:]))
}

func (n nodeView) SetSize(size int) {
	binary.LittleEndian.PutUint32(n.data[offSize:], uint32(size))
}

// IncreaseSize adjusts the slot count by delta, which may be negative.
func (n nodeView) IncreaseSize(delta int) {
	n.SetSize(n.Size() + delta)
}

func (n nodeView) MaxSize() int {
	return int(binary.LittleEndian.Uint32(n.data[offMaxSize:]))
}

func (n nodeView) setMaxSize(max int) {
	binary.LittleEndian.PutUint32(n.data[offMaxSize:], uint32(max))
}

// MinSize is the occupancy floor for a non-root node.
func (n nodeView) MinSize() int {
	return n.MaxSize() / 2
}

func (n nodeView) checkIndex(index int) {
	if index < 0 || index >= n.Size() {
		panic(fmt.Sprintf("btree: slot %d out of range [0, %d)", index, n.Size()))
	}
}

// headerView is the view over the tree's header page: a single root
// page id at offset 0.
type headerView struct {
	data []byte
}

func asHeader(data []byte) headerView {
	return headerView{data: data}
}

func (h headerView) RootPageID() primitives.PageID {
	return primitives.PageID(binary.LittleEndian.Uint64(h.data[0:]))
}

func (h headerView) SetRootPageID(pid primitives.PageID) {
	binary.LittleEndian.PutUint64(h.data[0:], uint64(pid))
}
