package btree

import (
	"encoding/binary"

	"stratum/pkg/primitives"
)

// leafView is the typed view over a leaf node page. Slots hold
// (key, RID) pairs in key order; leaves chain left to right through the
// next page id in the header.
type leafView struct {
	nodeView
}

func asLeaf(data []byte) leafView {
	return leafView{nodeView{data: data}}
}

// initLeaf stamps a zeroed page as an empty leaf.
func initLeaf(data []byte, maxSize int) leafView {
	l := asLeaf(data)
	l.data[offPageType] = pageTypeLeaf
	l.SetSize(0)
	l.setMaxSize(maxSize)
	l.SetNextPageID(primitives.InvalidPageID)
	return l
}

func (l leafView) NextPageID() primitives.PageID {
	return primitives.PageID(binary.LittleEndian.Uint64(l.data[offNextPage:]))
}

func (l leafView) SetNextPageID(pid primitives.PageID) {
	binary.LittleEndian.PutUint64(l.data[offNextPage:], uint64(pid))
}

func (l leafView) slot(index int) []byte {
	off := leafHeaderSize + index*leafSlotSize
	return l.data[off : off+leafSlotSize]
}

func (l leafView) KeyAt(index int) int64 {
	l.checkIndex(index)
	return int64(binary.LittleEndian.Uint64(l.slot(index)))
}

func (l leafView) ValueAt(index int) primitives.RID {
	l.checkIndex(index)
	s := l.slot(index)
	return primitives.RID{
		PageID:  primitives.PageID(binary.LittleEndian.Uint64(s[8:])),
		SlotNum: primitives.SlotNumber(binary.LittleEndian.Uint32(s[16:])),
	}
}

// PairAt returns the key and value stored at index.
func (l leafView) PairAt(index int) (int64, primitives.RID) {
	return l.KeyAt(index), l.ValueAt(index)
}

func (l leafView) setPair(index int, key int64, value primitives.RID) {
	s := l.slot(index)
	binary.LittleEndian.PutUint64(s, uint64(key))
	binary.LittleEndian.PutUint64(s[8:], uint64(value.PageID))
	binary.LittleEndian.PutUint32(s[16:], uint32(value.SlotNum))
}

// SetKeyAt overwrites the key at index, keeping its value.
func (l leafView) SetKeyAt(index int, key int64) {
	l.checkIndex(index)
	binary.LittleEndian.PutUint64(l.slot(index), uint64(key))
}

// InsertAt inserts a pair at index, shifting later slots right. It
// fails when the node is full or the index is out of range.
func (l leafView) InsertAt(index int, key int64, value primitives.RID) bool {
	size := l.Size()
	if size >= l.MaxSize() || index < 0 || index > size {
		return false
	}
	for i := size; i > index; i-- {
		copy(l.slot(i), l.slot(i-1))
	}
	l.setPair(index, key, value)
	l.IncreaseSize(1)
	return true
}

// RemoveAt deletes the pair at index, shifting later slots left.
func (l leafView) RemoveAt(index int) {
	l.checkIndex(index)
	size := l.Size()
	for i := index; i < size-1; i++ {
		copy(l.slot(i), l.slot(i+1))
	}
	l.IncreaseSize(-1)
}

// removeRange deletes the pairs in [lo, hi).
func (l leafView) removeRange(lo, hi int) {
	size := l.Size()
	for i := 0; hi+i < size; i++ {
		copy(l.slot(lo+i), l.slot(hi+i))
	}
	l.IncreaseSize(lo - hi)
}

// SplitTo moves the upper half of the pairs into dst and links dst into
// the leaf chain after this page. dstPageID is dst's own page id.
func (l leafView) SplitTo(dst leafView, dstPageID primitives.PageID) {
	end := l.Size()
	start := end >> 1
	for i := start; i < end; i++ {
		copy(dst.slot(i-start), l.slot(i))
	}
	l.SetSize(start)
	dst.SetSize(end - start)
	dst.SetNextPageID(l.NextPageID())
	l.SetNextPageID(dstPageID)
}

// BorrowFromLeft moves the last borrowCnt pairs of left to the front of
// this node, leaving this node at exactly MinSize. It fails when left
// cannot spare that many entries.
func (l leafView) BorrowFromLeft(left leafView, borrowCnt int) bool {
	if left.Size() < borrowCnt+l.MinSize() {
		return false
	}
	size := l.Size()
	for i := size - 1; i >= 0; i-- {
		copy(l.slot(i+borrowCnt), l.slot(i))
	}
	donorStart := left.Size() - borrowCnt
	for i := 0; i < borrowCnt; i++ {
		copy(l.slot(i), left.slot(donorStart+i))
	}
	l.SetSize(size + borrowCnt)
	left.SetSize(donorStart)
	return true
}

// BorrowFromRight moves the first borrowCnt pairs of right to the end
// of this node. It fails when right cannot spare that many entries.
func (l leafView) BorrowFromRight(right leafView, borrowCnt int) bool {
	if right.Size() < borrowCnt+l.MinSize() {
		return false
	}
	size := l.Size()
	for i := 0; i < borrowCnt; i++ {
		copy(l.slot(size+i), right.slot(i))
	}
	rightSize := right.Size()
	for i := borrowCnt; i < rightSize; i++ {
		copy(right.slot(i-borrowCnt), right.slot(i))
	}
	l.SetSize(size + borrowCnt)
	right.SetSize(rightSize - borrowCnt)
	return true
}

// MergeFromRight appends every pair of right into this node and takes
// over right's chain link. The caller frees right's page afterwards.
func (l leafView) MergeFromRight(right leafView) {
	size := l.Size()
	rightSize := right.Size()
	for i := 0; i < rightSize; i++ {
		copy(l.slot(size+i), right.slot(i))
	}
	l.SetSize(size + rightSize)
	l.SetNextPageID(right.NextPageID())
}
