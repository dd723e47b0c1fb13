package btree

import (
	"encoding/binary"

	"stratum/pkg/primitives"
)

// internalView is the typed view over an internal node page. A node of
// size n stores n child pointers and n-1 separator keys: slot 0 holds a
// child pointer only, and for i >= 1 every key in the subtree under
// slot i is >= KeyAt(i).
type internalView struct {
	nodeView
}

func asInternal(data []byte) internalView {
	return internalView{nodeView{data: data}}
}

// initInternal stamps a zeroed page as an internal node with a single
// (empty) child slot.
func initInternal(data []byte, maxSize int) internalView {
	n := asInternal(data)
	n.data[offPageType] = pageTypeInternal
	n.SetSize(1)
	n.setMaxSize(maxSize)
	return n
}

func (n internalView) slot(index int) []byte {
	off := internalHeaderSize + index*internalSlotSize
	return n.data[off : off+internalSlotSize]
}

func (n internalView) KeyAt(index int) int64 {
	n.checkIndex(index)
	return int64(binary.LittleEndian.Uint64(n.slot(index)))
}

func (n internalView) ChildAt(index int) primitives.PageID {
	n.checkIndex(index)
	return primitives.PageID(binary.LittleEndian.Uint64(n.slot(index)[8:]))
}

// SetKeyAt overwrites the separator key at index.
func (n internalView) SetKeyAt(index int, key int64) {
	n.checkIndex(index)
	binary.LittleEndian.PutUint64(n.slot(index), uint64(key))
}

// SetChildAt overwrites the child pointer at index.
func (n internalView) SetChildAt(index int, pid primitives.PageID) {
	binary.LittleEndian.PutUint64(n.slot(index)[8:], uint64(pid))
}

// IndexOfChild returns the slot whose pointer is pid, or -1.
func (n internalView) IndexOfChild(pid primitives.PageID) int {
	for i := 0; i < n.Size(); i++ {
		if n.ChildAt(i) == pid {
			return i
		}
	}
	return -1
}

// InsertAt inserts a (key, child) pair at index, shifting later slots
// right. It fails when the node is full or the index is out of range.
func (n internalView) InsertAt(index int, key int64, child primitives.PageID) bool {
	size := n.Size()
	if size >= n.MaxSize() || index < 0 || index > size {
		return false
	}
	for i := size; i > index; i-- {
		copy(n.slot(i), n.slot(i-1))
	}
	binary.LittleEndian.PutUint64(n.slot(index), uint64(key))
	binary.LittleEndian.PutUint64(n.slot(index)[8:], uint64(child))
	n.IncreaseSize(1)
	return true
}

// RemoveAt deletes the pair at index, shifting later slots left.
func (n internalView) RemoveAt(index int) {
	n.checkIndex(index)
	size := n.Size()
	for i := index; i < size-1; i++ {
		copy(n.slot(i), n.slot(i+1))
	}
	n.IncreaseSize(-1)
}

// SplitTo moves the upper half of the slots into dst. The key of the
// pair that becomes dst's slot 0 is the separator the caller promotes;
// within dst that slot acts as a pure pointer again.
func (n internalView) SplitTo(dst internalView) {
	end := n.Size()
	start := end >> 1
	for i := start; i < end; i++ {
		copy(dst.slot(i-start), n.slot(i))
	}
	n.SetSize(start)
	dst.SetSize(end - start)
}

// BorrowFromLeft moves the last borrowCnt slots of left to the front of
// this node. The caller patches the rotated separators afterwards. It
// fails when left cannot spare that many slots.
func (n internalView) BorrowFromLeft(left internalView, borrowCnt int) bool {
	if left.Size() < borrowCnt+n.MinSize() {
		return false
	}
	size := n.Size()
	for i := size - 1; i >= 0; i-- {
		copy(n.slot(i+borrowCnt), n.slot(i))
	}
	donorStart := left.Size() - borrowCnt
	for i := 0; i < borrowCnt; i++ {
		copy(n.slot(i), left.slot(donorStart+i))
	}
	n.SetSize(size + borrowCnt)
	left.SetSize(donorStart)
	return true
}

// BorrowFromRight moves the first borrowCnt slots of right to the end
// of this node. The caller patches the rotated separators afterwards.
// It fails when right cannot spare that many slots.
func (n internalView) BorrowFromRight(right internalView, borrowCnt int) bool {
	if right.Size() < borrowCnt+n.MinSize() {
		return false
	}
	size := n.Size()
	for i := 0; i < borrowCnt; i++ {
		copy(n.slot(size+i), right.slot(i))
	}
	rightSize := right.Size()
	for i := borrowCnt; i < rightSize; i++ {
		copy(right.slot(i-borrowCnt), right.slot(i))
	}
	n.SetSize(size + borrowCnt)
	right.SetSize(rightSize - borrowCnt)
	return true
}

// MergeFromRight appends every slot of right into this node. The caller
// pulls the parent separator down into right's slot 0 first and frees
// right's page afterwards.
func (n internalView) MergeFromRight(right internalView) {
	size := n.Size()
	rightSize := right.Size()
	for i := 0; i < rightSize; i++ {
		copy(n.slot(size+i), right.slot(i))
	}
	n.SetSize(size + rightSize)
}
