package btree

import (
	"stratum/pkg/buffer"
	"stratum/pkg/primitives"
)

// Iterator walks the leaf chain left to right. It anchors on one leaf
// at a time: a read guard on the current leaf plus a slot index. Within
// a leaf the view is consistent; between leaf hops concurrent
// structural changes may be observed.
//
// Drop the iterator when done; an iterator left at a leaf pins it.
type Iterator struct {
	bpm   *buffer.BufferPoolManager
	guard *buffer.ReadPageGuard
	index int
}

// Begin positions an iterator at the first entry of the leftmost leaf.
// On an empty tree the iterator starts exhausted.
func (t *BPlusTree) Begin() (*Iterator, error) {
	guard, err := t.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	return &Iterator{bpm: t.bpm, guard: guard}, nil
}

// BeginAt positions an iterator at the first entry with a key >= key.
func (t *BPlusTree) BeginAt(key int64) (*Iterator, error) {
	headerGuard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, err
	}

	readSet := []*buffer.ReadPageGuard{headerGuard}
	releaseAll := func() {
		for _, g := range readSet {
			g.Drop()
		}
	}

	pid := asHeader(headerGuard.Data()).RootPageID()
	for {
		if !pid.IsValid() {
			releaseAll()
			return &Iterator{bpm: t.bpm}, nil
		}
		guard, err := t.bpm.FetchPageRead(pid)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releaseAll()
		readSet = readSet[:0]

		node := asNode(guard.Data())
		if node.IsLeaf() {
			leaf := asLeaf(guard.Data())
			index := 0
			for index < leaf.Size() && t.cmp(leaf.KeyAt(index), key) < 0 {
				index++
			}
			if index == leaf.Size() && leaf.NextPageID().IsValid() {
				next, err := t.bpm.FetchPageRead(leaf.NextPageID())
				guard.Drop()
				if err != nil {
					return nil, err
				}
				return &Iterator{bpm: t.bpm, guard: next}, nil
			}
			return &Iterator{bpm: t.bpm, guard: guard, index: index}, nil
		}

		internal := asInternal(guard.Data())
		pid = internal.ChildAt(t.upperBoundInternal(internal, key) - 1)
		readSet = append(readSet, guard)
	}
}

// End positions an iterator past the last entry of the rightmost leaf.
func (t *BPlusTree) End() (*Iterator, error) {
	headerGuard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, err
	}

	readSet := []*buffer.ReadPageGuard{headerGuard}
	releaseAll := func() {
		for _, g := range readSet {
			g.Drop()
		}
	}

	pid := asHeader(headerGuard.Data()).RootPageID()
	for {
		if !pid.IsValid() {
			releaseAll()
			return &Iterator{bpm: t.bpm}, nil
		}
		guard, err := t.bpm.FetchPageRead(pid)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releaseAll()
		readSet = readSet[:0]

		node := asNode(guard.Data())
		if node.IsLeaf() {
			return &Iterator{bpm: t.bpm, guard: guard, index: node.Size()}, nil
		}
		internal := asInternal(guard.Data())
		pid = internal.ChildAt(internal.Size() - 1)
		readSet = append(readSet, guard)
	}
}

// leftmostLeaf read-crabs down slot 0 pointers and returns a read guard
// on the leftmost leaf, or nil for an empty tree.
func (t *BPlusTree) leftmostLeaf() (*buffer.ReadPageGuard, error) {
	headerGuard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, err
	}

	readSet := []*buffer.ReadPageGuard{headerGuard}
	releaseAll := func() {
		for _, g := range readSet {
			g.Drop()
		}
	}

	pid := asHeader(headerGuard.Data()).RootPageID()
	for {
		if !pid.IsValid() {
			releaseAll()
			return nil, nil
		}
		guard, err := t.bpm.FetchPageRead(pid)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releaseAll()
		readSet = readSet[:0]

		if asNode(guard.Data()).IsLeaf() {
			return guard, nil
		}
		pid = asInternal(guard.Data()).ChildAt(0)
		readSet = append(readSet, guard)
	}
}

// IsEnd reports whether the iterator is past the last entry.
func (it *Iterator) IsEnd() bool {
	if it.guard == nil {
		return true
	}
	leaf := asLeaf(it.guard.Data())
	return it.index == leaf.Size() && !leaf.NextPageID().IsValid()
}

// Entry returns the key and value at the current position.
func (it *Iterator) Entry() (int64, primitives.RID) {
	leaf := asLeaf(it.guard.Data())
	return leaf.PairAt(it.index)
}

// Key returns the key at the current position.
func (it *Iterator) Key() int64 {
	return asLeaf(it.guard.Data()).KeyAt(it.index)
}

// Value returns the value at the current position.
func (it *Iterator) Value() primitives.RID {
	return asLeaf(it.guard.Data()).ValueAt(it.index)
}

// Next advances one entry, hopping to the next leaf when the current
// one is exhausted. The next leaf is latched before the current one is
// released, so the walk never observes a half-linked chain.
func (it *Iterator) Next() error {
	it.index++
	leaf := asLeaf(it.guard.Data())
	if it.index < leaf.Size() {
		return nil
	}
	nextPID := leaf.NextPageID()
	if !nextPID.IsValid() {
		return nil
	}
	next, err := it.bpm.FetchPageRead(nextPID)
	if err != nil {
		return err
	}
	it.guard.Drop()
	it.guard = next
	it.index = 0
	return nil
}

// Drop releases the iterator's hold on its leaf. Safe to call more
// than once.
func (it *Iterator) Drop() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
	}
}
