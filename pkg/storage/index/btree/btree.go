package btree

import (
	"fmt"
	"log/slog"

	"stratum/pkg/buffer"
	"stratum/pkg/logging"
	"stratum/pkg/primitives"
)

// KeyComparator orders keys. It returns a negative value when a < b,
// zero when equal, positive when a > b.
type KeyComparator func(a, b int64) int

// BPlusTree is a concurrent B+ tree with unique int64 keys and RID
// values, stored entirely in buffer pool pages. One distinguished
// header page holds the root page id; it is latched like any other
// page, which is what makes root changes safe under concurrency.
//
// Latching follows the crab protocol: descents hold a child's latch
// before releasing the parent's, writers keep the ancestor set only
// while the current node might split or underflow.
type BPlusTree struct {
	name            string
	bpm             *buffer.BufferPoolManager
	cmp             KeyComparator
	leafMaxSize     int // configured max + 1: the extra slot holds the overflow entry during a split
	internalMaxSize int
	headerPageID    primitives.PageID
}

// New creates a B+ tree over an already-allocated header page and
// initializes it empty. leafMaxSize and internalMaxSize are the logical
// node capacities; a node splits while holding one entry more.
func New(name string, headerPageID primitives.PageID, bpm *buffer.BufferPoolManager,
	cmp KeyComparator, leafMaxSize, internalMaxSize int) (*BPlusTree, error) {
	if cmp == nil {
		return nil, fmt.Errorf("key comparator is required")
	}
	if leafMaxSize < 2 || internalMaxSize < 3 {
		return nil, fmt.Errorf("node capacities too small: leaf %d, internal %d", leafMaxSize, internalMaxSize)
	}
	if leafMaxSize+1 > leafSlotCapacity || internalMaxSize+1 > internalSlotCapacity {
		return nil, fmt.Errorf("node capacities exceed the page: leaf %d (max %d), internal %d (max %d)",
			leafMaxSize, leafSlotCapacity-1, internalMaxSize, internalSlotCapacity-1)
	}

	t := &BPlusTree{
		name:            name,
		bpm:             bpm,
		cmp:             cmp,
		leafMaxSize:     leafMaxSize + 1,
		internalMaxSize: internalMaxSize + 1,
		headerPageID:    headerPageID,
	}

	guard, err := bpm.FetchPageWrite(headerPageID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize header page: %w", err)
	}
	asHeader(guard.DataMut()).SetRootPageID(primitives.InvalidPageID)
	guard.Drop()
	return t, nil
}

// IsEmpty reports whether the tree holds no entries.
func (t *BPlusTree) IsEmpty() (bool, error) {
	guard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return false, err
	}
	defer guard.Drop()
	return !asHeader(guard.Data()).RootPageID().IsValid(), nil
}

// RootPageID returns the current root page id, InvalidPageID when empty.
func (t *BPlusTree) RootPageID() (primitives.PageID, error) {
	guard, err := t.bpm.FetchPageRead(t.headerPageID)
	if err != nil {
		return primitives.InvalidPageID, err
	}
	defer guard.Drop()
	return asHeader(guard.Data()).RootPageID(), nil
}

// GetValue returns every value stored under key. Inserts keep keys
// unique, so the result has at most one element; reads still collect
// all matches rather than assuming it.
func (t *BPlusTree) GetValue(key int64) ([]primitives.RID, error) {
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
		// The child latch is held: ancestors can go.
		releaseAll()
		readSet = readSet[:0]

		node := asNode(guard.Data())
		if node.IsLeaf() {
			leaf := asLeaf(guard.Data())
			var result []primitives.RID
			for i := 0; i < leaf.Size(); i++ {
				if t.cmp(leaf.KeyAt(i), key) == 0 {
					result = append(result, leaf.ValueAt(i))
				}
			}
			guard.Drop()
			return result, nil
		}

		internal := asInternal(guard.Data())
		pid = internal.ChildAt(t.upperBoundInternal(internal, key) - 1)
		readSet = append(readSet, guard)
	}
}

// upperBoundLeaf returns the first slot whose key is greater than key.
func (t *BPlusTree) upperBoundLeaf(leaf leafView, key int64) int {
	index := 0
	for index < leaf.Size() && t.cmp(leaf.KeyAt(index), key) <= 0 {
		index++
	}
	return index
}

// upperBoundInternal returns the first separator slot whose key is
// greater than key. Slot 0 has no key, so the scan starts at 1; the
// child to descend into is always at the result minus one.
func (t *BPlusTree) upperBoundInternal(internal internalView, key int64) int {
	index := 1
	for index < internal.Size() && t.cmp(internal.KeyAt(index), key) <= 0 {
		index++
	}
	return index
}

// context carries the state of one tree operation: the root page id as
// of the descent, and the stack of write guards on the path. The stack
// is the only upward reference; nodes store no parent pointers.
type context struct {
	rootPageID primitives.PageID
	writeSet   []*buffer.WritePageGuard
}

func (c *context) isRootPage(pid primitives.PageID) bool {
	return pid == c.rootPageID
}

// releaseWriteSet drops every held ancestor guard. The slots stay in
// place so the unwinding recursion can still pop its own (now dropped)
// entries; guard Drop is idempotent.
func (c *context) releaseWriteSet() {
	for _, g := range c.writeSet {
		g.Drop()
	}
}

// push/pop keep the guard stack aligned with the recursion.
func (c *context) push(g *buffer.WritePageGuard) {
	c.writeSet = append(c.writeSet, g)
}

func (c *context) pop() *buffer.WritePageGuard {
	g := c.writeSet[len(c.writeSet)-1]
	c.writeSet = c.writeSet[:len(c.writeSet)-1]
	return g
}

// top returns the nearest held ancestor guard.
func (c *context) top() *buffer.WritePageGuard {
	return c.writeSet[len(c.writeSet)-1]
}

func (t *BPlusTree) logger() *slog.Logger {
	return logging.WithIndex(t.name)
}
