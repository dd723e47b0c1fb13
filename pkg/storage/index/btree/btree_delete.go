package btree

import (
	"runtime"

	"stratum/pkg/buffer"
	"stratum/pkg/primitives"
)

// Remove deletes the entry for key, if present. An underfull leaf first
// borrows from a sibling and otherwise merges with one; underflow can
// propagate to the root, shrinking the tree by one level when the root
// internal is left with a single child. The descent write-crabs with
// the same ancestor-set rule as Insert, under remove's safety bound:
// a node that cannot underflow releases everything above it.
func (t *BPlusTree) Remove(key int64) error {
	headerGuard, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return err
	}
	header := asHeader(headerGuard.Data())
	root := header.RootPageID()
	if !root.IsValid() {
		headerGuard.Drop()
		return nil
	}

	ctx := &context{rootPageID: root}
	ctx.push(headerGuard)
	defer ctx.releaseWriteSet()
	return t.removeFrom(root, ctx, key)
}

// removeFrom descends to the leaf for key and repairs underflow on the
// way back up. On entry ctx holds the guards of every ancestor a merge
// below might mutate, the header included.
func (t *BPlusTree) removeFrom(pid primitives.PageID, ctx *context, key int64) error {
	curGuard, err := t.bpm.FetchPageWrite(pid)
	if err != nil {
		return err
	}
	defer curGuard.Drop()
	cur := asNode(curGuard.Data())

	// Safe for remove: losing one entry cannot underflow this node.
	// The root runs under looser bounds: a leaf root may shrink to one
	// entry, an internal root to two children, without repair.
	safe := false
	switch {
	case ctx.isRootPage(pid) && cur.IsLeaf():
		safe = cur.Size() > 1
	case ctx.isRootPage(pid):
		safe = cur.Size() > 2
	default:
		safe = cur.Size() > cur.MinSize()
	}
	if safe {
		ctx.releaseWriteSet()
	}

	if cur.IsLeaf() {
		return t.removeFromLeaf(ctx, curGuard, key)
	}

	internal := asInternal(curGuard.Data())
	child := internal.ChildAt(t.upperBoundInternal(internal, key) - 1)

	ctx.push(curGuard)
	err = t.removeFrom(child, ctx, key)
	curGuard = ctx.pop()
	if err != nil {
		return err
	}
	if curGuard.Dropped() {
		return nil
	}

	if ctx.isRootPage(pid) {
		if cur.Size() < 2 {
			// The root internal is down to one child: that child is
			// the tree's new root.
			onlyChild := internal.ChildAt(0)
			asHeader(ctx.top().DataMut()).SetRootPageID(onlyChild)
			t.logger().Debug("root collapsed",
				"old_root_page_id", int64(pid), "new_root_page_id", int64(onlyChild))
			curGuard.Drop()
			return t.freePage(pid)
		}
		return nil
	}
	if cur.Size() >= cur.MinSize() {
		return nil
	}
	return t.repairInternal(ctx, curGuard)
}

// removeFromLeaf deletes key from the leaf behind curGuard and starts
// repair if the leaf underflows.
func (t *BPlusTree) removeFromLeaf(ctx *context, curGuard *buffer.WritePageGuard, key int64) error {
	leaf := asLeaf(curGuard.Data())
	size := leaf.Size()

	lo := 0
	for lo < size && t.cmp(leaf.KeyAt(lo), key) < 0 {
		lo++
	}
	hi := lo
	for hi < size && t.cmp(leaf.KeyAt(hi), key) <= 0 {
		hi++
	}
	if hi == lo {
		return nil
	}
	asLeaf(curGuard.DataMut()).removeRange(lo, hi)
	size = leaf.Size()
	pid := curGuard.PageID()

	if ctx.isRootPage(pid) {
		if size == 0 {
			asHeader(ctx.top().DataMut()).SetRootPageID(primitives.InvalidPageID)
			t.logger().Debug("tree emptied", "old_root_page_id", int64(pid))
			curGuard.Drop()
			return t.freePage(pid)
		}
		return nil
	}
	if size >= leaf.MinSize() {
		return nil
	}
	return t.repairLeaf(ctx, curGuard)
}

// repairLeaf brings the underfull leaf behind curGuard back to MinSize:
// borrow from the left sibling, else from the right, else merge. After
// a merge the parent has lost an entry; the unwinding recursion checks
// it next.
func (t *BPlusTree) repairLeaf(ctx *context, curGuard *buffer.WritePageGuard) error {
	parentGuard := ctx.top()
	parent := asInternal(parentGuard.Data())
	pid := curGuard.PageID()
	index := parent.IndexOfChild(pid)
	leaf := asLeaf(curGuard.Data())
	borrowCnt := leaf.MinSize() - leaf.Size()

	if index > 0 {
		sibGuard, err := t.bpm.FetchPageWrite(parent.ChildAt(index - 1))
		if err != nil {
			return err
		}
		left := asLeaf(sibGuard.DataMut())
		if asLeaf(curGuard.DataMut()).BorrowFromLeft(left, borrowCnt) {
			asInternal(parentGuard.DataMut()).SetKeyAt(index, leaf.KeyAt(0))
			sibGuard.Drop()
			t.logger().Debug("leaf borrowed from left", "page_id", int64(pid))
			return nil
		}
		sibGuard.Drop()
	}
	if index < parent.Size()-1 {
		sibGuard, err := t.bpm.FetchPageWrite(parent.ChildAt(index + 1))
		if err != nil {
			return err
		}
		right := asLeaf(sibGuard.DataMut())
		if asLeaf(curGuard.DataMut()).BorrowFromRight(right, borrowCnt) {
			asInternal(parentGuard.DataMut()).SetKeyAt(index+1, right.KeyAt(0))
			sibGuard.Drop()
			t.logger().Debug("leaf borrowed from right", "page_id", int64(pid))
			return nil
		}
		sibGuard.Drop()
	}

	// No sibling can spare entries: merge. The surviving node is always
	// the left one of the pair, so the leaf chain never points at a
	// freed page.
	if index > 0 {
		sibGuard, err := t.bpm.FetchPageWrite(parent.ChildAt(index - 1))
		if err != nil {
			return err
		}
		asLeaf(sibGuard.DataMut()).MergeFromRight(asLeaf(curGuard.Data()))
		asInternal(parentGuard.DataMut()).RemoveAt(index)
		sibGuard.Drop()
		curGuard.Drop()
		t.logger().Debug("leaf merged into left sibling", "page_id", int64(pid))
		return t.freePage(pid)
	}

	rightPID := parent.ChildAt(index + 1)
	sibGuard, err := t.bpm.FetchPageWrite(rightPID)
	if err != nil {
		return err
	}
	asLeaf(curGuard.DataMut()).MergeFromRight(asLeaf(sibGuard.Data()))
	asInternal(parentGuard.DataMut()).RemoveAt(index + 1)
	sibGuard.Drop()
	t.logger().Debug("right sibling merged into leaf", "page_id", int64(pid))
	return t.freePage(rightPID)
}

// repairInternal is repairLeaf's counterpart for internal nodes. Borrow
// rotates the separator through the parent; merge pulls it down into
// the absorbed node's slot 0.
func (t *BPlusTree) repairInternal(ctx *context, curGuard *buffer.WritePageGuard) error {
	parentGuard := ctx.top()
	parent := asInternal(parentGuard.Data())
	pid := curGuard.PageID()
	index := parent.IndexOfChild(pid)
	cur := asInternal(curGuard.Data())
	borrowCnt := cur.MinSize() - cur.Size()

	if index > 0 {
		sibGuard, err := t.bpm.FetchPageWrite(parent.ChildAt(index - 1))
		if err != nil {
			return err
		}
		left := asInternal(sibGuard.DataMut())
		if asInternal(curGuard.DataMut()).BorrowFromLeft(left, borrowCnt) {
			// The old separator becomes the key of the slot that used
			// to be this node's pure pointer; the first borrowed key
			// moves up.
			curMut := asInternal(curGuard.DataMut())
			curMut.SetKeyAt(borrowCnt, parent.KeyAt(index))
			asInternal(parentGuard.DataMut()).SetKeyAt(index, cur.KeyAt(0))
			sibGuard.Drop()
			t.logger().Debug("internal borrowed from left", "page_id", int64(pid))
			return nil
		}
		sibGuard.Drop()
	}
	if index < parent.Size()-1 {
		sibGuard, err := t.bpm.FetchPageWrite(parent.ChildAt(index + 1))
		if err != nil {
			return err
		}
		right := asInternal(sibGuard.DataMut())
		if asInternal(curGuard.DataMut()).BorrowFromRight(right, borrowCnt) {
			curMut := asInternal(curGuard.DataMut())
			curMut.SetKeyAt(cur.Size()-borrowCnt, parent.KeyAt(index+1))
			asInternal(parentGuard.DataMut()).SetKeyAt(index+1, right.KeyAt(0))
			sibGuard.Drop()
			t.logger().Debug("internal borrowed from right", "page_id", int64(pid))
			return nil
		}
		sibGuard.Drop()
	}

	if index > 0 {
		sibGuard, err := t.bpm.FetchPageWrite(parent.ChildAt(index - 1))
		if err != nil {
			return err
		}
		asInternal(curGuard.DataMut()).SetKeyAt(0, parent.KeyAt(index))
		asInternal(sibGuard.DataMut()).MergeFromRight(cur)
		asInternal(parentGuard.DataMut()).RemoveAt(index)
		sibGuard.Drop()
		curGuard.Drop()
		t.logger().Debug("internal merged into left sibling", "page_id", int64(pid))
		return t.freePage(pid)
	}

	rightPID := parent.ChildAt(index + 1)
	sibGuard, err := t.bpm.FetchPageWrite(rightPID)
	if err != nil {
		return err
	}
	asInternal(sibGuard.DataMut()).SetKeyAt(0, parent.KeyAt(index+1))
	asInternal(curGuard.DataMut()).MergeFromRight(asInternal(sibGuard.Data()))
	asInternal(parentGuard.DataMut()).RemoveAt(index + 1)
	sibGuard.Drop()
	t.logger().Debug("right sibling merged into internal", "page_id", int64(pid))
	return t.freePage(rightPID)
}

// freePage returns a page to the pool once every pin on it is gone. A
// concurrent reader may still hold the page for a moment; the page is
// unreachable from the tree already, so waiting it out is enough.
func (t *BPlusTree) freePage(pid primitives.PageID) error {
	for {
		ok, err := t.bpm.DeletePage(pid)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		runtime.Gosched()
	}
}
