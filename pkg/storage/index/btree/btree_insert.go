package btree

import (
	"stratum/pkg/buffer"
	"stratum/pkg/primitives"
)

// Insert adds a (key, value) pair. It returns false without error when
// the key is already present: keys are unique. The descent write-crabs:
// every ancestor that can still be affected by a split stays latched,
// everything above the last unsafe node is released as soon as the
// current node is known not to split.
func (t *BPlusTree) Insert(key int64, value primitives.RID) (bool, error) {
	headerGuard, err := t.bpm.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, err
	}
	header := asHeader(headerGuard.Data())

	if !header.RootPageID().IsValid() {
		// Empty tree: the first insert creates a leaf root.
		rootGuard, err := t.bpm.NewPageGuarded()
		if err != nil {
			headerGuard.Drop()
			return false, err
		}
		leaf := initLeaf(rootGuard.DataMut(), t.leafMaxSize)
		leaf.InsertAt(0, key, value)
		asHeader(headerGuard.DataMut()).SetRootPageID(rootGuard.PageID())
		t.logger().Debug("root leaf created", "page_id", int64(rootGuard.PageID()))
		rootGuard.Drop()
		headerGuard.Drop()
		return true, nil
	}

	ctx := &context{rootPageID: header.RootPageID()}
	ctx.push(headerGuard)
	defer ctx.releaseWriteSet()
	return t.insertInto(ctx.rootPageID, ctx, key, value)
}

// insertInto descends to the leaf for key, inserts, and splits on the
// way back up. On entry ctx holds the guards of every ancestor that
// might be mutated by a split below, the header included; the guard for
// pid is acquired here.
func (t *BPlusTree) insertInto(pid primitives.PageID, ctx *context, key int64, value primitives.RID) (bool, error) {
	curGuard, err := t.bpm.FetchPageWrite(pid)
	if err != nil {
		return false, err
	}
	defer curGuard.Drop()
	cur := asNode(curGuard.Data())

	// Safe for insert: one more entry still leaves room, so no split
	// can propagate above this node.
	if cur.Size() < cur.MaxSize()-1 {
		ctx.releaseWriteSet()
	}

	var inserted bool
	if cur.IsLeaf() {
		leaf := asLeaf(curGuard.Data())
		index := t.upperBoundLeaf(leaf, key)
		if index > 0 && t.cmp(leaf.KeyAt(index-1), key) == 0 {
			return false, nil
		}
		inserted = asLeaf(curGuard.DataMut()).InsertAt(index, key, value)
	} else {
		internal := asInternal(curGuard.Data())
		index := t.upperBoundInternal(internal, key)
		child := internal.ChildAt(index - 1)

		ctx.push(curGuard)
		inserted, err = t.insertInto(child, ctx, key, value)
		curGuard = ctx.pop()
		if err != nil {
			return false, err
		}
		if curGuard.Dropped() {
			// A safe descendant released the ancestor set; nothing
			// can propagate to this level.
			return inserted, nil
		}
	}

	if !inserted || cur.Size() < cur.MaxSize() {
		return inserted, nil
	}
	if err := t.split(ctx, curGuard); err != nil {
		return false, err
	}
	return true, nil
}

// split divides the overflowing node behind curGuard and installs the
// separator in the parent, growing a new root when the node is the
// root. The parent guard is ctx's top; crab-latching guarantees it is
// still held and has room for one more entry.
func (t *BPlusTree) split(ctx *context, curGuard *buffer.WritePageGuard) error {
	newGuard, err := t.bpm.NewPageGuarded()
	if err != nil {
		return err
	}
	defer newGuard.Drop()

	var sepKey int64
	cur := asNode(curGuard.Data())
	if cur.IsLeaf() {
		curLeaf := asLeaf(curGuard.DataMut())
		newLeaf := initLeaf(newGuard.DataMut(), t.leafMaxSize)
		curLeaf.SplitTo(newLeaf, newGuard.PageID())
		sepKey = newLeaf.KeyAt(0)
		t.logger().Debug("leaf split",
			"page_id", int64(curGuard.PageID()), "new_page_id", int64(newGuard.PageID()))
	} else {
		curInternal := asInternal(curGuard.DataMut())
		newInternal := initInternal(newGuard.DataMut(), t.internalMaxSize)
		curInternal.SplitTo(newInternal)
		// The pair that became the new node's slot 0 carries the
		// separator; within the node that slot is a pure pointer.
		sepKey = newInternal.KeyAt(0)
		t.logger().Debug("internal split",
			"page_id", int64(curGuard.PageID()), "new_page_id", int64(newGuard.PageID()))
	}

	if ctx.isRootPage(curGuard.PageID()) {
		newRootGuard, err := t.bpm.NewPageGuarded()
		if err != nil {
			return err
		}
		defer newRootGuard.Drop()
		newRoot := initInternal(newRootGuard.DataMut(), t.internalMaxSize)
		newRoot.SetChildAt(0, curGuard.PageID())
		newRoot.InsertAt(1, sepKey, newGuard.PageID())
		asHeader(ctx.top().DataMut()).SetRootPageID(newRootGuard.PageID())
		t.logger().Debug("root grown", "new_root_page_id", int64(newRootGuard.PageID()))
		return nil
	}

	parent := asInternal(ctx.top().DataMut())
	parent.InsertAt(t.upperBoundInternal(parent, sepKey), sepKey, newGuard.PageID())
	return nil
}
