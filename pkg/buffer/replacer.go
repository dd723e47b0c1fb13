// Package buffer implements the buffer pool: a bounded cache of disk
// pages with LRU-K eviction, pin/unpin reference counting, and scoped
// page guards that compose pinning with page latches.
package buffer

import (
	"container/list"
	"fmt"
	"sync"

	"stratum/pkg/primitives"
)

// AccessType describes why a frame was touched. The replacer accepts it
// on every access but neither stores it nor uses it in the policy.
type AccessType int

const (
	AccessUnknown AccessType = iota
	AccessLookup
	AccessScan
	AccessIndex
)

// lruKNode tracks the access history of one frame. history holds the
// newest k timestamps, most recent first.
type lruKNode struct {
	frameID     primitives.FrameID
	history     []primitives.Timestamp
	isEvictable bool
}

// addHistory records a timestamp, trimming the history to the newest k.
func (n *lruKNode) addHistory(ts primitives.Timestamp, k int) {
	if len(n.history) >= k {
		n.history = n.history[:k-1]
	}
	n.history = append([]primitives.Timestamp{ts}, n.history...)
}

// oldest returns the oldest timestamp the node still remembers. For a
// node with at least k accesses this is the k-th most recent access, the
// quantity backward k-distance is measured from.
func (n *lruKNode) oldest() primitives.Timestamp {
	return n.history[len(n.history)-1]
}

// LRUKReplacer picks eviction victims by backward k-distance: the time
// since the k-th most recent access, or +inf for frames with fewer than
// k recorded accesses. The victim is the evictable frame with the
// largest distance; ties in the +inf tier go to the frame with the
// earliest recorded access.
//
// Frames with fewer than k accesses live in lessThanK, ordered by their
// earliest recorded access (front = newest); a further access below k
// does not move a node. Scanning the list from the back realizes the
// +inf tier with that tie-break. Frames with k or more accesses live in
// atLeastK, unordered, and are scanned for the smallest remembered
// k-th-most-recent timestamp.
//
// All operations hold the internal mutex. Timestamps come from a logical
// clock that ticks once per recorded access.
type LRUKReplacer struct {
	mu        sync.Mutex
	numFrames int
	k         int
	clock     primitives.Timestamp
	currSize  int
	lessThanK *list.List // of *lruKNode, front = most recently first accessed
	atLeastK  *list.List // of *lruKNode, unordered
	nodes     map[primitives.FrameID]*list.Element
}

// NewLRUKReplacer creates a replacer tracking up to numFrames frames
// with history depth k. k must be at least 1.
func NewLRUKReplacer(numFrames int, k int) *LRUKReplacer {
	if numFrames <= 0 {
		panic(fmt.Sprintf("replacer: numFrames must be positive, got %d", numFrames))
	}
	if k < 1 {
		panic(fmt.Sprintf("replacer: k must be at least 1, got %d", k))
	}
	return &LRUKReplacer{
		numFrames: numFrames,
		k:         k,
		lessThanK: list.New(),
		atLeastK:  list.New(),
		nodes:     make(map[primitives.FrameID]*list.Element),
	}
}

// RecordAccess notes that the frame was accessed now. An unknown frame
// gets a fresh node at the front of the less-than-k list, marked
// evictable. The access that brings a node's history to k entries moves
// it to the at-least-k list.
func (r *LRUKReplacer) RecordAccess(fid primitives.FrameID, _ AccessType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordAccessLocked(fid)
}

// SetEvictable toggles whether the frame may be chosen as a victim.
// Unknown frames are ignored.
func (r *LRUKReplacer) SetEvictable(fid primitives.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setEvictableLocked(fid, evictable)
}

// RecordAccessAndSetEvictable performs RecordAccess and SetEvictable in
// one critical section. The buffer pool uses this on every pin so no
// eviction can slip between the two steps.
func (r *LRUKReplacer) RecordAccessAndSetEvictable(fid primitives.FrameID, evictable bool, _ AccessType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordAccessLocked(fid)
	r.setEvictableLocked(fid, evictable)
}

// Remove forgets a frame's history entirely. The frame must be evictable
// if it is known; removing an unknown frame is a no-op.
func (r *LRUKReplacer) Remove(fid primitives.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkFrame(fid)
	elem, ok := r.nodes[fid]
	if !ok {
		return
	}
	node := elem.Value.(*lruKNode)
	if !node.isEvictable {
		panic(fmt.Sprintf("replacer: removing non-evictable frame %d", fid))
	}
	if len(node.history) >= r.k {
		r.atLeastK.Remove(elem)
	} else {
		r.lessThanK.Remove(elem)
	}
	delete(r.nodes, fid)
	r.currSize--
}

// Evict selects the victim with the largest backward k-distance, removes
// it from the replacer, and returns its frame id. The second result is
// false when no frame is evictable.
func (r *LRUKReplacer) Evict() (primitives.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currSize <= 0 {
		return primitives.InvalidFrameID, false
	}

	// +inf tier first: back of the less-than-k list is the least
	// recently used frame with fewer than k accesses.
	for elem := r.lessThanK.Back(); elem != nil; elem = elem.Prev() {
		node := elem.Value.(*lruKNode)
		if !node.isEvictable {
			continue
		}
		r.lessThanK.Remove(elem)
		delete(r.nodes, node.frameID)
		r.currSize--
		return node.frameID, true
	}

	// Otherwise the largest k-distance wins: the smallest remembered
	// k-th-most-recent timestamp.
	var victim *list.Element
	for elem := r.atLeastK.Front(); elem != nil; elem = elem.Next() {
		node := elem.Value.(*lruKNode)
		if !node.isEvictable {
			continue
		}
		if victim == nil || node.oldest() < victim.Value.(*lruKNode).oldest() {
			victim = elem
		}
	}
	if victim == nil {
		return primitives.InvalidFrameID, false
	}
	node := victim.Value.(*lruKNode)
	r.atLeastK.Remove(victim)
	delete(r.nodes, node.frameID)
	r.currSize--
	return node.frameID, true
}

// Size returns the number of evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}

func (r *LRUKReplacer) checkFrame(fid primitives.FrameID) {
	if int(fid) >= r.numFrames || fid < 0 {
		panic(fmt.Sprintf("replacer: frame id %d out of range [0, %d)", fid, r.numFrames))
	}
}

func (r *LRUKReplacer) recordAccessLocked(fid primitives.FrameID) {
	r.checkFrame(fid)
	r.clock++
	ts := r.clock

	elem, ok := r.nodes[fid]
	if !ok {
		node := &lruKNode{frameID: fid, isEvictable: true}
		node.addHistory(ts, r.k)
		if len(node.history) >= r.k {
			r.nodes[fid] = r.atLeastK.PushBack(node)
		} else {
			r.nodes[fid] = r.lessThanK.PushFront(node)
		}
		r.currSize++
		return
	}

	node := elem.Value.(*lruKNode)
	wasLess := len(node.history) < r.k
	node.addHistory(ts, r.k)
	if !wasLess {
		// Already in the >= k list; the history update is enough.
		return
	}
	if len(node.history) >= r.k {
		// This access completes the window: promote to the >= k list.
		r.lessThanK.Remove(elem)
		r.nodes[fid] = r.atLeastK.PushBack(node)
	}
	// Below k the node keeps its place, so lessThanK stays ordered by
	// each node's earliest recorded access.
}

func (r *LRUKReplacer) setEvictableLocked(fid primitives.FrameID, evictable bool) {
	r.checkFrame(fid)
	elem, ok := r.nodes[fid]
	if !ok {
		return
	}
	node := elem.Value.(*lruKNode)
	if node.isEvictable != evictable {
		node.isEvictable = evictable
		if evictable {
			r.currSize++
		} else {
			r.currSize--
		}
	}
}
