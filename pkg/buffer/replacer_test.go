package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratum/pkg/primitives"
)

func TestReplacer_EvictEmpty(t *testing.T) {
	r := NewLRUKReplacer(4, 2)

	_, ok := r.Evict()
	assert.False(t, ok, "empty replacer has no victim")
	assert.Equal(t, 0, r.Size())
}

func TestReplacer_LessThanKTierWins(t *testing.T) {
	// Frames with fewer than k accesses have +inf backward k-distance and
	// must be evicted before any frame with a full history, oldest first.
	r := NewLRUKReplacer(4, 2)

	r.RecordAccess(0, AccessUnknown)
	r.RecordAccess(0, AccessUnknown) // frame 0 has k accesses
	r.RecordAccess(1, AccessUnknown) // frames 1, 2 have one access each
	r.RecordAccess(2, AccessUnknown)

	fid, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(1), fid, "LRU within the +inf tier")

	fid, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(2), fid)

	fid, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(0), fid, "full-history frame evicts last")
}

func TestReplacer_BackwardKDistance(t *testing.T) {
	// Among frames with full histories the largest k-distance wins, which
	// is the smallest k-th most recent timestamp.
	r := NewLRUKReplacer(4, 2)

	r.RecordAccess(0, AccessUnknown) // ts 1
	r.RecordAccess(1, AccessUnknown) // ts 2
	r.RecordAccess(0, AccessUnknown) // ts 3; frame 0 window = [1,3]
	r.RecordAccess(1, AccessUnknown) // ts 4; frame 1 window = [2,4]
	r.RecordAccess(0, AccessUnknown) // ts 5; frame 0 window = [3,5]

	fid, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(1), fid,
		"frame 1's 2nd most recent access (ts 2) is older than frame 0's (ts 3)")
}

func TestReplacer_EvictionScenarioK2(t *testing.T) {
	// pool of 3, k=2: pages p1..p3 land in frames 0..2, all unpinned.
	// p1 is then touched twice more. The victim for the next allocation
	// must be frame 1 (p2): the +inf tier holds frames 1 and 2, and
	// frame 1 was accessed earliest.
	r := NewLRUKReplacer(3, 2)

	r.RecordAccessAndSetEvictable(0, false, AccessUnknown) // new_page p1
	r.RecordAccessAndSetEvictable(1, false, AccessUnknown) // new_page p2
	r.RecordAccessAndSetEvictable(2, false, AccessUnknown) // new_page p3
	r.SetEvictable(0, true)                                // unpin p1
	r.SetEvictable(1, true)                                // unpin p2
	r.SetEvictable(2, true)                                // unpin p3
	r.RecordAccessAndSetEvictable(0, false, AccessUnknown) // fetch p1
	r.RecordAccessAndSetEvictable(0, false, AccessUnknown) // fetch p1
	r.SetEvictable(0, true)                                // unpin p1
	r.SetEvictable(0, true)                                // unpin p1

	require.Equal(t, 3, r.Size())

	fid, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(1), fid, "p2's frame is the victim")
}

func TestReplacer_NonEvictableSkipped(t *testing.T) {
	r := NewLRUKReplacer(4, 2)

	r.RecordAccess(0, AccessUnknown)
	r.RecordAccess(1, AccessUnknown)
	r.SetEvictable(0, false)

	assert.Equal(t, 1, r.Size())

	fid, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(1), fid, "non-evictable frame 0 must be skipped")

	_, ok = r.Evict()
	assert.False(t, ok, "frame 0 is pinned, nothing left to evict")
}

func TestReplacer_SizeTracksEvictability(t *testing.T) {
	r := NewLRUKReplacer(4, 2)

	r.RecordAccess(0, AccessUnknown)
	r.RecordAccess(1, AccessUnknown)
	assert.Equal(t, 2, r.Size(), "new nodes start evictable")

	r.SetEvictable(0, false)
	assert.Equal(t, 1, r.Size())
	r.SetEvictable(0, false)
	assert.Equal(t, 1, r.Size(), "redundant toggle must not double-count")

	r.SetEvictable(0, true)
	assert.Equal(t, 2, r.Size())
}

func TestReplacer_RemoveUnknownIsNoop(t *testing.T) {
	r := NewLRUKReplacer(4, 2)
	r.Remove(3)
	assert.Equal(t, 0, r.Size())
}

func TestReplacer_RemoveNonEvictablePanics(t *testing.T) {
	r := NewLRUKReplacer(4, 2)
	r.RecordAccess(0, AccessUnknown)
	r.SetEvictable(0, false)

	assert.Panics(t, func() { r.Remove(0) })
}

func TestReplacer_FrameOutOfRangePanics(t *testing.T) {
	r := NewLRUKReplacer(4, 2)

	assert.Panics(t, func() { r.RecordAccess(4, AccessUnknown) })
	assert.Panics(t, func() { r.RecordAccess(-1, AccessUnknown) })
}

func TestReplacer_K1BehavesAsLRU(t *testing.T) {
	r := NewLRUKReplacer(3, 1)

	r.RecordAccess(0, AccessUnknown)
	r.RecordAccess(1, AccessUnknown)
	r.RecordAccess(2, AccessUnknown)
	r.RecordAccess(0, AccessUnknown) // refresh frame 0

	fid, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(1), fid)

	fid, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(2), fid)

	fid, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(0), fid)
}

func TestReplacer_ReaccessKeepsEarliestAccessOrder(t *testing.T) {
	// In the +inf tier the earliest recorded access decides: a second
	// access below k does not make frame 0 younger than frame 1.
	r := NewLRUKReplacer(4, 3)

	r.RecordAccess(0, AccessUnknown) // ts 1
	r.RecordAccess(1, AccessUnknown) // ts 2
	r.RecordAccess(0, AccessUnknown) // ts 3; frame 0 still below k, earliest access ts 1

	fid, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, primitives.FrameID(0), fid)
}
