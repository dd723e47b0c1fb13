package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageGuard_DropUnpins(t *testing.T) {
	bpm, _ := newTestPool(t, 2, 2)

	g, err := bpm.NewPageGuarded()
	require.NoError(t, err)
	pid := g.PageID()

	g.Drop()
	assert.False(t, bpm.UnpinPage(pid, false), "pin already released by Drop")
}

func TestPageGuard_DropIsIdempotent(t *testing.T) {
	bpm, _ := newTestPool(t, 2, 2)

	g, err := bpm.NewPageGuarded()
	require.NoError(t, err)
	pid := g.PageID()
	g.Drop()
	g.Drop()

	// The FetchPage pin must be the only one left.
	f, err := bpm.FetchPage(pid)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.PinCount())
	require.True(t, bpm.UnpinPage(pid, false))
}

func TestPageGuard_DataMutMarksDirty(t *testing.T) {
	bpm, mm := newTestPool(t, 1, 2)

	g, err := bpm.NewPageGuarded()
	require.NoError(t, err)
	pid := g.PageID()
	copy(g.DataMut(), []byte("via guard"))
	assert.True(t, g.IsDirty())
	g.Drop()

	// Evict; the guarded write must reach disk.
	p, err := bpm.NewPage()
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(p.ID(), false))

	stored := mm.PageContent(pid)
	require.NotNil(t, stored, "dirty guard write must be flushed on eviction")
	assert.Equal(t, []byte("via guard"), stored[:9])
}

func TestReadPageGuard_HoldsSharedLatch(t *testing.T) {
	bpm, _ := newTestPool(t, 2, 2)

	g, err := bpm.NewPageGuarded()
	require.NoError(t, err)
	pid := g.PageID()
	g.Drop()

	r1, err := bpm.FetchPageRead(pid)
	require.NoError(t, err)
	r2, err := bpm.FetchPageRead(pid)
	require.NoError(t, err, "shared latch admits concurrent readers")

	writerIn := make(chan struct{})
	go func() {
		w, err := bpm.FetchPageWrite(pid)
		if err != nil {
			panic(err)
		}
		close(writerIn)
		w.Drop()
	}()

	select {
	case <-writerIn:
		t.Fatal("writer should block while read guards are held")
	default:
	}

	r1.Drop()
	r2.Drop()
	<-writerIn
}

func TestWritePageGuard_Exclusive(t *testing.T) {
	bpm, _ := newTestPool(t, 2, 2)

	g, err := bpm.NewPageGuarded()
	require.NoError(t, err)
	pid := g.PageID()
	g.Drop()

	w, err := bpm.FetchPageWrite(pid)
	require.NoError(t, err)
	copy(w.DataMut(), []byte("exclusive"))

	readerIn := make(chan struct{})
	go func() {
		r, err := bpm.FetchPageRead(pid)
		if err != nil {
			panic(err)
		}
		close(readerIn)
		r.Drop()
	}()

	select {
	case <-readerIn:
		t.Fatal("reader should block while the write guard is held")
	default:
	}

	w.Drop()
	<-readerIn
}

func TestGuards_DroppedReadGuardLeavesPageEvictable(t *testing.T) {
	// After dropping a read guard the page must be evictable: a pool of
	// one frame can host a different page next.
	bpm, _ := newTestPool(t, 1, 2)

	g, err := bpm.NewPageGuarded()
	require.NoError(t, err)
	pid := g.PageID()
	g.Drop()

	r, err := bpm.FetchPageRead(pid)
	require.NoError(t, err)
	r.Drop()

	p2, err := bpm.NewPage()
	require.NoError(t, err)
	assert.NotEqual(t, pid, p2.ID())
	require.True(t, bpm.UnpinPage(p2.ID(), false))
}
