package page

import (
	"sync"
	"testing"

	"stratum/pkg/primitives"
)

func TestNewPageIsFree(t *testing.T) {
	p := New()

	if p.ID() != primitives.InvalidPageID {
		t.Errorf("new frame should hold no page, got %v", p.ID())
	}
	if p.PinCount() != 0 {
		t.Errorf("new frame should be unpinned, got %d", p.PinCount())
	}
	if p.IsDirty() {
		t.Error("new frame should be clean")
	}
	if len(p.Data()) != PageSize {
		t.Errorf("buffer should be %d bytes, got %d", PageSize, len(p.Data()))
	}
}

func TestReset(t *testing.T) {
	p := New()
	p.SetID(7)
	p.IncPin()
	p.SetDirty(true)
	p.Data()[0] = 0xFF
	p.Data()[PageSize-1] = 0xFF

	p.DecPin()
	p.Reset()

	if p.ID() != primitives.InvalidPageID || p.PinCount() != 0 || p.IsDirty() {
		t.Error("reset should clear all metadata")
	}
	if p.Data()[0] != 0 || p.Data()[PageSize-1] != 0 {
		t.Error("reset should zero the buffer")
	}
}

func TestPinUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("unpinning an unpinned frame should panic")
		}
	}()
	New().DecPin()
}

func TestWriteLatchBlocksReaders(t *testing.T) {
	p := New()
	p.WLatch()

	readersDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			p.RLatch()
			defer p.RUnlatch()
		}()
	}
	go func() {
		wg.Wait()
		close(readersDone)
	}()

	select {
	case <-readersDone:
		t.Fatal("readers should block while the write latch is held")
	default:
	}

	p.WUnlatch()
	<-readersDone
}
