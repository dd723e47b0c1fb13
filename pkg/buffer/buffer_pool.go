package buffer

import (
	"fmt"
	"sync"

	"stratum/pkg/kerr"
	"stratum/pkg/logging"
	"stratum/pkg/primitives"
	"stratum/pkg/storage/disk"
	"stratum/pkg/storage/page"
)

// LogManager is the recovery log hook. The pool stores the handle it is
// given and nothing more; logging protocol is a higher layer's concern.
type LogManager interface {
	Flush() error
}

// Option configures optional BufferPoolManager collaborators.
type Option func(*BufferPoolManager)

// WithLogManager attaches a recovery log handle to the pool.
func WithLogManager(lm LogManager) Option {
	return func(bpm *BufferPoolManager) {
		bpm.logManager = lm
	}
}

// BufferPoolManager caches fixed-size disk pages in a bounded set of
// frames. It owns the page table (page id -> frame id), the free list,
// and an LRU-K replacer, and it coordinates all frame reuse.
//
// The pool mutex protects the page table, the free list, and frame
// metadata (page id, pin count, dirty flag). It is deliberately not held
// across disk I/O on the miss path: for the whole window the chosen frame
// is absent from the page table, the free list, and the replacer, so no
// other thread can reach it until the page is published. Its pin count
// is not raised during the window; it is set to one just before
// publication.
type BufferPoolManager struct {
	mu         sync.Mutex
	poolSize   int
	frames     []*page.Page
	pageTable  map[primitives.PageID]primitives.FrameID
	freeList   []primitives.FrameID
	replacer   *LRUKReplacer
	dm         disk.Manager
	logManager LogManager
}

// NewBufferPoolManager creates a pool of poolSize frames over the given
// disk manager, with an LRU-K replacer of depth replacerK. Every frame
// starts on the free list.
func NewBufferPoolManager(poolSize int, dm disk.Manager, replacerK int, opts ...Option) (*BufferPoolManager, error) {
	if poolSize <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", poolSize)
	}
	if dm == nil {
		return nil, fmt.Errorf("disk manager is required")
	}

	bpm := &BufferPoolManager{
		poolSize:  poolSize,
		frames:    make([]*page.Page, poolSize),
		pageTable: make(map[primitives.PageID]primitives.FrameID, poolSize),
		freeList:  make([]primitives.FrameID, 0, poolSize),
		replacer:  NewLRUKReplacer(poolSize, replacerK),
		dm:        dm,
	}
	for i := 0; i < poolSize; i++ {
		bpm.frames[i] = page.New()
		bpm.freeList = append(bpm.freeList, primitives.FrameID(i))
	}
	for _, opt := range opts {
		opt(bpm)
	}
	return bpm, nil
}

// PoolSize returns the number of frames.
func (bpm *BufferPoolManager) PoolSize() int {
	return bpm.poolSize
}

// NewPage allocates a fresh page id, binds it to a frame, and returns
// the frame pinned. The frame buffer is zeroed. Returns a capacity error
// when every frame is pinned.
func (bpm *BufferPoolManager) NewPage() (*page.Page, error) {
	bpm.mu.Lock()
	fid, ok := bpm.getFreeFrameLocked()
	if !ok {
		bpm.mu.Unlock()
		return nil, kerr.New(kerr.ErrCategoryCapacity, "NO_FREE_FRAME",
			"all frames are pinned, cannot allocate a new page")
	}
	pid := bpm.dm.AllocatePage()
	frame := bpm.frames[int(fid)]
	bpm.mu.Unlock()

	// The frame is invisible to other threads here: not in the page
	// table, not in the free list, and its replacer node is gone.
	if frame.IsDirty() {
		if err := bpm.dm.WritePage(frame.ID(), frame.Data()); err != nil {
			bpm.reinstallVictim(fid, frame)
			return nil, kerr.Wrap(err, "VICTIM_FLUSH_FAILED", "NewPage", "BufferPoolManager")
		}
		logging.WithPage(frame.ID()).Debug("dirty victim flushed", "frame_id", int32(fid))
	}

	frame.Reset()
	frame.SetID(pid)
	frame.SetPinCount(1)

	bpm.mu.Lock()
	bpm.pageTable[pid] = fid
	bpm.replacer.RecordAccessAndSetEvictable(fid, false, AccessUnknown)
	bpm.mu.Unlock()
	return frame, nil
}

// FetchPage returns the frame holding pid, reading it from disk on a
// miss. The frame comes back pinned; every FetchPage must be balanced by
// an UnpinPage.
func (bpm *BufferPoolManager) FetchPage(pid primitives.PageID) (*page.Page, error) {
	if !pid.IsValid() {
		return nil, fmt.Errorf("cannot fetch %v", pid)
	}

	bpm.mu.Lock()
	if fid, ok := bpm.pageTable[pid]; ok {
		frame := bpm.frames[int(fid)]
		frame.IncPin()
		bpm.replacer.RecordAccessAndSetEvictable(fid, false, AccessUnknown)
		bpm.mu.Unlock()
		return frame, nil
	}
	fid, ok := bpm.getFreeFrameLocked()
	if !ok {
		bpm.mu.Unlock()
		return nil, kerr.New(kerr.ErrCategoryCapacity, "NO_FREE_FRAME",
			"all frames are pinned, cannot fetch page")
	}
	frame := bpm.frames[int(fid)]
	bpm.mu.Unlock()

	if frame.IsDirty() {
		if err := bpm.dm.WritePage(frame.ID(), frame.Data()); err != nil {
			bpm.reinstallVictim(fid, frame)
			return nil, kerr.Wrap(err, "VICTIM_FLUSH_FAILED", "FetchPage", "BufferPoolManager")
		}
		logging.WithPage(frame.ID()).Debug("dirty victim flushed", "frame_id", int32(fid))
	}
	if err := bpm.dm.ReadPage(pid, frame.Data()); err != nil {
		bpm.releaseFrame(fid, frame)
		return nil, kerr.Wrap(err, "PAGE_READ_FAILED", "FetchPage", "BufferPoolManager")
	}

	frame.SetID(pid)
	frame.SetDirty(false)
	frame.SetPinCount(1)

	bpm.mu.Lock()
	if winner, ok := bpm.pageTable[pid]; ok {
		// A concurrent miss published the page first. Keep the single
		// resident copy and return our frame to the free list.
		other := bpm.frames[int(winner)]
		other.IncPin()
		bpm.replacer.RecordAccessAndSetEvictable(winner, false, AccessUnknown)
		frame.Reset()
		bpm.freeList = append(bpm.freeList, fid)
		bpm.mu.Unlock()
		return other, nil
	}
	bpm.pageTable[pid] = fid
	bpm.replacer.RecordAccessAndSetEvictable(fid, false, AccessUnknown)
	bpm.mu.Unlock()
	return frame, nil
}

// UnpinPage drops one pin from the resident page pid. When the count
// reaches zero the frame becomes evictable. isDirty is OR-assigned into
// the frame's dirty flag: unpinning clean never hides an earlier
// writer's modifications. Returns false if the page is not resident or
// was not pinned.
func (bpm *BufferPoolManager) UnpinPage(pid primitives.PageID, isDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable[pid]
	if !ok {
		return false
	}
	frame := bpm.frames[int(fid)]
	if frame.PinCount() == 0 {
		return false
	}
	frame.DecPin()
	if frame.PinCount() == 0 {
		bpm.replacer.SetEvictable(fid, true)
	}
	if isDirty {
		frame.SetDirty(true)
	}
	return true
}

// FlushPage writes the resident page pid to disk unconditionally and
// clears its dirty flag. Returns false if the page is not resident.
func (bpm *BufferPoolManager) FlushPage(pid primitives.PageID) (bool, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable[pid]
	if !ok {
		return false, nil
	}
	frame := bpm.frames[int(fid)]
	if err := bpm.dm.WritePage(pid, frame.Data()); err != nil {
		return false, kerr.Wrap(err, "PAGE_WRITE_FAILED", "FlushPage", "BufferPoolManager")
	}
	frame.SetDirty(false)
	return true, nil
}

// FlushAllPages writes every resident page to disk and clears the dirty
// flags. The first I/O failure aborts the sweep.
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for pid, fid := range bpm.pageTable {
		frame := bpm.frames[int(fid)]
		if err := bpm.dm.WritePage(pid, frame.Data()); err != nil {
			return kerr.Wrap(err, "PAGE_WRITE_FAILED", "FlushAllPages", "BufferPoolManager")
		}
		frame.SetDirty(false)
	}
	return nil
}

// DeletePage evicts the resident page pid from the pool and frees its
// frame. Deleting a page that is not resident succeeds (idempotent
// delete). Deleting a pinned page fails. A dirty page is flushed before
// the frame is recycled.
func (bpm *BufferPoolManager) DeletePage(pid primitives.PageID) (bool, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable[pid]
	if !ok {
		return true, nil
	}
	frame := bpm.frames[int(fid)]
	if frame.PinCount() > 0 {
		return false, nil
	}
	if frame.IsDirty() {
		if err := bpm.dm.WritePage(pid, frame.Data()); err != nil {
			return false, kerr.Wrap(err, "PAGE_WRITE_FAILED", "DeletePage", "BufferPoolManager")
		}
	}
	delete(bpm.pageTable, pid)
	bpm.replacer.Remove(fid)
	frame.Reset()
	bpm.freeList = append(bpm.freeList, fid)
	return true, nil
}

// getFreeFrameLocked hands out a frame for reuse: first from the free
// list, otherwise by evicting a victim. An evicted victim is removed
// from the page table here, under the same critical section that chose
// it. Caller holds the pool mutex.
func (bpm *BufferPoolManager) getFreeFrameLocked() (primitives.FrameID, bool) {
	if len(bpm.freeList) > 0 {
		fid := bpm.freeList[0]
		bpm.freeList = bpm.freeList[1:]
		return fid, true
	}
	fid, ok := bpm.replacer.Evict()
	if !ok {
		return primitives.InvalidFrameID, false
	}
	victim := bpm.frames[int(fid)]
	logging.WithPage(victim.ID()).Debug("page evicted",
		"frame_id", int32(fid), "dirty", victim.IsDirty())
	delete(bpm.pageTable, victim.ID())
	return fid, true
}

// reinstallVictim undoes a victim selection whose dirty flush
// failed: the old page goes back into the page table, still dirty and
// evictable, so the flush can be retried later.
func (bpm *BufferPoolManager) reinstallVictim(fid primitives.FrameID, frame *page.Page) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	bpm.pageTable[frame.ID()] = fid
	bpm.replacer.RecordAccessAndSetEvictable(fid, true, AccessUnknown)
}

// releaseFrame returns a frame whose miss read failed to the free
// list. The victim it replaced was already flushed, so nothing is lost.
func (bpm *BufferPoolManager) releaseFrame(fid primitives.FrameID, frame *page.Page) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	frame.Reset()
	bpm.freeList = append(bpm.freeList, fid)
}
