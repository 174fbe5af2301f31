package storage

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/thejch/storage-engine/pkg/types"
)

// lruEntry is the container/list payload for one frame's slot in the pool's
// LRU queue; list.Element.Value holds a *lruEntry so Page.lruElem can carry
// the *list.Element straight back for O(1) removal (spec §4.2 step 4: the
// victim is the queue's current head).
type lruEntry struct {
	frame *Page
}

// EventKind distinguishes the pool lifecycle events published on the
// adminserver event feed (SPEC_FULL.md §B.2).
type EventKind int

const (
	EventLoad EventKind = iota
	EventEvict
	EventFlush
)

func (k EventKind) String() string {
	switch k {
	case EventLoad:
		return "load"
	case EventEvict:
		return "evict"
	case EventFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// Event is one buffer-pool lifecycle notification, published best-effort to
// any subscriber registered via Subscribe.
type Event struct {
	Kind EventKind
	Page types.PageID
}

// BufferPool is the fixed-size pool of page frames described in spec §4.2:
// all frames start in a single LRU queue at construction, a frame is removed
// from the queue while it is pinned and appended to its back when its pin
// count returns to zero, and eviction takes the frame at the queue's front.
//
// Latch ordering: poolMu guards the registry and the LRU queue/index only.
// A frame's own latch (Page.Latch/Unlatch) guards its data and bookkeeping.
// Pin acquires the victim's frame latch while still holding poolMu -- an
// atomic handoff lifted from original_source/Storage/buffer_manager.cc's
// PinPage, which publishes the frame's new identity into the index before
// releasing the pool latch so a second concurrent Pin on the same page id
// finds it already there instead of racing a duplicate load. poolMu is
// never held across a file collaborator call.
type BufferPool struct {
	poolMu sync.Mutex
	pageSize int
	frames   []*Page
	lru      *list.List
	index    map[types.PageID]*Page
	files    map[uint16]File

	subMu sync.Mutex
	subs  []chan Event

	hits      int64
	misses    int64
	evictions int64
}

// NewBufferPool constructs a pool of n frames, each pageSize bytes. Every
// frame starts unpinned and enqueued, per spec §4.2 step 3.
func NewBufferPool(n, pageSize int) *BufferPool {
	bp := &BufferPool{
		pageSize: pageSize,
		frames:   make([]*Page, 0, n),
		lru:      list.New(),
		index:    make(map[types.PageID]*Page),
		files:    make(map[uint16]File),
	}
	dataSize := pageSize - PageHeaderSize
	for i := 0; i < n; i++ {
		f := newPage(dataSize)
		bp.enqueueLocked(f)
		bp.frames = append(bp.frames, f)
	}
	return bp
}

// RegisterFile attaches a file collaborator so PageIDs carrying its file id
// can be pinned. Returns ErrFileAlreadyRegistered if f.ID() is already
// registered.
func (bp *BufferPool) RegisterFile(f File) error {
	bp.poolMu.Lock()
	defer bp.poolMu.Unlock()
	if _, ok := bp.files[f.ID()]; ok {
		return fmt.Errorf("buffer pool: file %d: %w", f.ID(), ErrFileAlreadyRegistered)
	}
	bp.files[f.ID()] = f
	return nil
}

// enqueueLocked pushes frame to the back of the LRU queue (most recently
// used end); callers must hold poolMu. A frame must not already be queued.
func (bp *BufferPool) enqueueLocked(f *Page) {
	e := bp.lru.PushBack(&lruEntry{frame: f})
	f.lruElem = e
}

// dequeueLocked removes frame from the LRU queue, if present; callers must
// hold poolMu. It is a no-op if the frame is not currently queued (i.e. it
// is pinned).
func (bp *BufferPool) dequeueLocked(f *Page) {
	if f.lruElem != nil {
		bp.lru.Remove(f.lruElem)
		f.lruElem = nil
	}
}

// touchLocked moves frame to the back of the LRU queue, marking it most
// recently used; callers must hold poolMu. Frame must currently be queued.
func (bp *BufferPool) touchLocked(f *Page) {
	bp.lru.MoveToBack(f.lruElem)
}

// Pin returns the frame holding id's page image, pinning it so the caller
// may safely latch and read/write Data. The caller must call Unpin exactly
// once per successful Pin. On a cache hit the frame is removed from the LRU
// queue if it was unpinned; on a miss, the LRU head that can be evicted is
// reused to load id, flushing it first if dirty.
func (bp *BufferPool) Pin(id types.PageID) (*Page, error) {
	if !id.IsValid() {
		return nil, ErrInvalidPageID
	}

	for {
		bp.poolMu.Lock()

		if f, ok := bp.index[id]; ok {
			f.Latch()
			if f.pinCount == 0 {
				bp.dequeueLocked(f)
			}
			f.IncPin()
			f.Unlatch()
			bp.hits++
			bp.poolMu.Unlock()
			return f, nil
		}

		file, ok := bp.files[id.FileID]
		if !ok {
			bp.poolMu.Unlock()
			return nil, fmt.Errorf("buffer pool: file %d: %w", id.FileID, ErrFileNotRegistered)
		}

		victim, evictedID, retry, err := bp.selectVictimLocked()
		if err != nil {
			bp.poolMu.Unlock()
			return nil, err
		}
		if retry {
			// Victim was dirty and had to be flushed with poolMu released;
			// the pool state may have moved on, so re-evaluate from scratch.
			bp.poolMu.Unlock()
			continue
		}

		// Atomic handoff: publish the new identity and pin the frame while
		// still holding poolMu, so a racing Pin(id) on another goroutine
		// finds it in bp.index instead of starting a second load.
		victim.Latch()
		delete(bp.index, evictedID)
		bp.index[id] = victim
		victim.IncPin()
		bp.misses++
		bp.poolMu.Unlock()

		if !file.LoadPage(id, victim) {
			victim.DecPin()
			victim.Unlatch()
			bp.poolMu.Lock()
			delete(bp.index, id)
			if victim.pinCount == 0 {
				bp.enqueueLocked(victim)
			}
			bp.poolMu.Unlock()
			return nil, fmt.Errorf("buffer pool: load %s: %w", id, ErrIO)
		}
		victim.Unlatch()
		bp.publish(Event{Kind: EventLoad, Page: id})
		return victim, nil
	}
}

// selectVictimLocked takes the frame at the front of the LRU queue as the
// victim to repurpose. It returns retry=true if it had to drop poolMu to flush a dirty
// victim, in which case the caller should restart Pin from the top. Callers
// must hold poolMu on entry; it is held again on every return, retry
// included.
func (bp *BufferPool) selectVictimLocked() (victim *Page, evictedID types.PageID, retry bool, err error) {
	e := bp.lru.Front()
	if e == nil {
		return nil, types.PageID{}, false, ErrPoolExhausted
	}
	f := e.Value.(*lruEntry).frame

	f.Latch()
	if f.pinCount > 0 {
		// Stale queue entry: became pinned between Front() and Latch(). The
		// caller that pinned it already dequeued it; nothing to do here but
		// let the caller retry.
		f.Unlatch()
		return nil, types.PageID{}, true, nil
	}
	if !f.dirty {
		evicted := f.id
		bp.dequeueLocked(f)
		f.Unlatch()
		if evicted.IsValid() {
			// A frame that never held a page is taken from the free pool,
			// not evicted.
			bp.evictions++
			bp.publish(Event{Kind: EventEvict, Page: evicted})
		}
		return f, evicted, false, nil
	}

	// Dirty victim: must flush before reuse. Flushing is I/O, so drop poolMu
	// first -- it must never be held across a file collaborator call.
	evicted := f.id
	file, ok := bp.files[evicted.FileID]
	bp.poolMu.Unlock()
	if !ok {
		f.Unlatch()
		bp.poolMu.Lock()
		return nil, types.PageID{}, false, fmt.Errorf("buffer pool: file %d: %w", evicted.FileID, ErrFileNotRegistered)
	}
	ok = file.FlushPage(evicted, f)
	if ok {
		f.dirty = false
		bp.publish(Event{Kind: EventFlush, Page: evicted})
	}
	f.Unlatch()
	bp.poolMu.Lock()
	if !ok {
		return nil, types.PageID{}, false, fmt.Errorf("buffer pool: flush %s: %w", evicted, ErrIO)
	}
	return nil, types.PageID{}, true, nil
}

// Unpin decrements frame's pin count, returning it to the LRU queue once the
// count reaches zero. dirty, if true, ORs into the frame's dirty bit -- a
// caller that made no changes should pass false rather than clear a dirty
// bit another pinner set (spec §4.2's shared-dirty-bit rule).
func (bp *BufferPool) Unpin(frame *Page, dirty bool) {
	bp.poolMu.Lock()
	defer bp.poolMu.Unlock()

	frame.Latch()
	if dirty {
		frame.dirty = true
	}
	frame.DecPin()
	if frame.pinCount == 0 {
		bp.enqueueLocked(frame)
	}
	frame.Unlatch()
}

// FlushPage flushes frame's current contents to its registered file
// collaborator if dirty, clearing the dirty bit on success. It is safe to
// call while the frame is pinned.
func (bp *BufferPool) FlushPage(frame *Page) error {
	frame.Latch()
	id := frame.id
	isDirty := frame.dirty
	frame.Unlatch()
	if !isDirty {
		return nil
	}

	bp.poolMu.Lock()
	file, ok := bp.files[id.FileID]
	bp.poolMu.Unlock()
	if !ok {
		return fmt.Errorf("buffer pool: file %d: %w", id.FileID, ErrFileNotRegistered)
	}

	frame.Latch()
	ok = file.FlushPage(id, frame)
	if ok {
		frame.dirty = false
	}
	frame.Unlatch()
	if !ok {
		return fmt.Errorf("buffer pool: flush %s: %w", id, ErrIO)
	}
	bp.publish(Event{Kind: EventFlush, Page: id})
	return nil
}

// Shutdown flushes every dirty, currently-cached frame. It does not wait for
// outstanding pins to drain; callers are expected to have quiesced the
// workload first.
func (bp *BufferPool) Shutdown() error {
	bp.poolMu.Lock()
	dirty := make([]*Page, 0)
	for _, f := range bp.index {
		f.Latch()
		if f.dirty {
			dirty = append(dirty, f)
		}
		f.Unlatch()
	}
	bp.poolMu.Unlock()

	for _, f := range dirty {
		if err := bp.FlushPage(f); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a channel that receives pool lifecycle events. Sends
// are non-blocking: a subscriber that falls behind silently misses events
// rather than stalling the pool, mirroring the teacher's ChangeStreamManager
// broadcast discipline.
func (bp *BufferPool) Subscribe(buf int) <-chan Event {
	ch := make(chan Event, buf)
	bp.subMu.Lock()
	bp.subs = append(bp.subs, ch)
	bp.subMu.Unlock()
	return ch
}

func (bp *BufferPool) publish(ev Event) {
	bp.subMu.Lock()
	defer bp.subMu.Unlock()
	for _, ch := range bp.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Stats reports cumulative pool counters for the admin server's /stats
// endpoint, mirroring the teacher's BufferPool.Stats method shape.
func (bp *BufferPool) Stats() map[string]int64 {
	bp.poolMu.Lock()
	defer bp.poolMu.Unlock()
	return map[string]int64{
		"frames":    int64(len(bp.frames)),
		"hits":      bp.hits,
		"misses":    bp.misses,
		"evictions": bp.evictions,
		"cached":    int64(len(bp.index)),
	}
}
