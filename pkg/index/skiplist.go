// Package index implements the ordered skip-list key index: a
// probabilistic, concurrent sorted map from fixed-width byte keys to record
// identifiers, grounded on the teacher's pkg/lsm.SkipList but redesigned for
// real concurrency per the corresponding original_source/Index/skiplist.cc
// component.
package index

import (
	"bytes"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/thejch/storage-engine/pkg/types"
)

const towerProbability = 0.25

// node is one skip-list tower. forward[i] is nil at the top of its own
// chain (not a shared tail sentinel). A node's own rid is guarded by ridMu
// independently of the per-level structural latches, since Update mutates
// it without taking part in the pointer-stitching protocol.
type node struct {
	key     []byte
	ridMu   sync.Mutex
	rid     types.RID
	forward []*node
}

// ScanEntry is one (key, rid) pair returned by ForwardScan.
type ScanEntry struct {
	Key []byte
	RID types.RID
}

// SkipList is an ordered index over k-byte keys, compared as unsigned byte
// sequences (bytes.Compare), per spec. Concurrency discipline: one
// sync.RWMutex per level guards that level's pointers across every node.
// Readers perform true hand-over-hand descent: findPredecessors acquires
// level i-1's read latch before releasing level i's, per spec §5's named
// per-level discipline, so a traversal never observes a gap between two
// levels. Insert acquires every level its new tower touches, 0..h-1,
// before publishing any pointer, and holds all of them simultaneously
// until the whole tower is linked -- otherwise a hand-over-hand reader
// could land on the tower at an upper level (already linked) and then
// descend to a lower level where the tower's forward pointer has not been
// set yet, truncating its view of every key beyond that point. Holding
// every affected level write-locked for the whole stitch keeps the tower
// invisible to any reader until it is fully linked, while the pointer
// writes themselves still happen top-down with the level-0 link written
// last (spec's publication-order requirement for Insert). Structural
// writers (Insert/Delete) additionally serialize against each other with
// structMu, both to make the pre-stitch duplicate-key check still valid at
// publish time and to keep every level-lock acquisition in the same
// top-down order system-wide (no cross-writer lock-ordering hazard);
// readers never take structMu, so Search/ForwardScan still run fully
// concurrently with a structural write except while it holds the specific
// levels it is publishing to.
type SkipList struct {
	keyWidth  int
	maxHeight int

	structMu   sync.Mutex
	levelLocks []sync.RWMutex
	head       *node

	height int32 // atomic: current observed max tower height, 1..maxHeight
	size   int64 // atomic
}

// NewSkipList constructs an empty index over keyWidth-byte keys with towers
// capped at maxHeight levels.
func NewSkipList(keyWidth, maxHeight int) (*SkipList, error) {
	if maxHeight <= 0 {
		return nil, ErrInvalidHeight
	}
	return &SkipList{
		keyWidth:   keyWidth,
		maxHeight:  maxHeight,
		levelLocks: make([]sync.RWMutex, maxHeight),
		head:       &node{forward: make([]*node, maxHeight)},
		height:     1,
	}, nil
}

// Size returns the current number of keys in the index.
func (sl *SkipList) Size() int64 { return atomic.LoadInt64(&sl.size) }

// Height returns the current observed maximum tower height.
func (sl *SkipList) Height() int { return int(atomic.LoadInt32(&sl.height)) }

func randomHeight(maxHeight int) int {
	h := 1
	for h < maxHeight && rand.Float64() < towerProbability {
		h++
	}
	return h
}

// findPredecessors performs the traversal pattern common to every
// operation: starting at head at the current observed top level,
// descending one level at a time, advancing right while the next key is
// strictly less than key. It returns one predecessor per level in
// bottom-up order (preds[0] is the level-0 predecessor), per spec.
//
// True hand-over-hand descent: the read latch for level i-1 is acquired
// before the read latch for level i is released (spec §5), so a
// traversal is never caught between two levels mid-descent. A single
// level's lock is released only once the next lower level's lock is
// already held.
func (sl *SkipList) findPredecessors(key []byte) []*node {
	preds := make([]*node, sl.maxHeight)
	cur := sl.head
	h := sl.Height()

	var held *sync.RWMutex
	for i := sl.maxHeight - 1; i >= 0; i-- {
		if i >= h {
			preds[i] = sl.head
			continue
		}
		lock := &sl.levelLocks[i]
		lock.RLock()
		if held != nil {
			held.RUnlock()
		}
		held = lock

		for cur.forward[i] != nil && bytes.Compare(cur.forward[i].key, key) < 0 {
			cur = cur.forward[i]
		}
		preds[i] = cur
	}
	if held != nil {
		held.RUnlock()
	}
	return preds
}

// Search locates key and returns its payload, or (invalid, false) if absent.
func (sl *SkipList) Search(key []byte) (types.RID, bool) {
	if len(key) != sl.keyWidth {
		return types.InvalidRID, false
	}
	preds := sl.findPredecessors(key)
	target := preds[0].forward[0]
	if target == nil || !bytes.Equal(target.key, key) {
		return types.InvalidRID, false
	}
	target.ridMu.Lock()
	rid := target.rid
	target.ridMu.Unlock()
	return rid, true
}

// Insert adds (key, rid). Returns false, with no side effects, if key is
// already present.
func (sl *SkipList) Insert(key []byte, rid types.RID) bool {
	if len(key) != sl.keyWidth {
		return false
	}

	sl.structMu.Lock()
	defer sl.structMu.Unlock()

	preds := sl.findPredecessors(key)
	if existing := preds[0].forward[0]; existing != nil && bytes.Equal(existing.key, key) {
		return false
	}

	h := randomHeight(sl.maxHeight)
	if cur := sl.Height(); h > cur {
		atomic.StoreInt32(&sl.height, int32(h))
	}

	nk := make([]byte, len(key))
	copy(nk, key)
	tower := &node{key: nk, rid: rid, forward: make([]*node, h)}

	// Acquire every level the tower touches before publishing any pointer,
	// and hold them all simultaneously until the whole tower is linked. A
	// hand-over-hand reader can only reach a level once this writer
	// releases that level's lock, so releasing nothing until every level
	// is stitched guarantees no reader ever observes the tower at an
	// upper level before it exists at every level below it. Both the lock
	// acquisition and the pointer writes still proceed top-down, with the
	// level-0 link written last (spec §4.3's publication-order
	// requirement) -- only the moment of visibility to readers changes.
	for i := h - 1; i >= 0; i-- {
		sl.levelLocks[i].Lock()
	}
	for i := h - 1; i >= 0; i-- {
		tower.forward[i] = preds[i].forward[i]
		preds[i].forward[i] = tower
	}
	for i := h - 1; i >= 0; i-- {
		sl.levelLocks[i].Unlock()
	}

	atomic.AddInt64(&sl.size, 1)
	return true
}

// Update overwrites key's payload in place. Returns false if key is absent;
// never changes the structure.
func (sl *SkipList) Update(key []byte, rid types.RID) bool {
	if len(key) != sl.keyWidth {
		return false
	}
	preds := sl.findPredecessors(key)
	target := preds[0].forward[0]
	if target == nil || !bytes.Equal(target.key, key) {
		return false
	}
	target.ridMu.Lock()
	target.rid = rid
	target.ridMu.Unlock()
	return true
}

// Delete removes key. The canonical order here is top-down, consuming one
// predecessor per level (spec §4.3's REDESIGN FLAG: the source's
// bottom-to-top walk from the top-level predecessor is not reproduced).
// Unlinking proceeds highest level to lowest under each level's own
// exclusive latch, acquired and released independently per level -- unlike
// Insert this needs no overlapping hold, because unlinking never mutates
// target's own forward pointers, only each predecessor's. A reader that
// already holds a reference to target when an upper level stops pointing
// to it can still walk target's intact lower-level forward pointers
// exactly as before; it just never discovers target again from above.
func (sl *SkipList) Delete(key []byte) bool {
	if len(key) != sl.keyWidth {
		return false
	}

	sl.structMu.Lock()
	defer sl.structMu.Unlock()

	preds := sl.findPredecessors(key)
	target := preds[0].forward[0]
	if target == nil || !bytes.Equal(target.key, key) {
		return false
	}

	h := len(target.forward)
	for i := h - 1; i >= 0; i-- {
		lock := &sl.levelLocks[i]
		lock.Lock()
		if preds[i].forward[i] == target {
			preds[i].forward[i] = target.forward[i]
		}
		lock.Unlock()
	}

	sl.shrinkHeight()
	atomic.AddInt64(&sl.size, -1)
	return true
}

// shrinkHeight drops the observed height while its top level is empty. Go's
// garbage collector reclaims the deleted tower once every reference to it
// (including any in-flight reader's local pointer) drops away, satisfying
// spec's memory-reclamation requirement without hazard pointers or epochs:
// a reader holding target from before the unlink keeps it alive for as
// long as it needs it, then it is simply collected.
func (sl *SkipList) shrinkHeight() {
	for {
		cur := atomic.LoadInt32(&sl.height)
		if cur <= 1 {
			return
		}
		lock := &sl.levelLocks[cur-1]
		lock.RLock()
		empty := sl.head.forward[cur-1] == nil
		lock.RUnlock()
		if !empty {
			return
		}
		if !atomic.CompareAndSwapInt32(&sl.height, cur, cur-1) {
			continue
		}
	}
}

// ForwardScan returns up to nkeys (key, rid) pairs in ascending key order,
// starting at start (or the smallest key, if start is nil). If inclusive is
// false and start matches exactly, the matching entry is skipped. Absent a
// full-scan latch (spec §5 leaves this optional), keys inserted or deleted
// concurrently with the scan may or may not appear.
func (sl *SkipList) ForwardScan(start []byte, nkeys int, inclusive bool) []ScanEntry {
	if nkeys <= 0 {
		return nil
	}

	level0 := &sl.levelLocks[0]
	var cur *node

	if start == nil {
		level0.RLock()
		cur = sl.head.forward[0]
		level0.RUnlock()
	} else {
		preds := sl.findPredecessors(start)
		level0.RLock()
		cur = preds[0].forward[0]
		level0.RUnlock()
		if cur != nil && !inclusive && bytes.Equal(cur.key, start) {
			level0.RLock()
			cur = cur.forward[0]
			level0.RUnlock()
		}
	}

	out := make([]ScanEntry, 0, nkeys)
	for cur != nil && len(out) < nkeys {
		level0.RLock()
		k := make([]byte, len(cur.key))
		copy(k, cur.key)
		next := cur.forward[0]
		level0.RUnlock()

		cur.ridMu.Lock()
		r := cur.rid
		cur.ridMu.Unlock()

		out = append(out, ScanEntry{Key: k, RID: r})
		cur = next
	}
	return out
}
