package storage

import (
	"fmt"
	"sync"

	"github.com/thejch/storage-engine/pkg/types"
)

// Table is the thin layer spec §1 describes: just enough insert/read/
// update/delete logic to exercise the buffer manager's pin/latch/dirty/
// unpin discipline and a directory page's free-slot bookkeeping. It is
// grounded directly on original_source/Storage/table.cc, translated from
// the C++ retry-with-goto shape into Go's loop-and-continue idiom.
type Table struct {
	name       string
	recordSize uint16
	pageSize   int

	pool     *BufferPool
	dataFile File
	dirFile  File

	mu           sync.Mutex
	nextFreePage types.PageID
}

// NewTable creates a table storing fixed-size records, backed by dataFile
// for record storage and dirFile for free-slot directory bookkeeping. Both
// files must already be registered with pool. It allocates the table's
// first data page and its first directory page.
func NewTable(name string, recordSize uint16, pool *BufferPool, dataFile, dirFile File, pageSize int) (*Table, error) {
	t := &Table{
		name:       name,
		recordSize: recordSize,
		pageSize:   pageSize,
		pool:       pool,
		dataFile:   dataFile,
		dirFile:    dirFile,
	}

	first := dataFile.AllocatePage()
	if !first.IsValid() {
		return nil, fmt.Errorf("table %s: %w", name, ErrAllocationExhausted)
	}
	if err := t.initDataPage(first); err != nil {
		return nil, err
	}
	if _, err := t.ensureDirectoryPage(t.dirPageNum(first.PageNum)); err != nil {
		return nil, err
	}
	t.nextFreePage = first
	return t, nil
}

// RecordSize returns the fixed record size this table was configured with.
func (t *Table) RecordSize() uint16 { return t.recordSize }

func (t *Table) slotsPerDataPage() uint32 {
	dp := &DataPage{recordSize: t.recordSize}
	return uint32((t.pageSize - PageHeaderSize - dataPageHeaderSize) / dp.slotStride())
}

func (t *Table) dirPageNum(dataPageNum uint32) uint32 {
	return dataPageNum / uint32(EntriesPerDirectoryPage(t.pageSize))
}

func (t *Table) dirEntryIndex(dataPageNum uint32) int {
	return int(dataPageNum) % EntriesPerDirectoryPage(t.pageSize)
}

// initDataPage pins a freshly allocated page and stamps it as an empty
// DataPage.
func (t *Table) initDataPage(id types.PageID) error {
	frame, err := t.pool.Pin(id)
	if err != nil {
		return fmt.Errorf("table %s: init data page %s: %w", t.name, id, err)
	}
	frame.Latch()
	frame.SetType(PageTypeData)
	NewDataPage(frame, t.recordSize)
	frame.Unlatch()
	t.pool.Unpin(frame, true)
	return nil
}

// ensureDirectoryPage allocates directory pages in order until dirNum
// exists, initializing each as it goes. Directory pages are always
// allocated sequentially alongside data pages, so dirNum is never more than
// one ahead of the file's current extent.
func (t *Table) ensureDirectoryPage(dirNum uint32) (types.PageID, error) {
	id := types.PageID{FileID: t.dirFile.ID(), PageNum: dirNum}
	if t.dirFile.PageExists(id) {
		return id, nil
	}
	for {
		newID := t.dirFile.AllocatePage()
		if !newID.IsValid() {
			return types.InvalidPageID, fmt.Errorf("table %s: %w", t.name, ErrAllocationExhausted)
		}
		frame, err := t.pool.Pin(newID)
		if err != nil {
			return types.InvalidPageID, fmt.Errorf("table %s: init dir page %s: %w", t.name, newID, err)
		}
		frame.Latch()
		frame.SetType(PageTypeDirectory)
		NewDirectoryPage(frame, t.slotsPerDataPage())
		frame.Unlatch()
		t.pool.Unpin(frame, true)
		if newID.PageNum == dirNum {
			return newID, nil
		}
	}
}

// adjustFreeSlots pins dataPageNum's directory entry and applies delta
// (+1 on delete, -1 on insert) under the directory page's own latch.
func (t *Table) adjustFreeSlots(dataPageNum uint32, delta int) error {
	dirID := types.PageID{FileID: t.dirFile.ID(), PageNum: t.dirPageNum(dataPageNum)}
	frame, err := t.pool.Pin(dirID)
	if err != nil {
		return fmt.Errorf("table %s: directory %s: %w", t.name, dirID, err)
	}
	frame.Latch()
	dir := LoadDirectoryPage(frame)
	idx := t.dirEntryIndex(dataPageNum)
	if delta < 0 {
		dir.DecrementFreeSlots(idx)
	} else {
		dir.IncrementFreeSlots(idx, t.slotsPerDataPage())
	}
	frame.Unlatch()
	t.pool.Unpin(frame, true)
	return nil
}

// Insert writes record (which must be exactly the table's configured
// record size) into the first free slot of the table's current insertion
// page, allocating a new data page (and, if needed, a new directory page)
// when that page is full. Slots freed on earlier data pages are not reused
// by Insert.
func (t *Table) Insert(record []byte) (types.RID, error) {
	for {
		t.mu.Lock()
		pid := t.nextFreePage
		t.mu.Unlock()

		frame, err := t.pool.Pin(pid)
		if err != nil {
			return types.InvalidRID, fmt.Errorf("table %s insert: %w", t.name, err)
		}
		frame.Latch()
		dp := LoadDataPage(frame, t.recordSize)
		var slot uint32
		ok := dp.Insert(record, &slot)
		frame.Unlatch()
		t.pool.Unpin(frame, ok)

		if !ok {
			t.mu.Lock()
			stillCurrent := t.nextFreePage == pid
			t.mu.Unlock()
			if !stillCurrent {
				continue
			}

			newID := t.dataFile.AllocatePage()
			if !newID.IsValid() {
				return types.InvalidRID, fmt.Errorf("table %s insert: %w", t.name, ErrAllocationExhausted)
			}
			if err := t.initDataPage(newID); err != nil {
				return types.InvalidRID, err
			}
			if _, err := t.ensureDirectoryPage(t.dirPageNum(newID.PageNum)); err != nil {
				return types.InvalidRID, err
			}

			t.mu.Lock()
			t.nextFreePage = newID
			t.mu.Unlock()
			continue
		}

		if err := t.adjustFreeSlots(pid.PageNum, -1); err != nil {
			return types.InvalidRID, err
		}
		return types.RID{Page: pid, Slot: slot}, nil
	}
}

// Read copies rid's record into out, which must be at least the table's
// record size. Returns false if rid is invalid, names a nonexistent page,
// or its slot is empty.
func (t *Table) Read(rid types.RID, out []byte) bool {
	if !rid.IsValid() || !t.dataFile.PageExists(rid.Page) {
		return false
	}
	frame, err := t.pool.Pin(rid.Page)
	if err != nil {
		return false
	}
	frame.Latch()
	dp := LoadDataPage(frame, t.recordSize)
	ok := dp.Read(rid.Slot, out)
	frame.Unlatch()
	t.pool.Unpin(frame, false)
	return ok
}

// Update overwrites rid's record in place. Returns false if rid is invalid
// or its slot is empty.
func (t *Table) Update(rid types.RID, record []byte) bool {
	if !rid.IsValid() {
		return false
	}
	frame, err := t.pool.Pin(rid.Page)
	if err != nil {
		return false
	}
	frame.Latch()
	dp := LoadDataPage(frame, t.recordSize)
	ok := dp.Update(rid.Slot, record)
	frame.Unlatch()
	t.pool.Unpin(frame, ok)
	return ok
}

// Delete tombstones rid's slot and returns it to its data page's free
// count. Returns false if rid is invalid or already free.
func (t *Table) Delete(rid types.RID) bool {
	if !rid.IsValid() {
		return false
	}
	frame, err := t.pool.Pin(rid.Page)
	if err != nil {
		return false
	}
	frame.Latch()
	dp := LoadDataPage(frame, t.recordSize)
	ok := dp.Delete(rid.Slot)
	frame.Unlatch()
	t.pool.Unpin(frame, ok)

	if ok {
		_ = t.adjustFreeSlots(rid.Page.PageNum, 1)
	}
	return ok
}
