package storage

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/thejch/storage-engine/pkg/types"
)

// DiskFile is the production File collaborator: a single OS file addressed
// by page-aligned offsets, grounded on pkg/storage/disk_manager.go's
// ReadAt/WriteAt pattern from the teacher codebase. Unlike the teacher's
// DiskManager it has no WAL or recovery path of its own — durability beyond
// write-back on eviction/shutdown is out of this core's scope (spec §1).
type DiskFile struct {
	id       uint16
	pageSize int

	mu         sync.Mutex
	f          *os.File
	nextPage   uint32
	freeList   []uint32
	totalReads int64
	totalWrit  int64
}

// OpenDiskFile opens (creating if necessary) the file at path as the file
// collaborator for file identifier id.
func OpenDiskFile(id uint16, path string, pageSize int) (*DiskFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk file: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk file: stat %s: %w", path, err)
	}
	return &DiskFile{
		id:       id,
		pageSize: pageSize,
		f:        f,
		nextPage: uint32(info.Size() / int64(pageSize)),
	}, nil
}

// ID implements File.
func (d *DiskFile) ID() uint16 { return d.id }

// AllocatePage implements File.
func (d *DiskFile) AllocatePage() types.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := len(d.freeList); n > 0 {
		pn := d.freeList[n-1]
		d.freeList = d.freeList[:n-1]
		return types.PageID{FileID: d.id, PageNum: pn}
	}

	if d.nextPage == invalidPageNumSentinel {
		return types.InvalidPageID
	}
	pn := d.nextPage
	d.nextPage++
	return types.PageID{FileID: d.id, PageNum: pn}
}

// invalidPageNumSentinel guards against wrapping a uint32 page counter into
// the reserved invalid page number.
const invalidPageNumSentinel uint32 = 0xFFFFFFFF

// DeallocatePage returns a page number to the free list for reuse by a
// later AllocatePage call.
func (d *DiskFile) DeallocatePage(id types.PageID) error {
	if id.FileID != d.id {
		return ErrInvalidPageID
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if id.PageNum >= d.nextPage {
		return fmt.Errorf("disk file: %w: page %d never allocated", ErrInvalidPageID, id.PageNum)
	}
	d.freeList = append(d.freeList, id.PageNum)
	return nil
}

// PageExists implements File.
func (d *DiskFile) PageExists(id types.PageID) bool {
	if id.FileID != d.id || !id.IsValid() {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return id.PageNum < d.nextPage
}

// LoadPage implements File.
func (d *DiskFile) LoadPage(id types.PageID, frame *Page) bool {
	if id.FileID != d.id {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := make([]byte, d.pageSize)
	offset := int64(id.PageNum) * int64(d.pageSize)
	n, err := d.f.ReadAt(buf, offset)
	if err != nil && n < d.pageSize {
		// A short read at the current end of file means this page has never
		// been written: hand back a freshly zeroed frame rather than
		// failing, matching the teacher's DiskManager.ReadPage behavior for
		// pages allocated but not yet flushed.
		if id.PageNum < d.nextPage {
			frame.id = id
			frame.pageType = PageTypeData
			frame.flags = 0
			frame.lsn = 0
			frame.checksum = [checksumSize]byte{}
			for i := range frame.Data {
				frame.Data[i] = 0
			}
			return true
		}
		log.Printf("disk file %d: %v", d.id, fmt.Errorf("load page %s: %w", id, ErrPageNotFound))
		return false
	}

	if !frame.Deserialize(buf) {
		log.Printf("disk file %d: %v", d.id, fmt.Errorf("load page %s: %w", id, ErrChecksumMismatch))
		return false
	}
	if frame.id != id {
		log.Printf("disk file %d: %v", d.id, fmt.Errorf("load page %s: %w", id, ErrChecksumMismatch))
		return false
	}
	d.totalReads++
	return true
}

// FlushPage implements File.
func (d *DiskFile) FlushPage(id types.PageID, frame *Page) bool {
	if id.FileID != d.id {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := frame.Serialize(d.pageSize)

	offset := int64(id.PageNum) * int64(d.pageSize)
	if _, err := d.f.WriteAt(buf, offset); err != nil {
		return false
	}
	d.totalWrit++
	return true
}

// Sync flushes the OS file to stable storage.
func (d *DiskFile) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Sync()
}

// Close syncs and closes the underlying OS file.
func (d *DiskFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.f.Sync(); err != nil {
		d.f.Close()
		return err
	}
	return d.f.Close()
}

// Stats returns simple counters mirroring pkg/storage/disk_manager.go's
// Stats method in the teacher codebase.
func (d *DiskFile) Stats() map[string]int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]int64{
		"next_page":   int64(d.nextPage),
		"free_pages":  int64(len(d.freeList)),
		"total_reads": d.totalReads,
		"total_flush": d.totalWrit,
	}
}
