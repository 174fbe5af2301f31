package storage

import "encoding/binary"

// DirectoryEntrySize is the on-page footprint of one DirectoryPage.Entry:
// a single uint32 free-slot counter, per spec §6.
const DirectoryEntrySize = 4

// EntriesPerDirectoryPage is the number of data pages one directory page
// tracks.
func EntriesPerDirectoryPage(pageSize int) int {
	return (pageSize - PageHeaderSize) / DirectoryEntrySize
}

// DirectoryPage holds free_slots counters for a contiguous range of data
// pages (spec §6): the entry for data page p lives in directory page
// p/entriesPerPage at index p%entriesPerPage. The table layer decrements an
// entry on Insert and increments it on Delete, always under the directory
// page's own latch with its dirty bit set.
type DirectoryPage struct {
	page    *Page
	entries int
}

// NewDirectoryPage initializes page as an empty DirectoryPage with every
// entry set to slotsPerDataPage (a freshly allocated data page starts
// entirely free).
func NewDirectoryPage(page *Page, slotsPerDataPage uint32) *DirectoryPage {
	dir := &DirectoryPage{page: page, entries: EntriesPerDirectoryPage(len(page.Data) + PageHeaderSize)}
	for i := 0; i < dir.entries; i++ {
		binary.LittleEndian.PutUint32(page.Data[i*DirectoryEntrySize:], slotsPerDataPage)
	}
	page.SetDirty(true)
	return dir
}

// LoadDirectoryPage reinterprets an already-populated page as a
// DirectoryPage.
func LoadDirectoryPage(page *Page) *DirectoryPage {
	return &DirectoryPage{page: page, entries: EntriesPerDirectoryPage(len(page.Data) + PageHeaderSize)}
}

// FreeSlots returns entry idx's free-slot count.
func (d *DirectoryPage) FreeSlots(idx int) uint32 {
	return binary.LittleEndian.Uint32(d.page.Data[idx*DirectoryEntrySize:])
}

// DecrementFreeSlots decrements entry idx's free-slot count. Callers must
// ensure the count is nonzero; this mirrors the teacher's LOG_IF(FATAL, ...)
// guard in original_source/Storage/table.cc, relaxed here to a no-op on
// underflow rather than crashing the process (spec §7's "never fatal"
// stance).
func (d *DirectoryPage) DecrementFreeSlots(idx int) {
	n := d.FreeSlots(idx)
	if n == 0 {
		return
	}
	binary.LittleEndian.PutUint32(d.page.Data[idx*DirectoryEntrySize:], n-1)
	d.page.SetDirty(true)
}

// IncrementFreeSlots increments entry idx's free-slot count, capped at cap
// so a double-free can't run the counter past a data page's real capacity.
func (d *DirectoryPage) IncrementFreeSlots(idx int, cap uint32) {
	n := d.FreeSlots(idx)
	if n >= cap {
		return
	}
	binary.LittleEndian.PutUint32(d.page.Data[idx*DirectoryEntrySize:], n+1)
	d.page.SetDirty(true)
}
