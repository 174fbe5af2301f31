// Package storage implements the paged buffer manager: page frames, the
// buffer pool that pins/evicts them, the file collaborator contract that
// backs them with persistent storage, and a thin table layer that exercises
// the pin/latch/dirty/unpin discipline above on-page directory and data
// layouts.
package storage

import (
	"container/list"
	"encoding/binary"
	"sync"

	"github.com/thejch/storage-engine/pkg/types"
)

const (
	// DefaultPageSize is the page size used when a pool is constructed
	// without an explicit override.
	DefaultPageSize = 4096

	// PageHeaderSize is the size of the on-page header written by
	// Page.Serialize: 2-byte FileID, 4-byte PageNum, 1-byte Type, 1-byte
	// Flags, 8-byte LSN, 32-byte BLAKE2b-256 checksum of the data segment.
	PageHeaderSize = 48

	checksumSize = 32
)

// PageType distinguishes the on-page layouts a frame's bytes may hold.
type PageType uint8

const (
	PageTypeData PageType = iota
	PageTypeDirectory
	PageTypeFreeList
)

func (t PageType) String() string {
	switch t {
	case PageTypeData:
		return "data"
	case PageTypeDirectory:
		return "directory"
	case PageTypeFreeList:
		return "freelist"
	default:
		return "unknown"
	}
}

// Page is one page frame: a fixed-size memory image of a disk page plus the
// bookkeeping the buffer manager needs to pin, latch, and evict it. Every
// field, Data included, is only safe to touch while the frame's latch
// (Latch/Unlatch) is held by the caller, per spec §4.1.
type Page struct {
	id       types.PageID
	pageType PageType
	flags    uint8
	lsn      uint64
	checksum [checksumSize]byte

	// Data is the raw page-sized byte buffer, sized PageSize-PageHeaderSize.
	// The buffer manager reinterprets it as a new page's image on eviction
	// and reload; callers must hold the frame latch for any read or write.
	Data []byte

	pinCount int32
	dirty    bool

	mu sync.Mutex // the frame latch: exclusive, guards Data + the fields above

	// lruElem is owned by the buffer pool; it is nil whenever the frame is
	// pinned (pinCount > 0) and non-nil exactly when it sits in the LRU
	// queue, per the data-model invariant in spec §3.
	lruElem *list.Element
}

// newPage allocates one frame with a PageSize-aligned, zeroed data buffer.
// It starts with an invalid identity: the pool reassigns id/pageType on
// first load.
func newPage(dataSize int) *Page {
	return &Page{
		id:   types.InvalidPageID,
		Data: make([]byte, dataSize),
	}
}

// IncPin increments the pin count. Callers must hold the frame latch.
func (p *Page) IncPin() {
	p.pinCount++
}

// DecPin decrements the pin count. It is a caller contract violation to
// call this on a zero count (spec §4.1); rather than panic the process, we
// no-op and let the violation surface as a stuck pin the caller can notice.
// Callers must hold the frame latch.
func (p *Page) DecPin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}

// PinCount returns the current pin count. Callers must hold the frame latch,
// or may rely on it being stable if they themselves hold a pin.
func (p *Page) PinCount() int32 { return p.pinCount }

// IsDirty reports the dirty bit. Callers must hold the frame latch.
func (p *Page) IsDirty() bool { return p.dirty }

// SetDirty sets the dirty bit. Callers must hold the frame latch and must
// do so before Unlatch for the mutation to reach disk (spec §4.2).
func (p *Page) SetDirty(b bool) { p.dirty = b }

// PageID returns the identity the frame currently holds. Stable while
// pin_count > 0, per spec §3.
func (p *Page) PageID() types.PageID { return p.id }

// Type returns the on-page layout this frame is interpreted as.
func (p *Page) Type() PageType { return p.pageType }

// SetType marks the on-page layout. Callers must hold the frame latch;
// the table layer (Table.initDataPage, Table.ensureDirectoryPage) stamps
// this once, right after pinning a freshly allocated page.
func (p *Page) SetType(t PageType) { p.pageType = t }

// LSN returns the page's log sequence number field, carried for callers
// that layer recovery atop this engine; this core never interprets it.
func (p *Page) LSN() uint64 { return p.lsn }

// SetLSN sets the page's log sequence number field.
func (p *Page) SetLSN(lsn uint64) { p.lsn = lsn }

// Latch acquires the frame's exclusive latch. A caller holding it has
// mutable access to Data.
func (p *Page) Latch() { p.mu.Lock() }

// Unlatch releases the frame's exclusive latch.
func (p *Page) Unlatch() { p.mu.Unlock() }

// Serialize renders the frame's header + data into a PageSize-byte image
// suitable for a file collaborator to write to disk. The checksum field is
// recomputed over Data so LoadPage can detect corruption on the way back in.
func (p *Page) Serialize(pageSize int) []byte {
	buf := make([]byte, pageSize)
	binary.LittleEndian.PutUint16(buf[0:2], p.id.FileID)
	binary.LittleEndian.PutUint32(buf[2:6], p.id.PageNum)
	buf[6] = byte(p.pageType)
	buf[7] = p.flags
	binary.LittleEndian.PutUint64(buf[8:16], p.lsn)
	sum := checksumData(p.Data)
	copy(buf[16:16+checksumSize], sum[:])
	copy(buf[PageHeaderSize:], p.Data)
	return buf
}

// Deserialize loads header + data from a PageSize-byte image previously
// produced by Serialize. It returns false if the stored checksum does not
// match the data segment (corruption, or a torn write).
func (p *Page) Deserialize(buf []byte) bool {
	if len(buf) < PageHeaderSize {
		return false
	}
	p.id = types.PageID{
		FileID:  binary.LittleEndian.Uint16(buf[0:2]),
		PageNum: binary.LittleEndian.Uint32(buf[2:6]),
	}
	p.pageType = PageType(buf[6])
	p.flags = buf[7]
	p.lsn = binary.LittleEndian.Uint64(buf[8:16])
	copy(p.checksum[:], buf[16:16+checksumSize])

	n := copy(p.Data, buf[PageHeaderSize:])
	for i := n; i < len(p.Data); i++ {
		p.Data[i] = 0
	}

	want := checksumData(p.Data)
	return want == p.checksum
}
