package storage

import "github.com/thejch/storage-engine/pkg/types"

// File is the file collaborator contract the buffer manager dispatches
// load/flush through (spec §6). It is an external collaborator: this core
// only consumes it. DiskFile and MemFile below are the two implementations
// this repo ships — a real one backed by an *os.File, and an in-memory one
// for tests that don't want to touch disk.
type File interface {
	// ID returns the file identifier pages routed to this file carry in
	// their PageID.
	ID() uint16

	// AllocatePage reserves a new page and returns its id, or
	// types.InvalidPageID on exhaustion.
	AllocatePage() types.PageID

	// PageExists reports whether id has been allocated in this file.
	PageExists(id types.PageID) bool

	// LoadPage reads id's on-disk image into frame's byte buffer. Returns
	// false on any I/O failure, including a checksum mismatch.
	LoadPage(id types.PageID, frame *Page) bool

	// FlushPage writes frame's byte buffer to id's on-disk location.
	// Returns false on any I/O failure.
	FlushPage(id types.PageID, frame *Page) bool
}
