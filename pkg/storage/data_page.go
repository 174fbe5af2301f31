package storage

import "encoding/binary"

// dataPageHeaderSize is the data-page-local header: 2-byte record size,
// 4-byte slot capacity. Adapted from the teacher's SlottedPage header
// layout (pkg/storage/slotted_page.go), but simplified to fixed-size slots:
// the table layer above only ever stores one record shape per table, so a
// per-slot offset/length directory is unneeded overhead.
const dataPageHeaderSize = 6

// slotDeletedMarker occupies a tombstoned slot's first byte so Read/Update
// can reject it without a separate bitmap.
const slotDeletedMarker = 0xFF
const slotLiveMarker = 0x00

// DataPage is a fixed-size-record page layout: a small header followed by a
// flat array of record_size-byte slots, each prefixed with one liveness
// byte. It is grounded on original_source/Storage/table.cc's DataPage usage
// (DataPage::Insert/Read/Update/Delete operating on a fixed-width record)
// and on the teacher's SlottedPage for the load/store-header-in-Data idiom.
type DataPage struct {
	page       *Page
	recordSize uint16
	capacity   uint32
}

// slotStride is the on-page footprint of one slot: one liveness byte plus
// the record itself.
func (dp *DataPage) slotStride() int { return 1 + int(dp.recordSize) }

// NewDataPage initializes page as an empty DataPage for records of
// recordSize bytes. page must already be typed PageTypeData and latched by
// the caller.
func NewDataPage(page *Page, recordSize uint16) *DataPage {
	dp := &DataPage{page: page, recordSize: recordSize}
	stride := dp.slotStride()
	dp.capacity = uint32((len(page.Data) - dataPageHeaderSize) / stride)
	dp.writeHeader()
	for i := uint32(0); i < dp.capacity; i++ {
		page.Data[dp.slotOffset(i)] = slotDeletedMarker
	}
	page.SetDirty(true)
	return dp
}

// LoadDataPage reinterprets an already-populated page as a DataPage.
func LoadDataPage(page *Page, recordSize uint16) *DataPage {
	dp := &DataPage{page: page, recordSize: recordSize}
	stride := dp.slotStride()
	dp.capacity = uint32((len(page.Data) - dataPageHeaderSize) / stride)
	return dp
}

func (dp *DataPage) writeHeader() {
	binary.LittleEndian.PutUint16(dp.page.Data[0:2], dp.recordSize)
	binary.LittleEndian.PutUint32(dp.page.Data[2:6], dp.capacity)
}

func (dp *DataPage) slotOffset(slot uint32) int {
	return dataPageHeaderSize + int(slot)*dp.slotStride()
}

// Capacity returns the number of record-sized slots this page holds.
func (dp *DataPage) Capacity() uint32 { return dp.capacity }

// Insert writes record into the first free slot, returning its slot number.
// Returns false if the page has no free slot or record has the wrong width.
func (dp *DataPage) Insert(record []byte, out *uint32) bool {
	if uint16(len(record)) != dp.recordSize {
		return false
	}
	for s := uint32(0); s < dp.capacity; s++ {
		off := dp.slotOffset(s)
		if dp.page.Data[off] == slotDeletedMarker {
			dp.page.Data[off] = slotLiveMarker
			copy(dp.page.Data[off+1:off+1+int(dp.recordSize)], record)
			*out = s
			return true
		}
	}
	return false
}

// Read copies slot's record into out. Returns false on an out-of-range or
// tombstoned slot.
func (dp *DataPage) Read(slot uint32, out []byte) bool {
	if slot >= dp.capacity {
		return false
	}
	off := dp.slotOffset(slot)
	if dp.page.Data[off] == slotDeletedMarker {
		return false
	}
	copy(out, dp.page.Data[off+1:off+1+int(dp.recordSize)])
	return true
}

// Update overwrites slot's record in place. Returns false on an
// out-of-range or tombstoned slot, or a record of the wrong width.
func (dp *DataPage) Update(slot uint32, record []byte) bool {
	if slot >= dp.capacity || uint16(len(record)) != dp.recordSize {
		return false
	}
	off := dp.slotOffset(slot)
	if dp.page.Data[off] == slotDeletedMarker {
		return false
	}
	copy(dp.page.Data[off+1:off+1+int(dp.recordSize)], record)
	return true
}

// Delete tombstones slot. Returns false if it was already free or
// out-of-range.
func (dp *DataPage) Delete(slot uint32) bool {
	if slot >= dp.capacity {
		return false
	}
	off := dp.slotOffset(slot)
	if dp.page.Data[off] == slotDeletedMarker {
		return false
	}
	dp.page.Data[off] = slotDeletedMarker
	return true
}
