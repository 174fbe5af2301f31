package storage

import (
	"bytes"
	"testing"

	"github.com/thejch/storage-engine/pkg/types"
)

func TestPagePinCount(t *testing.T) {
	p := newPage(DefaultPageSize - PageHeaderSize)
	if p.PinCount() != 0 {
		t.Fatalf("new page pin count = %d, want 0", p.PinCount())
	}
	p.IncPin()
	p.IncPin()
	if p.PinCount() != 2 {
		t.Fatalf("pin count after two IncPin = %d, want 2", p.PinCount())
	}
	p.DecPin()
	if p.PinCount() != 1 {
		t.Fatalf("pin count after DecPin = %d, want 1", p.PinCount())
	}
	p.DecPin()
	p.DecPin() // must not go negative or panic
	if p.PinCount() != 0 {
		t.Fatalf("pin count after extra DecPin = %d, want 0", p.PinCount())
	}
}

func TestPageSerializeDeserializeRoundTrip(t *testing.T) {
	dataSize := DefaultPageSize - PageHeaderSize
	p := newPage(dataSize)
	p.id = types.PageID{FileID: 4, PageNum: 9}
	p.SetType(PageTypeDirectory)
	p.SetLSN(42)
	copy(p.Data, []byte("hello, page"))

	buf := p.Serialize(DefaultPageSize)
	if len(buf) != DefaultPageSize {
		t.Fatalf("Serialize length = %d, want %d", len(buf), DefaultPageSize)
	}

	q := newPage(dataSize)
	if !q.Deserialize(buf) {
		t.Fatal("Deserialize returned false on a freshly serialized buffer")
	}
	if q.id != p.id {
		t.Errorf("deserialized id = %v, want %v", q.id, p.id)
	}
	if q.Type() != PageTypeDirectory {
		t.Errorf("deserialized type = %v, want %v", q.Type(), PageTypeDirectory)
	}
	if q.LSN() != 42 {
		t.Errorf("deserialized LSN = %d, want 42", q.LSN())
	}
	if !bytes.Equal(q.Data[:11], []byte("hello, page")) {
		t.Errorf("deserialized data mismatch: %q", q.Data[:11])
	}
}

func TestPageDeserializeDetectsCorruption(t *testing.T) {
	dataSize := DefaultPageSize - PageHeaderSize
	p := newPage(dataSize)
	p.id = types.PageID{FileID: 1, PageNum: 1}
	copy(p.Data, []byte("intact"))
	buf := p.Serialize(DefaultPageSize)

	buf[PageHeaderSize] ^= 0xFF // flip a data byte without updating the checksum

	q := newPage(dataSize)
	if q.Deserialize(buf) {
		t.Fatal("Deserialize returned true on a corrupted buffer")
	}
}
