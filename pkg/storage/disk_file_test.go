package storage

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/thejch/storage-engine/pkg/types"
)

func TestDiskFileAllocateFlushLoad(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenDiskFile(0, filepath.Join(dir, "t.dat"), DefaultPageSize)
	if err != nil {
		t.Fatalf("OpenDiskFile: %v", err)
	}
	defer f.Close()

	id := f.AllocatePage()
	if !id.IsValid() {
		t.Fatal("AllocatePage returned an invalid id")
	}
	if !f.PageExists(id) {
		t.Fatal("PageExists false for an allocated page")
	}

	frame := newPage(DefaultPageSize - PageHeaderSize)
	frame.id = id
	copy(frame.Data, []byte("disk file contents"))
	if !f.FlushPage(id, frame) {
		t.Fatal("FlushPage returned false")
	}

	loaded := newPage(DefaultPageSize - PageHeaderSize)
	if !f.LoadPage(id, loaded) {
		t.Fatal("LoadPage returned false")
	}
	if loaded.id != id {
		t.Fatalf("loaded id = %v, want %v", loaded.id, id)
	}
	if !bytes.Equal(loaded.Data[:18], []byte("disk file contents")) {
		t.Fatalf("loaded data = %q", loaded.Data[:18])
	}
}

func TestDiskFileLoadNeverWrittenPageIsZeroed(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenDiskFile(0, filepath.Join(dir, "t.dat"), DefaultPageSize)
	if err != nil {
		t.Fatalf("OpenDiskFile: %v", err)
	}
	defer f.Close()

	id := f.AllocatePage()
	frame := newPage(DefaultPageSize - PageHeaderSize)
	if !f.LoadPage(id, frame) {
		t.Fatal("LoadPage on an allocated-but-unwritten page returned false")
	}
	for i, b := range frame.Data {
		if b != 0 {
			t.Fatalf("unwritten page not zeroed at byte %d", i)
		}
	}
}

func TestDiskFileReuseDeallocatedPage(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenDiskFile(0, filepath.Join(dir, "t.dat"), DefaultPageSize)
	if err != nil {
		t.Fatalf("OpenDiskFile: %v", err)
	}
	defer f.Close()

	id := f.AllocatePage()
	if err := f.DeallocatePage(id); err != nil {
		t.Fatalf("DeallocatePage: %v", err)
	}
	reused := f.AllocatePage()
	if reused != id {
		t.Fatalf("AllocatePage after dealloc = %v, want reused %v", reused, id)
	}
}

func TestDiskFilePageNotInThisFile(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenDiskFile(0, filepath.Join(dir, "t.dat"), DefaultPageSize)
	if err != nil {
		t.Fatalf("OpenDiskFile: %v", err)
	}
	defer f.Close()

	foreign := types.PageID{FileID: 9, PageNum: 0}
	if f.PageExists(foreign) {
		t.Fatal("PageExists true for a different file id")
	}
}
