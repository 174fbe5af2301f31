package adminserver

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thejch/storage-engine/pkg/index"
	"github.com/thejch/storage-engine/pkg/storage"
	"github.com/thejch/storage-engine/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	pool := storage.NewBufferPool(4, storage.DefaultPageSize)
	dataFile := storage.NewMemFile(0, storage.DefaultPageSize)
	dirFile := storage.NewMemFile(1, storage.DefaultPageSize)
	if err := pool.RegisterFile(dataFile); err != nil {
		t.Fatalf("register data file: %v", err)
	}
	if err := pool.RegisterFile(dirFile); err != nil {
		t.Fatalf("register dir file: %v", err)
	}
	table, err := storage.NewTable("t", 8, pool, dataFile, dirFile, storage.DefaultPageSize)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	idx, err := index.NewSkipList(4, 8)
	if err != nil {
		t.Fatalf("NewSkipList: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Port = 0
	return New(cfg, pool, idx, table)
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Errorf("body[ok] = %v, want true", body["ok"])
	}
}

func TestHandleStats(t *testing.T) {
	s := newTestServer(t)
	rid := types.RID{Page: types.PageID{FileID: 0, PageNum: 1}, Slot: 0}
	s.idx.Insert([]byte("aaaa"), rid)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["buffer_pool"]; !ok {
		t.Error("response missing buffer_pool")
	}
	idxStats, ok := body["index"].(map[string]any)
	if !ok {
		t.Fatal("response missing index stats")
	}
	if idxStats["size"].(float64) != 1 {
		t.Errorf("index size = %v, want 1", idxStats["size"])
	}
	tableStats, ok := body["table"].(map[string]any)
	if !ok {
		t.Fatal("response missing table stats")
	}
	if tableStats["record_size"].(float64) != 8 {
		t.Errorf("table record_size = %v, want 8", tableStats["record_size"])
	}
}

func TestHandleInsertAndReadRecord(t *testing.T) {
	s := newTestServer(t)

	rec := []byte("12345678")
	req := httptest.NewRequest(http.MethodPost, "/records", bytes.NewReader(rec))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("insert status = %d, want %d", w.Code, http.StatusCreated)
	}
	var inserted map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &inserted); err != nil {
		t.Fatalf("decode insert body: %v", err)
	}

	path := fmt.Sprintf("/records/%v/%v/%v", inserted["file_id"], inserted["page_num"], inserted["slot"])
	req = httptest.NewRequest(http.MethodGet, path, nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("read status = %d, want %d", w.Code, http.StatusOK)
	}
	var read map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &read); err != nil {
		t.Fatalf("decode read body: %v", err)
	}
	got, err := hex.DecodeString(read["record_hex"].(string))
	if err != nil {
		t.Fatalf("decode record_hex: %v", err)
	}
	if !bytes.Equal(got, rec) {
		t.Fatalf("read record = %q, want %q", got, rec)
	}
}

func TestHandleInsertRecordWrongSize(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/records", bytes.NewReader([]byte("short")))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleReadRecordNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/records/0/99/0", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
