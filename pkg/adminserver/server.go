// Package adminserver exposes a small, observability-only HTTP surface over
// a running engine: buffer pool, index, and table statistics, a liveness
// probe, a diagnostic record insert/read route, and a live event feed over
// WebSocket. It is grounded on the teacher's pkg/server package (chi
// router, middleware stack, graceful shutdown) with every document/query/
// collection route stripped out, since spec §1 treats the query/CLI layer
// as out of scope; the record route exists only to give this observability
// surface something real to exercise against the table layer, not as a
// general-purpose query interface.
package adminserver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/thejch/storage-engine/pkg/index"
	"github.com/thejch/storage-engine/pkg/storage"
	"github.com/thejch/storage-engine/pkg/types"
)

// Server is the admin HTTP server.
type Server struct {
	config    *Config
	pool      *storage.BufferPool
	idx       *index.SkipList
	table     *storage.Table
	router    *chi.Mux
	httpSrv   *http.Server
	startTime time.Time
	hub       *eventHub
}

// New constructs an admin server fronting pool, idx, and table.
func New(config *Config, pool *storage.BufferPool, idx *index.SkipList, table *storage.Table) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Server{
		config:    config,
		pool:      pool,
		idx:       idx,
		table:     table,
		router:    chi.NewRouter(),
		startTime: time.Now(),
		hub:       newEventHub(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Logger)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/events", s.handleEvents)
	s.router.Post("/records", s.handleInsertRecord)
	s.router.Get("/records/{fileID}/{pageNum}/{slot}", s.handleReadRecord)

	s.hub.watch(pool)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Start runs the HTTP server, blocking until it stops or ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("adminserver: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the HTTP server and closes the event hub.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.close()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		log.Printf("adminserver: shutdown error: %v", err)
		return err
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"uptime_sec": time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"buffer_pool": s.pool.Stats(),
		"index": map[string]any{
			"size":   s.idx.Size(),
			"height": s.idx.Height(),
		},
		"table": map[string]any{
			"record_size": s.table.RecordSize(),
		},
	})
}

// handleInsertRecord inserts the raw request body as one fixed-size record
// and reports the RID it landed at, exercising the table layer (and, in
// turn, the buffer manager's pin/latch/dirty/unpin path) from this
// otherwise read-only observability surface.
func (s *Server) handleInsertRecord(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(s.table.RecordSize())+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(body) != int(s.table.RecordSize()) {
		http.Error(w, fmt.Sprintf("record body must be exactly %d bytes", s.table.RecordSize()), http.StatusBadRequest)
		return
	}

	rid, err := s.table.Insert(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"file_id":  rid.Page.FileID,
		"page_num": rid.Page.PageNum,
		"slot":     rid.Slot,
	})
}

// handleReadRecord reads back the record named by the RID in the path,
// returning its bytes hex-encoded.
func (s *Server) handleReadRecord(w http.ResponseWriter, r *http.Request) {
	fileID, err1 := strconv.ParseUint(chi.URLParam(r, "fileID"), 10, 16)
	pageNum, err2 := strconv.ParseUint(chi.URLParam(r, "pageNum"), 10, 32)
	slot, err3 := strconv.ParseUint(chi.URLParam(r, "slot"), 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		http.Error(w, "invalid record identifier", http.StatusBadRequest)
		return
	}

	rid := types.RID{
		Page: types.PageID{FileID: uint16(fileID), PageNum: uint32(pageNum)},
		Slot: uint32(slot),
	}
	out := make([]byte, s.table.RecordSize())
	if !s.table.Read(rid, out) {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record_hex": hex.EncodeToString(out),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("adminserver: encode response: %v", err)
	}
}
