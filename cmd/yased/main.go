// Command yased wires up a buffer pool, an on-disk table, and a skip-list
// index behind the admin observability server. It is grounded on the
// teacher's cmd/server/main.go: flag-based config, construct, run until
// signaled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/thejch/storage-engine/pkg/adminserver"
	"github.com/thejch/storage-engine/pkg/index"
	"github.com/thejch/storage-engine/pkg/storage"
)

const (
	dataFileID uint16 = 0
	dirFileID  uint16 = 1
)

func main() {
	host := flag.String("host", "localhost", "admin server host")
	port := flag.Int("port", 8090, "admin server port")
	dataDir := flag.String("data-dir", "./data", "directory for the table's data and directory files")
	bufferFrames := flag.Int("buffer-frames", 1000, "buffer pool size in frames (1 frame = 1 page)")
	pageSize := flag.Int("page-size", storage.DefaultPageSize, "page size in bytes")
	recordSize := flag.Int("record-size", 64, "fixed record size in bytes for the default table")
	keyWidth := flag.Int("key-width", 8, "index key width in bytes")
	maxHeight := flag.Int("max-height", 16, "skip-list max tower height")
	flag.Parse()

	if err := run(*host, *port, *dataDir, *bufferFrames, *pageSize, *recordSize, *keyWidth, *maxHeight); err != nil {
		fmt.Fprintf(os.Stderr, "yased: %v\n", err)
		os.Exit(1)
	}
}

func run(host string, port int, dataDir string, bufferFrames, pageSize, recordSize, keyWidth, maxHeight int) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pool := storage.NewBufferPool(bufferFrames, pageSize)

	dataFile, err := storage.OpenDiskFile(dataFileID, filepath.Join(dataDir, "table.data"), pageSize)
	if err != nil {
		return fmt.Errorf("open data file: %w", err)
	}
	defer dataFile.Close()

	dirFile, err := storage.OpenDiskFile(dirFileID, filepath.Join(dataDir, "table.dir"), pageSize)
	if err != nil {
		return fmt.Errorf("open directory file: %w", err)
	}
	defer dirFile.Close()

	if err := pool.RegisterFile(dataFile); err != nil {
		return fmt.Errorf("register data file: %w", err)
	}
	if err := pool.RegisterFile(dirFile); err != nil {
		return fmt.Errorf("register directory file: %w", err)
	}

	table, err := storage.NewTable("default", uint16(recordSize), pool, dataFile, dirFile, pageSize)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	idx, err := index.NewSkipList(keyWidth, maxHeight)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	cfg := adminserver.DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	srv := adminserver.New(cfg, pool, idx, table)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Printf("yased admin server listening on %s:%d\n", host, port)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("admin server: %w", err)
	}

	return pool.Shutdown()
}
