// Package store provides shared page-store tiers consulted between the
// in-memory cache and the network.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/casewire/caselist"
	"github.com/casewire/caselist/pkg/locking"
)

// pageFormatVersion prefixes stored file names so a layout change can
// invalidate old files wholesale.
const pageFormatVersion = "v1-"

// Disk stores result pages as JSON files with sidecar metadata. Entries
// expire lazily: the read that observes a stale entry removes it. Writes go
// through a temp file and an atomic rename so partial pages never exist.
// A locking.Group serializes access per key; the flock-backed group makes
// the directory safe to share between processes.
type Disk struct {
	dir    string // Absolute path to store directory
	ttl    time.Duration
	locks  locking.Group
	logger *slog.Logger
	now    func() time.Time
}

// diskMetadata holds metadata for a stored page.
type diskMetadata struct {
	InsertedAt time.Time
	Size       int64
}

// NewDisk creates a disk page store rooted at dir.
func NewDisk(dir string, ttl time.Duration, locks locking.Group, logger *slog.Logger) (*Disk, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	// Convert to absolute path once at initialization
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	// Precreate all 256 subdirectories (00-ff) to avoid syscalls during writes
	for i := 0; i < 256; i++ {
		subdir := fmt.Sprintf("%02x", i)
		if err := os.MkdirAll(filepath.Join(absDir, subdir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create subdirectory %s: %w", subdir, err)
		}
	}

	if locks == nil {
		locks = locking.NewNoOpGroup()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Disk{
		dir:    absDir,
		ttl:    ttl,
		locks:  locks,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Get implements caselist.PageStore.
func (d *Disk) Get(ctx context.Context, key string) (*caselist.ResultPage, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	v, err := d.locks.DoWithLock(key, func() (interface{}, error) {
		meta, err := d.readMetadata(key)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			d.logger.Warn("failed to read page store metadata", "key", key, "error", err)
			return nil, nil
		}

		if d.now().Sub(meta.InsertedAt) > d.ttl {
			// Stale: remove on the read that observed it.
			d.removeEntry(key)
			return nil, nil
		}

		data, err := os.ReadFile(d.pagePath(key))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to read stored page: %w", err)
		}

		var page caselist.ResultPage
		if err := json.Unmarshal(data, &page); err != nil {
			// Corrupted page; drop it rather than serving garbage.
			d.logger.Warn("corrupted stored page, removing", "key", key, "error", err)
			d.removeEntry(key)
			return nil, nil
		}
		return &page, nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	return v.(*caselist.ResultPage), true, nil
}

// Put implements caselist.PageStore.
func (d *Disk) Put(ctx context.Context, key string, page *caselist.ResultPage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal page: %w", err)
	}

	_, err = d.locks.DoWithLock(key, func() (interface{}, error) {
		if err := d.write(key, data); err != nil {
			return nil, err
		}
		meta := diskMetadata{InsertedAt: d.now(), Size: int64(len(data))}
		if err := d.writeMetadata(key, meta); err != nil {
			d.logger.Warn("failed to write page store metadata", "key", key, "error", err)
			// Continue - the page is unreadable without metadata and will
			// be overwritten by the next Put.
		}
		return nil, nil
	})
	return err
}

// Clear implements caselist.PageStore. It removes every stored page and
// metadata file but keeps the directory layout.
func (d *Disk) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("failed to read store directory: %w", err)
	}
	for _, sub := range entries {
		if !sub.IsDir() {
			continue
		}
		subPath := filepath.Join(d.dir, sub.Name())
		files, err := os.ReadDir(subPath)
		if err != nil {
			return fmt.Errorf("failed to read store subdirectory: %w", err)
		}
		for _, file := range files {
			if err := os.Remove(filepath.Join(subPath, file.Name())); err != nil {
				return fmt.Errorf("failed to remove stored page: %w", err)
			}
		}
	}
	return nil
}

// write atomically writes page data for key.
func (d *Disk) write(key string, data []byte) error {
	pagePath := d.pagePath(key)

	// Write to temp file first for atomic operation.
	tmpPath := pagePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp page file: %w", err)
	}

	// Then atomically rename. This prevents any partial page files
	// from ever existing.
	if err := os.Rename(tmpPath, pagePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename page file: %w", err)
	}
	return nil
}

// writeMetadata writes the sidecar metadata for key.
func (d *Disk) writeMetadata(key string, meta diskMetadata) error {
	metaPath := d.metadataPath(key)

	// Format: insertedAt:unix\nsize:num\n
	content := fmt.Sprintf("insertedAt:%d\nsize:%d\n", meta.InsertedAt.Unix(), meta.Size)

	tmpPath := metaPath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write temp metadata: %w", err)
	}
	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename metadata: %w", err)
	}
	return nil
}

// readMetadata reads the sidecar metadata for key.
// Returns os.ErrNotExist if the entry was never stored.
func (d *Disk) readMetadata(key string) (*diskMetadata, error) {
	data, err := os.ReadFile(d.metadataPath(key))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var insertedAtUnix, size int64
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "insertedAt:") {
			fmt.Sscanf(line, "insertedAt:%d", &insertedAtUnix)
		} else if strings.HasPrefix(line, "size:") {
			fmt.Sscanf(line, "size:%d", &size)
		}
	}

	if insertedAtUnix == 0 {
		return nil, fmt.Errorf("metadata missing insertedAt field")
	}
	return &diskMetadata{
		InsertedAt: time.Unix(insertedAtUnix, 0),
		Size:       size,
	}, nil
}

// removeEntry deletes the page and metadata files for key. Missing files
// are fine; the entry may have been half-written.
func (d *Disk) removeEntry(key string) {
	os.Remove(d.pagePath(key))
	os.Remove(d.metadataPath(key))
}

// pagePath converts a query key to a stored page path. Keys are hashed and
// sharded into 256 subdirectories (00-ff) by the first hash byte, the same
// layout Go's build cache uses.
func (d *Disk) pagePath(key string) string {
	sum := sha256.Sum256([]byte(key))
	hexKey := hex.EncodeToString(sum[:])
	return filepath.Join(d.dir, hexKey[:2], pageFormatVersion+hexKey+".json")
}

// metadataPath returns the path to the metadata file for key.
func (d *Disk) metadataPath(key string) string {
	return d.pagePath(key) + ".meta"
}
