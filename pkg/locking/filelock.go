package locking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is a Group implementation backed by OS file locks, so mutual
// exclusion holds across multiple processes sharing a cache directory. One
// lock file is created per key under lockDir.
type FileLock struct {
	lockDir string
}

// NewFileLock creates a FileLock rooted at lockDir, creating the directory
// if needed.
func NewFileLock(lockDir string) (*FileLock, error) {
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileLock{lockDir: lockDir}, nil
}

func (f *FileLock) DoWithLock(key string, fn func() (interface{}, error)) (v interface{}, err error) {
	// Keys are hashed so arbitrary query keys map to safe file names.
	sum := sha256.Sum256([]byte(key))
	path := filepath.Join(f.lockDir, hex.EncodeToString(sum[:])+".lock")

	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to acquire file lock for key %q: %w", key, err)
	}
	defer lock.Unlock()

	return fn()
}
