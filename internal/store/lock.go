package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	errs "github.com/Aman-CERP/docsearch/internal/errors"
)

// BuildLock is an exclusive cross-process lock on an index directory.
// It stops two builds from writing the same artifact set; the server never takes it.
type BuildLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewBuildLock creates the lock for dir. The lock file is <dir>/.build.lock.
func NewBuildLock(dir string) *BuildLock {
	lockPath := filepath.Join(dir, LockFile)
	return &BuildLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock acquires the lock without blocking.
// It fails with ERR_206_INDEX_LOCKED when another process holds it.
func (l *BuildLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return errs.New(errs.ErrCodeIndexLocked, "another build is running on "+filepath.Dir(l.path), nil).
			WithSuggestion("Wait for the other build to finish")
	}

	l.locked = true
	return nil
}

// Unlock releases the lock. It's safe to call Unlock multiple times.
func (l *BuildLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *BuildLock) Path() string {
	return l.path
}
