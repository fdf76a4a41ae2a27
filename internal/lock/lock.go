// Package lock enforces single-process ownership of the intake directories.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("another file poller instance is already running")

// Lock is an exclusive, non-blocking process lock backed by flock.
type Lock struct {
	flock *flock.Flock
	path  string
}

// Acquire takes the lock at path without blocking.
func Acquire(path string) (*Lock, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
		}
	}

	fl := flock.New(path)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to try lock on %s: %w", path, err)
	}

	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, path)
	}

	return &Lock{flock: fl, path: path}, nil
}

func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and closes the lock file.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}

	return nil
}
