package os

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetry = 50 * time.Millisecond

// Flock is an inter-process lock backed by a file next to the guarded path.
type Flock struct {
	f *flock.Flock
}

func NewFileLock(path string) (*Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0770); err != nil {
		return nil, err
	}
	return &Flock{f: flock.New(path)}, nil
}

// Lock waits for the lock until ctx is done.
func (f *Flock) Lock(ctx context.Context) error {
	ok, err := f.f.TryLockContext(ctx, lockRetry)
	if err != nil {
		return err
	}
	if !ok {
		return ctx.Err()
	}
	return nil
}

func (f *Flock) Unlock() error { return f.f.Unlock() }

func (f *Flock) Path() string { return f.f.Path() }
