package filesystem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/vertextoedge/drive-mirror/internal/domain"
)

// LockFileName is created in the mirror root while a process owns the mirror
const LockFileName = ".drive-mirror.lock"

// MirrorLock is an exclusive, process-level lock on a mirror root
type MirrorLock struct {
	flock *flock.Flock
}

// AcquireLock takes the mirror lock without blocking.
// Returns domain.ErrMirrorLocked if another process holds it.
func AcquireLock(rootDir string) (*MirrorLock, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror root dir: %w", err)
	}

	fl := flock.New(filepath.Join(rootDir, LockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock mirror: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", domain.ErrMirrorLocked, rootDir)
	}
	return &MirrorLock{flock: fl}, nil
}

// Path returns the lock file path
func (l *MirrorLock) Path() string {
	return l.flock.Path()
}

// Release unlocks the mirror
func (l *MirrorLock) Release() error {
	return l.flock.Unlock()
}
