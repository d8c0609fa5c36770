package blobstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/calvinalkan/blobstore/pkg/fs"
)

// lockContent is written into the LOCK marker. Only the file's existence
// matters.
const lockContent = "LOCK"

// lockMarker is a held LOCK file. Release it exactly once with release.
//
// The marker is a plain create-if-absent file, not flock(2): it works across
// processes on any filesystem that honors O_EXCL, and a process that dies
// mid-save leaves it behind. A stale marker makes every later save a no-op
// until it is removed by hand.
type lockMarker struct {
	fs   fs.FS
	path string
}

// acquireLock makes a single, non-blocking attempt to create path with
// O_CREATE|O_EXCL. The marker is fsynced before BLOB or MAP are touched.
//
// Returns an error wrapping [ErrLockHeld] if path already exists. Any other
// failure is returned as is; in that case nothing is held and nothing needs
// releasing.
func acquireLock(fsys fs.FS, path string) (*lockMarker, error) {
	file, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerms)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, path)
		}

		return nil, fmt.Errorf("create lock %q: %w", path, err)
	}

	lock := &lockMarker{fs: fsys, path: path}

	_, writeErr := file.Write([]byte(lockContent))

	var syncErr error
	if writeErr == nil {
		syncErr = file.Sync()
	}

	closeErr := file.Close()

	err = errors.Join(writeErr, syncErr, closeErr)
	if err != nil {
		// We created the marker, so we own its removal.
		return nil, errors.Join(fmt.Errorf("write lock %q: %w", path, err), lock.release())
	}

	return lock, nil
}

// release removes the marker. A marker that is already gone is not an error.
func (l *lockMarker) release() error {
	err := l.fs.Remove(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock %q: %w", l.path, err)
	}

	return nil
}
