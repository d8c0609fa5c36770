package blobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/calvinalkan/blobstore/pkg/fs"
)

// SnapshotInfo describes the snapshot files in a directory.
type SnapshotInfo struct {
	Dir string

	// Present is true when both BLOB and MAP exist.
	Present bool

	// Entries is the number of keys in MAP.
	Entries int

	// BlobBytes is the size of BLOB. It is set whenever BLOB exists, even
	// if MAP is missing or corrupt.
	BlobBytes int

	// ReferencedBytes is the sum of all MAP ranges. It is smaller than
	// BlobBytes when ranges leave holes, which a save never produces.
	ReferencedBytes int

	// Locked is true when LOCK exists, i.e. a save is in progress or a
	// writer died while holding it.
	Locked bool
}

// Inspect reads the snapshot in dir without constructing a [Store].
//
// A missing snapshot is not an error (Present is false). Unlike [Open],
// a malformed snapshot is reported with an error wrapping
// [ErrCorruptSnapshot]. A nil fsys uses [fs.NewReal].
func Inspect(dir string, fsys fs.FS) (SnapshotInfo, error) {
	if fsys == nil {
		fsys = fs.NewReal()
	}

	info := SnapshotInfo{Dir: dir}

	locked, err := fsys.Exists(filepath.Join(dir, LockFile))
	if err != nil {
		return info, fmt.Errorf("blobstore: stat %s: %w", LockFile, err)
	}

	info.Locked = locked

	blobPath := filepath.Join(dir, BlobFile)

	fi, err := fsys.Stat(blobPath)

	switch {
	case err == nil:
		info.BlobBytes = int(fi.Size())
	case !errors.Is(err, os.ErrNotExist):
		return info, fmt.Errorf("blobstore: stat %s: %w", BlobFile, err)
	}

	blob, index, err := readSnapshot(fsys, blobPath, filepath.Join(dir, MapFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return info, nil
		}

		if errors.Is(err, ErrCorruptSnapshot) {
			return info, err
		}

		return info, fmt.Errorf("blobstore: read snapshot: %w", err)
	}

	info.Present = true
	info.Entries = index.len()
	info.BlobBytes = len(blob)

	index.each(func(_ string, sp span) {
		info.ReferencedBytes += sp.size()
	})

	return info, nil
}
