package blobstore

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// snapshot is the output of a merge: the new BLOB contents and the index
// describing it.
type snapshot struct {
	blob  []byte
	index *orderedMap[span]
}

// merge combines both tiers into a fresh contiguous blob.
//
// Memory-tier entries come first in insertion order, followed by persisted
// entries that are not shadowed, in their snapshot order. Offsets are
// rebuilt from zero, so ranges never overlap and stale bytes of deleted or
// shadowed entries are dropped. For a fixed pair of tier states the output
// is identical byte for byte.
//
// MAP is JSON, which cannot carry a key or token that is not valid UTF-8
// without rewriting it, and rewritten keys can collide. Such entries are
// left out of the snapshot and stay in the memory tier only.
func (s *Store) merge() snapshot {
	size := 0

	s.visit(func(key, token string, payload []byte, _ Tier) {
		if persistable(key, token) {
			size += len(payload)
		}
	})

	out := snapshot{
		blob:  make([]byte, 0, size),
		index: newOrderedMap[span](),
	}

	s.visit(func(key, token string, payload []byte, _ Tier) {
		if !persistable(key, token) {
			s.log.Debug("entry not persisted, key or token is not valid UTF-8",
				"key", fmt.Sprintf("%q", key), "token", fmt.Sprintf("%q", token))

			return
		}

		start := len(out.blob)
		out.blob = append(out.blob, payload...)
		out.index.set(key, span{Token: token, Start: start, End: len(out.blob)})
	})

	return out
}

func persistable(key, token string) bool {
	return utf8.ValidString(key) && utf8.ValidString(token)
}

// Save merges both tiers and rewrites BLOB and MAP.
//
// If another process holds LOCK, Save returns nil and leaves the snapshot
// untouched. Use [Store.TrySave] to find out whether anything was written.
//
// Save does not change what this Store reads: the memory tier is kept and
// the persisted tier is not reloaded from the files just written.
func (s *Store) Save() error {
	_, err := s.TrySave()

	return err
}

// TrySave is [Store.Save] that also reports whether the snapshot was written.
// saved is false with a nil error when LOCK was held by someone else.
//
// The state machine is: ensure dir, try-acquire LOCK once (no retry), write
// BLOB, write MAP, optionally fsync the directory, release LOCK. LOCK is
// released even when a write fails; release errors are joined into err.
func (s *Store) TrySave() (saved bool, err error) {
	snap := s.merge()
	mapData := encodeIndex(snap.index)

	err = s.ensureDir(s.dir)
	if err != nil {
		s.metrics.observeSave(saveFailed)

		return false, fmt.Errorf("blobstore: ensure dir %q: %w", s.dir, err)
	}

	lock, err := acquireLock(s.fs, s.lockPath)
	if errors.Is(err, ErrLockHeld) {
		s.log.Debug("save skipped, lock held by another writer", "lock", s.lockPath)
		s.metrics.observeSave(saveSkipped)

		return false, nil
	}

	if err != nil {
		s.metrics.observeSave(saveFailed)

		return false, fmt.Errorf("blobstore: %w", err)
	}

	defer func() {
		releaseErr := lock.release()
		if releaseErr != nil {
			releaseErr = fmt.Errorf("blobstore: %w", releaseErr)
			saved = false
		}

		err = errors.Join(err, releaseErr)

		if err != nil {
			s.metrics.observeSave(saveFailed)

			return
		}

		s.metrics.observeSave(saveWritten)
		s.metrics.setSnapshotBytes(len(snap.blob))
	}()

	err = s.writeSnapshot(snap.blob, mapData)
	if err != nil {
		return false, err
	}

	s.log.Debug("snapshot saved", "entries", snap.index.len(), "blob_bytes", len(snap.blob))

	return true, nil
}

// writeSnapshot replaces BLOB then MAP. Each file is replaced atomically;
// the pair is not.
func (s *Store) writeSnapshot(blob, mapData []byte) error {
	err := s.fs.WriteFileAtomic(s.blobPath, blob, filePerms)
	if err != nil {
		return fmt.Errorf("blobstore: write %s: %w", BlobFile, err)
	}

	err = s.fs.WriteFileAtomic(s.mapPath, mapData, filePerms)
	if err != nil {
		return fmt.Errorf("blobstore: write %s: %w", MapFile, err)
	}

	if s.syncDir {
		err = s.fs.SyncDir(s.dir)
		if err != nil {
			return fmt.Errorf("blobstore: sync dir: %w", err)
		}
	}

	return nil
}
