package blobstore

import "errors"

// Sentinel errors returned by blobstore operations.
//
// Callers should use [errors.Is] to check error types.
var (
	// ErrCorruptSnapshot indicates MAP or BLOB could not be parsed or that
	// an index range points outside BLOB.
	//
	// [Open] never returns it (a corrupt snapshot loads as empty); it is
	// reported by [Inspect].
	ErrCorruptSnapshot = errors.New("blobstore: corrupt snapshot")

	// ErrLockHeld indicates the LOCK marker already exists, i.e. another
	// writer is saving.
	//
	// [Store.Save] and [Store.TrySave] never return it; contention is
	// reported as a skipped save instead.
	ErrLockHeld = errors.New("blobstore: lock held")
)
