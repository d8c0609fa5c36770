// Package blobstore provides a two-tier key/value blob cache.
//
// A [Store] keeps opaque byte payloads keyed by a string identifier plus an
// invalidation token (a version or fingerprint of whatever the payload was
// derived from). A read only hits when the token supplied at read time equals
// the token stored with the key.
//
// Writes land in an in-process memory tier. [Store.Save] merges the memory
// tier with the snapshot loaded at construction and rewrites the snapshot
// directory, which a later process can reload with [Open].
//
// # Basic Usage
//
//	store := blobstore.Open(dir, blobstore.Options{})
//
//	token := blobstore.Fingerprint(source)
//	if data, ok := store.Get("main.js", token); ok {
//	    return data
//	}
//
//	data := compile(source)
//	store.Set("main.js", token, data)
//
//	// On shutdown:
//	if err := store.Save(); err != nil {
//	    // unexpected I/O problem (permissions, disk full, ...)
//	}
//
// # Snapshot Layout
//
// The directory holds three files:
//   - BLOB: all payloads concatenated, no header or framing
//   - MAP: JSON object mapping key to ["token", start, end] ranges of BLOB
//   - LOCK: marker that exists only while some process is saving
//
// # Error Handling
//
// A missing or corrupt snapshot is never an error: [Open] falls back to an
// empty persisted tier and the cache behaves as cold.
//
// [Store.Save] returns nil without touching the snapshot when another process
// holds LOCK. Every other failure (creating the directory, creating LOCK for
// any reason other than it existing, writing BLOB or MAP, removing LOCK) is
// returned. LOCK is always removed once it was acquired.
//
// # Concurrency
//
// A [Store] is not safe for concurrent use; callers within one process must
// serialize access. Separate processes sharing a directory cooperate only
// through LOCK, with a single non-blocking attempt per save.
package blobstore
