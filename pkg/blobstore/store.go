package blobstore

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/calvinalkan/blobstore/pkg/fs"
)

// Snapshot file names inside a store directory.
const (
	BlobFile = "BLOB"
	MapFile  = "MAP"
	LockFile = "LOCK"
)

const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// Options configures a [Store]. The zero value is ready to use.
type Options struct {
	// FS is the filesystem used for all snapshot I/O.
	// Default: [fs.NewReal].
	FS fs.FS

	// Logger receives debug records about loads and saves.
	// Default: discards everything.
	Logger *slog.Logger

	// Metrics, if set, counts lookups, loads and saves.
	Metrics *Metrics

	// EnsureDir makes sure the store directory exists. It is called by
	// [Store.Save] right before the lock is taken.
	// Default: FS.MkdirAll(dir, 0o755).
	EnsureDir func(dir string) error

	// SyncDir fsyncs the directory after BLOB and MAP were replaced, so the
	// renames survive a crash.
	SyncDir bool
}

// Tier says which tier an [Entry] currently lives in.
type Tier uint8

const (
	// TierMemory entries were written with [Store.Set] since construction.
	TierMemory Tier = iota + 1

	// TierPersisted entries come from the snapshot loaded at construction.
	TierPersisted
)

func (t Tier) String() string {
	switch t {
	case TierMemory:
		return "memory"
	case TierPersisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// Entry describes one visible key, as returned by [Store.Entries].
type Entry struct {
	Key   string
	Token string
	Size  int
	Tier  Tier
}

// memEntry is a memory-tier record.
type memEntry struct {
	token   string
	payload []byte
}

// Store is a two-tier blob cache rooted at a directory.
//
// Create one with [Open] or [New]. A Store is not safe for concurrent use.
type Store struct {
	dir      string
	blobPath string
	mapPath  string
	lockPath string

	fs        fs.FS
	log       *slog.Logger
	metrics   *Metrics
	ensureDir func(dir string) error
	syncDir   bool

	// memory tier, in insertion order
	memory *orderedMap[memEntry]

	// persisted tier: blob is read-only, index shrinks on Delete only
	blob  []byte
	index *orderedMap[span]
}

// New opens the store in dir with default [Options].
func New(dir string) *Store {
	return Open(dir, Options{})
}

// Open creates a store rooted at dir and loads the snapshot found there.
//
// Open never fails: if BLOB or MAP is missing, unreadable, or malformed, the
// persisted tier starts empty and the cache behaves as cold. Open performs
// no writes.
func Open(dir string, opts Options) *Store {
	fsys := opts.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ensureDir := opts.EnsureDir
	if ensureDir == nil {
		ensureDir = func(dir string) error {
			return fsys.MkdirAll(dir, dirPerms)
		}
	}

	s := &Store{
		dir:       dir,
		blobPath:  filepath.Join(dir, BlobFile),
		mapPath:   filepath.Join(dir, MapFile),
		lockPath:  filepath.Join(dir, LockFile),
		fs:        fsys,
		log:       logger.With("dir", dir),
		metrics:   opts.Metrics,
		ensureDir: ensureDir,
		syncDir:   opts.SyncDir,
		memory:    newOrderedMap[memEntry](),
	}

	s.load()

	return s
}

// Dir returns the directory the store was opened on.
func (s *Store) Dir() string {
	return s.dir
}

// load populates the persisted tier, falling back to empty on any failure.
func (s *Store) load() {
	s.blob = []byte{}
	s.index = newOrderedMap[span]()

	blob, index, err := readSnapshot(s.fs, s.blobPath, s.mapPath)
	if err != nil {
		result := loadCorrupt
		if errors.Is(err, os.ErrNotExist) {
			result = loadAbsent
		}

		s.log.Debug("snapshot not loaded, starting cold", "result", result, "err", err)
		s.metrics.observeLoad(result)

		return
	}

	s.blob = blob
	s.index = index

	s.log.Debug("snapshot loaded", "entries", index.len(), "blob_bytes", len(blob))
	s.metrics.observeLoad(loadLoaded)
}

// readSnapshot reads and validates BLOB and MAP. Errors from a missing file
// satisfy errors.Is(err, os.ErrNotExist); parse errors wrap [ErrCorruptSnapshot].
func readSnapshot(fsys fs.FS, blobPath, mapPath string) ([]byte, *orderedMap[span], error) {
	mapData, err := fsys.ReadFile(mapPath)
	if err != nil {
		return nil, nil, err
	}

	blob, err := readBlob(fsys, blobPath)
	if err != nil {
		return nil, nil, err
	}

	index, err := decodeIndex(mapData, len(blob))
	if err != nil {
		return nil, nil, err
	}

	return blob, index, nil
}

// readBlob reads BLOB through one handle, sizing the buffer from its Stat.
func readBlob(fsys fs.FS, path string) (_ []byte, err error) {
	file, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}

	defer func() {
		err = errors.Join(err, file.Close())
	}()

	fi, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var buf bytes.Buffer

	buf.Grow(int(fi.Size()) + bytes.MinRead)

	_, err = buf.ReadFrom(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return buf.Bytes(), nil
}

// Has reports whether key is present with the given token.
//
// The memory tier is consulted first; if it holds key, its token decides
// and the persisted tier is not looked at. A token mismatch is reported the
// same as absence.
func (s *Store) Has(key, token string) bool {
	_, tier := s.lookup(key, token, false)
	s.metrics.observeLookup(opHas, tier)

	return tier != 0
}

// Get returns the payload stored for key if its token equals token.
//
// The returned slice is a copy the caller owns. A miss (absent key or token
// mismatch) returns (nil, false) and is not an error.
func (s *Store) Get(key, token string) ([]byte, bool) {
	payload, tier := s.lookup(key, token, true)
	s.metrics.observeLookup(opGet, tier)

	if tier == 0 {
		return nil, false
	}

	return bytes.Clone(payload), true
}

// lookup returns the tier that answered a hit, or 0 on a miss. The payload
// aliases internal storage and is only resolved when withPayload is set.
func (s *Store) lookup(key, token string, withPayload bool) ([]byte, Tier) {
	if entry, ok := s.memory.get(key); ok {
		if entry.token != token {
			return nil, 0
		}

		return entry.payload, TierMemory
	}

	if sp, ok := s.index.get(key); ok {
		if sp.Token != token {
			return nil, 0
		}

		if !withPayload {
			return nil, TierPersisted
		}

		return s.blob[sp.Start:sp.End], TierPersisted
	}

	return nil, 0
}

// Set stores payload for key under token in the memory tier, replacing any
// previous memory entry and shadowing any persisted one. payload is copied.
//
// Any string is accepted, but only keys and tokens that are valid UTF-8
// are written by [Store.Save]; others are served from memory only.
func (s *Store) Set(key, token string, payload []byte) {
	s.memory.set(key, memEntry{token: token, payload: bytes.Clone(payload)})
}

// Delete removes key from both tiers. Deleting an absent key is a no-op.
//
// Bytes of a persisted entry stay in the loaded blob until the next
// [Store.Save] rewrites the snapshot without them.
func (s *Store) Delete(key string) {
	s.memory.delete(key)
	s.index.delete(key)
}

// Len returns the number of visible keys.
func (s *Store) Len() int {
	n := s.memory.len()

	s.index.each(func(key string, _ span) {
		if !s.memory.has(key) {
			n++
		}
	})

	return n
}

// Entries returns every visible key in merge order: memory-tier keys in
// insertion order, then persisted keys not shadowed by the memory tier, in
// snapshot order. This is the order [Store.Save] lays out BLOB in.
func (s *Store) Entries() []Entry {
	entries := make([]Entry, 0, s.memory.len()+s.index.len())

	s.visit(func(key, token string, payload []byte, tier Tier) {
		entries = append(entries, Entry{Key: key, Token: token, Size: len(payload), Tier: tier})
	})

	return entries
}

// visit walks the visible entries in merge order. payload aliases internal
// storage.
func (s *Store) visit(fn func(key, token string, payload []byte, tier Tier)) {
	s.memory.each(func(key string, e memEntry) {
		fn(key, e.token, e.payload, TierMemory)
	})

	s.index.each(func(key string, sp span) {
		if s.memory.has(key) {
			return
		}

		fn(key, sp.Token, s.blob[sp.Start:sp.End], TierPersisted)
	})
}
