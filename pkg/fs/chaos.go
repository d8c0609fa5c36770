package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
)

// Op names a filesystem operation that [Chaos] can fail.
type Op string

// Operations that [Chaos] can intercept.
const (
	OpOpen            Op = "open"
	OpOpenFile        Op = "openfile"
	OpReadFile        Op = "readfile"
	OpWriteFileAtomic Op = "writefile"
	OpMkdirAll        Op = "mkdirall"
	OpStat            Op = "stat"
	OpRemove          Op = "remove"
	OpSyncDir         Op = "syncdir"

	// OpFileSync is Sync on a [File] returned by Open or OpenFile.
	OpFileSync Op = "file.sync"
)

// ChaosConfig controls random fault injection.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables random injection. Rules added with [Chaos.FailOn]
// apply regardless of the configured rates.
type ChaosConfig struct {
	// ReadFailRate controls how often Open and ReadFile fail (EACCES, EIO).
	ReadFailRate float64

	// WriteFailRate controls how often OpenFile for writing and
	// WriteFileAtomic fail (EIO, ENOSPC, EDQUOT, EROFS).
	WriteFailRate float64

	// RemoveFailRate controls how often Remove fails (EACCES, EPERM, EBUSY, EIO).
	RemoveFailRate float64

	// MkdirAllFailRate controls how often MkdirAll fails (EACCES, ENOSPC, EROFS, ENOTDIR).
	MkdirAllFailRate float64

	// SyncDirFailRate controls how often SyncDir fails (EIO).
	SyncDirFailRate float64

	// SyncFailRate controls how often File.Sync fails (EIO, ENOSPC, EDQUOT).
	SyncFailRate float64
}

// chaosError marks an error as intentionally injected by [Chaos].
//
// It wraps the underlying error so errors.Is/As continue to work. Injected
// errno failures are [*fs.PathError] values with a real [syscall.Errno], so
// errors.Is(err, os.ErrExist) and friends behave like real OS errors.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string {
	return "chaos: " + e.Err.Error()
}

func (e *chaosError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by [Chaos].
// Returns false if err is nil.
func IsInjected(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

type chaosRule struct {
	op    Op
	base  string
	errno syscall.Errno
	times int // remaining hits; <0 means unlimited
}

// Chaos wraps an [FS] and injects failures for testing.
//
// Two mechanisms are supported:
//   - rules registered with [Chaos.FailOn] / [Chaos.FailOnce] fail a given
//     operation on paths with a given base name, deterministically
//   - rates in [ChaosConfig] fail operations randomly, seeded for reproducibility
//
// Chaos never injects ENOENT on reads, so any os.IsNotExist result originates
// from the wrapped [FS].
//
// Chaos is safe for concurrent use.
type Chaos struct {
	fs     FS
	config ChaosConfig

	mu    sync.Mutex
	rng   *rand.Rand
	rules []chaosRule

	faults atomic.Int64
}

// NewChaos creates a new [Chaos] filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
// Panics if underlying is nil.
func NewChaos(underlying FS, seed int64, config ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	return &Chaos{
		fs:     underlying,
		config: config,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
	}
}

// FailOn makes every op on a path whose base name is base fail with errno.
// An empty base matches every path.
func (c *Chaos) FailOn(op Op, base string, errno syscall.Errno) {
	c.addRule(chaosRule{op: op, base: base, errno: errno, times: -1})
}

// FailOnce is like [Chaos.FailOn] but the rule is consumed by its first hit.
func (c *Chaos) FailOnce(op Op, base string, errno syscall.Errno) {
	c.addRule(chaosRule{op: op, base: base, errno: errno, times: 1})
}

// Reset removes all rules registered with FailOn/FailOnce.
func (c *Chaos) Reset() {
	c.mu.Lock()
	c.rules = nil
	c.mu.Unlock()
}

// Faults returns the number of injected failures so far.
func (c *Chaos) Faults() int64 {
	return c.faults.Load()
}

func (c *Chaos) addRule(rule chaosRule) {
	c.mu.Lock()
	c.rules = append(c.rules, rule)
	c.mu.Unlock()
}

// Open opens a file for reading with fault injection.
func (c *Chaos) Open(path string) (File, error) {
	err := c.inject(OpOpen, path, c.config.ReadFailRate, syscall.EACCES, syscall.EIO)
	if err != nil {
		return nil, err
	}

	file, err := c.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: file, chaos: c, path: path}, nil
}

// OpenFile opens a file with fault injection. Only opens that can write
// are subject to WriteFailRate.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	rate := c.config.ReadFailRate
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0 {
		rate = c.config.WriteFailRate
	}

	err := c.inject(OpOpenFile, path, rate, syscall.EIO, syscall.ENOSPC, syscall.EROFS)
	if err != nil {
		return nil, err
	}

	file, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: file, chaos: c, path: path}, nil
}

// ReadFile reads a file with fault injection.
func (c *Chaos) ReadFile(path string) ([]byte, error) {
	err := c.inject(OpReadFile, path, c.config.ReadFailRate, syscall.EACCES, syscall.EIO)
	if err != nil {
		return nil, err
	}

	return c.fs.ReadFile(path)
}

// WriteFileAtomic writes a file with fault injection. An injected failure
// leaves the existing file untouched, like a failed temp write would.
func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	err := c.inject(OpWriteFileAtomic, path, c.config.WriteFailRate,
		syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS)
	if err != nil {
		return err
	}

	return c.fs.WriteFileAtomic(path, data, perm)
}

// MkdirAll creates directories with fault injection.
func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	err := c.inject(OpMkdirAll, path, c.config.MkdirAllFailRate,
		syscall.EACCES, syscall.ENOSPC, syscall.EROFS, syscall.ENOTDIR)
	if err != nil {
		return err
	}

	return c.fs.MkdirAll(path, perm)
}

// Stat is only subject to explicit rules.
func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	err := c.inject(OpStat, path, 0)
	if err != nil {
		return nil, err
	}

	return c.fs.Stat(path)
}

// Exists shares the rules registered for [OpStat].
func (c *Chaos) Exists(path string) (bool, error) {
	err := c.inject(OpStat, path, 0)
	if err != nil {
		return false, err
	}

	return c.fs.Exists(path)
}

// Remove deletes a file with fault injection. An injected failure leaves
// the file in place.
func (c *Chaos) Remove(path string) error {
	err := c.inject(OpRemove, path, c.config.RemoveFailRate,
		syscall.EACCES, syscall.EPERM, syscall.EBUSY, syscall.EIO)
	if err != nil {
		return err
	}

	return c.fs.Remove(path)
}

// SyncDir fsyncs a directory with fault injection.
func (c *Chaos) SyncDir(path string) error {
	err := c.inject(OpSyncDir, path, c.config.SyncDirFailRate, syscall.EIO)
	if err != nil {
		return err
	}

	return c.fs.SyncDir(path)
}

// chaosFile wraps a [File] so that Sync can fail. Read, Write, Stat and
// Close pass through.
type chaosFile struct {
	File

	chaos *Chaos
	path  string
}

var _ File = (*chaosFile)(nil)

func (cf *chaosFile) Sync() error {
	err := cf.chaos.inject(OpFileSync, cf.path, cf.chaos.config.SyncFailRate,
		syscall.EIO, syscall.ENOSPC, syscall.EDQUOT)
	if err != nil {
		return err
	}

	return cf.File.Sync()
}

// inject returns an injected error if a rule matches op/path, or if the
// random draw falls under rate. errnos are the candidates for random faults.
func (c *Chaos) inject(op Op, path string, rate float64, errnos ...syscall.Errno) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := filepath.Base(path)

	for i := range c.rules {
		rule := &c.rules[i]
		if rule.op != op || rule.times == 0 {
			continue
		}

		if rule.base != "" && rule.base != base {
			continue
		}

		if rule.times > 0 {
			rule.times--
		}

		return c.fail(op, path, rule.errno)
	}

	if rate <= 0 || len(errnos) == 0 {
		return nil
	}

	if c.rng.Float64() >= rate {
		return nil
	}

	return c.fail(op, path, errnos[c.rng.IntN(len(errnos))])
}

func (c *Chaos) fail(op Op, path string, errno syscall.Errno) error {
	c.faults.Add(1)

	return &chaosError{Err: &fs.PathError{Op: string(op), Path: path, Err: errno}}
}

// String describes the active configuration, for test failure messages.
func (c *Chaos) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return fmt.Sprintf("chaos{rules=%d config=%+v faults=%d}", len(c.rules), c.config, c.faults.Load())
}

// Compile-time interface check.
var _ FS = (*Chaos)(nil)
