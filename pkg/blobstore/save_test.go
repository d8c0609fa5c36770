package blobstore_test

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/blobstore/pkg/blobstore"
	"github.com/calvinalkan/blobstore/pkg/fs"
)

func Test_Store_Save_Returns_Error_And_Releases_Lock_When_Write_Fails(t *testing.T) {
	t.Parallel()

	for _, failing := range []string{blobstore.BlobFile, blobstore.MapFile} {
		t.Run(failing, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()

			seed := blobstore.New(dir)
			seed.Set("a", "v1", []byte("before"))
			require.NoError(t, seed.Save())

			mapBefore := readFile(t, filepath.Join(dir, blobstore.MapFile))

			chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{})
			store := blobstore.Open(dir, blobstore.Options{FS: chaos})
			store.Set("b", "v1", []byte("after"))

			chaos.FailOn(fs.OpWriteFileAtomic, failing, syscall.ENOSPC)

			saved, err := store.TrySave()
			require.Error(t, err)
			assert.False(t, saved)
			assert.True(t, errors.Is(err, syscall.ENOSPC), "err=%v", err)
			assert.True(t, fs.IsInjected(err))
			assert.Contains(t, err.Error(), failing)

			assert.NoFileExists(t, filepath.Join(dir, blobstore.LockFile))

			if failing == blobstore.BlobFile {
				assert.Equal(t, mapBefore, readFile(t, filepath.Join(dir, blobstore.MapFile)),
					"MAP must not be written after BLOB failed")
			}

			// The next save goes through once the fault is gone.
			chaos.Reset()
			require.NoError(t, store.Save())
			assert.True(t, blobstore.New(dir).Has("b", "v1"))
		})
	}
}

func Test_Store_Save_Returns_Error_When_Lock_Cannot_Be_Created(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{})
	chaos.FailOn(fs.OpOpenFile, blobstore.LockFile, syscall.EACCES)

	store := blobstore.Open(dir, blobstore.Options{FS: chaos})
	store.Set("a", "v1", []byte("x"))

	err := store.Save()
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrPermission), "err=%v", err)
	assert.False(t, errors.Is(err, blobstore.ErrLockHeld))

	assert.NoFileExists(t, filepath.Join(dir, blobstore.BlobFile))
	assert.NoFileExists(t, filepath.Join(dir, blobstore.MapFile))
}

func Test_Store_Save_Returns_Error_And_Removes_Lock_When_Lock_Sync_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{})
	chaos.FailOn(fs.OpFileSync, blobstore.LockFile, syscall.EIO)

	store := blobstore.Open(dir, blobstore.Options{FS: chaos})
	store.Set("a", "v1", []byte("x"))

	saved, err := store.TrySave()
	require.Error(t, err)
	assert.False(t, saved)
	assert.ErrorIs(t, err, syscall.EIO)
	assert.True(t, fs.IsInjected(err))

	assert.NoFileExists(t, filepath.Join(dir, blobstore.LockFile))
	assert.NoFileExists(t, filepath.Join(dir, blobstore.BlobFile))
	assert.NoFileExists(t, filepath.Join(dir, blobstore.MapFile))
}

func Test_Store_Save_Treats_EEXIST_From_Any_FS_As_Contention(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{})
	chaos.FailOnce(fs.OpOpenFile, blobstore.LockFile, syscall.EEXIST)

	store := blobstore.Open(dir, blobstore.Options{FS: chaos})
	store.Set("a", "v1", []byte("x"))

	saved, err := store.TrySave()
	require.NoError(t, err)
	assert.False(t, saved)
	assert.NoFileExists(t, filepath.Join(dir, blobstore.BlobFile))
}

func Test_Store_Save_Returns_Error_When_EnsureDir_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{})
	chaos.FailOn(fs.OpMkdirAll, "", syscall.EROFS)

	store := blobstore.Open(dir, blobstore.Options{FS: chaos})

	err := store.Save()
	require.Error(t, err)
	assert.True(t, errors.Is(err, syscall.EROFS), "err=%v", err)
	assert.NoFileExists(t, filepath.Join(dir, blobstore.LockFile))
}

func Test_Store_Save_Returns_Error_When_Lock_Removal_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{})
	chaos.FailOnce(fs.OpRemove, blobstore.LockFile, syscall.EBUSY)

	store := blobstore.Open(dir, blobstore.Options{FS: chaos})
	store.Set("a", "v1", []byte("x"))

	saved, err := store.TrySave()
	require.Error(t, err)
	assert.False(t, saved)
	assert.True(t, errors.Is(err, syscall.EBUSY), "err=%v", err)

	// Files were written; only the cleanup failed and the marker remains.
	assert.True(t, blobstore.New(dir).Has("a", "v1"))
	assert.FileExists(t, filepath.Join(dir, blobstore.LockFile))
}

func Test_Store_Save_Returns_Error_When_Dir_Sync_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{})
	chaos.FailOn(fs.OpSyncDir, "", syscall.EIO)

	store := blobstore.Open(dir, blobstore.Options{FS: chaos, SyncDir: true})
	store.Set("a", "v1", []byte("x"))

	err := store.Save()
	require.Error(t, err)
	assert.True(t, errors.Is(err, syscall.EIO), "err=%v", err)
	assert.NoFileExists(t, filepath.Join(dir, blobstore.LockFile))
}

func Test_Store_Save_Never_Leaves_Lock_Behind_Under_Random_Faults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	chaos := fs.NewChaos(fs.NewReal(), 42, fs.ChaosConfig{
		WriteFailRate:    0.3,
		MkdirAllFailRate: 0.1,
		SyncDirFailRate:  0.1,
		SyncFailRate:     0.1,
	})

	store := blobstore.Open(dir, blobstore.Options{FS: chaos, SyncDir: true})

	lockPath := filepath.Join(dir, blobstore.LockFile)
	successes := 0

	for i := range 200 {
		key := string(rune('a' + i%26))
		store.Set(key, "t", []byte{byte(i)})

		err := store.Save()
		if err != nil {
			require.True(t, fs.IsInjected(err), "iteration %d: non-injected error %v (%s)", i, err, chaos)
		} else {
			successes++
		}

		_, statErr := os.Stat(lockPath)
		require.True(t, os.IsNotExist(statErr), "iteration %d: LOCK left behind (%s)", i, chaos)
	}

	require.Positive(t, successes)
	require.Positive(t, chaos.Faults())

	// Whatever the last successful save wrote must load cleanly.
	info, err := blobstore.Inspect(dir, nil)
	require.NoError(t, err)
	assert.True(t, info.Present)
}

func Test_Metrics_Count_Lookups_Loads_And_Saves(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	metrics := blobstore.NewMetrics(prometheus.NewRegistry())

	seed := blobstore.Open(dir, blobstore.Options{Metrics: metrics})
	seed.Set("p", "t", []byte("persisted"))
	require.NoError(t, seed.Save())

	store := blobstore.Open(dir, blobstore.Options{Metrics: metrics})
	store.Set("m", "t", []byte("memory"))

	store.Get("m", "t")
	store.Get("p", "t")
	store.Has("p", "wrong")
	store.Has("missing", "t")

	require.NoError(t, os.WriteFile(filepath.Join(dir, blobstore.LockFile), nil, 0o644))
	require.NoError(t, store.Save())

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Lookups.WithLabelValues("get", "hit_memory")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Lookups.WithLabelValues("get", "hit_persisted")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.Lookups.WithLabelValues("has", "miss")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Loads.WithLabelValues("absent")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Loads.WithLabelValues("loaded")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Saves.WithLabelValues("written")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Saves.WithLabelValues("skipped")), 0)
	assert.InDelta(t, float64(len("persisted")), testutil.ToFloat64(metrics.SnapshotBytes), 0)
}

func Test_Metrics_Nil_Is_Safe(t *testing.T) {
	t.Parallel()

	store := blobstore.Open(t.TempDir(), blobstore.Options{Metrics: nil})
	store.Set("a", "t", []byte("x"))
	store.Get("a", "t")
	require.NoError(t, store.Save())
}
