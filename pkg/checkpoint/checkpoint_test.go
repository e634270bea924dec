package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store, err := Open(path, nil)
	require.NoError(t, err)

	fingerprint := [32]byte{1, 2, 3}
	now := time.Now()
	cp := NewSession(fingerprint, now)
	cp.Batches = append(cp.Batches, BatchProgress{Label: "batch-0", LastPathSeen: "/a/b", Completed: true})

	require.NoError(t, store.Save(cp))

	loaded, err := store.Load(fingerprint, now)
	require.NoError(t, err)
	require.Equal(t, cp.SessionID, loaded.SessionID)
	require.Len(t, loaded.Batches, 1)
}

func TestLoadRejectsFingerprintMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store, err := Open(path, nil)
	require.NoError(t, err)

	now := time.Now()
	cp := NewSession([32]byte{1}, now)
	require.NoError(t, store.Save(cp))

	_, err = store.Load([32]byte{2}, now)
	require.ErrorIs(t, err, ErrCheckpointStale)
}

func TestLoadRejectsStaleAge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store, err := Open(path, nil)
	require.NoError(t, err)

	fingerprint := [32]byte{1}
	started := time.Now().Add(-2 * MaxAge)
	cp := NewSession(fingerprint, started)
	require.NoError(t, store.Save(cp))

	_, err = store.Load(fingerprint, time.Now())
	require.ErrorIs(t, err, ErrCheckpointStale)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	store, err := Open(path, nil)
	require.NoError(t, err)

	_, err = store.Load([32]byte{}, time.Now())
	require.ErrorIs(t, err, ErrCheckpointStale)
}

func TestAcquireReleaseRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store, err := Open(path, nil)
	require.NoError(t, err)

	require.NoError(t, store.Acquire())
	store.Release()
}
