package locking

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockerLockUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	locker, err := NewLocker(path, 0o644)
	require.NoError(t, err)

	require.NoError(t, locker.Lock(true))
	require.NoError(t, locker.Unlock())
}

func TestLockerNonBlockingFailsWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	first, err := NewLocker(path, 0o644)
	require.NoError(t, err)
	require.NoError(t, first.Lock(true))
	defer first.Unlock()

	second, err := NewLocker(path, 0o644)
	require.NoError(t, err)
	require.Error(t, second.Lock(false))
}

func TestNewLockerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	_, err := NewLocker(path, 0o644)
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}
