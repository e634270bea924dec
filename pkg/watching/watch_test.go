package watching

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
	"github.com/inkwell-ai/fsobserve/pkg/stats"
)

func TestSelectBackendPollingForcesPolling(t *testing.T) {
	backend := selectBackend(BackendPolling, time.Second)
	_, ok := backend.(*pollingBackend)
	require.True(t, ok)
}

func TestSelectBackendAutoFallsBackWhenNoNative(t *testing.T) {
	backend := selectBackend(BackendAuto, time.Second)
	require.NotNil(t, backend)
}

func TestPollingBackendDetectsCreateModifyDelete(t *testing.T) {
	dir := t.TempDir()
	root := pathkey.MustNew(dir)

	statsOut := &stats.Watcher{}
	w := New(root, BackendPolling, 20*time.Millisecond, statsOut)
	defer w.Stop()

	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))
	waitForEvent(t, w, path)

	require.NoError(t, os.WriteFile(path, []byte("two-longer"), 0o644))
	waitForEvent(t, w, path)

	require.NoError(t, os.Remove(path))
	waitForEvent(t, w, path)
}

func waitForEvent(t *testing.T, w *Watcher, path string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-w.Events():
			if e.Path.String() == path {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event on %s", path)
			return
		}
	}
}

func TestPollingBackendDiffSkipsUnchangedEntries(t *testing.T) {
	b := newPollingBackend(time.Second)
	now := time.Now()
	previous := map[string]pollingEntry{"/a": {size: 1, modTime: now}}
	current := map[string]pollingEntry{"/a": {size: 1, modTime: now}}

	statsOut := &stats.Watcher{}
	rawOut := make(chan event.RawEvent, 1)
	b.diff(previous, current, rawOut, statsOut)

	select {
	case <-rawOut:
		t.Fatal("expected no event for an unchanged entry")
	default:
	}
}
