package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/fsobserve/pkg/configuration"
	"github.com/inkwell-ai/fsobserve/pkg/sink"
)

func minimalConfig(t *testing.T) configuration.Snapshot {
	t.Helper()
	cfg := configuration.Defaults()
	cfg.WatchRoots = []string{t.TempDir()}
	cfg.DebounceDelayMS = 10
	cfg.BatchIntervalMS = 10
	cfg.IndexScanIntervalHours = 0
	return cfg
}

func TestInitialiseRejectsInvalidConfiguration(t *testing.T) {
	o := New(Options{StateDir: t.TempDir()})
	err := o.Initialise(configuration.Defaults())

	var orchErr *Error
	require.True(t, errors.As(err, &orchErr))
	require.Equal(t, ConfigurationRejected, orchErr.Kind)
	require.Equal(t, Uninitialised, o.State())
}

func TestStartRejectedBeforeInitialise(t *testing.T) {
	o := New(Options{StateDir: t.TempDir()})
	err := o.Start(sink.NewMemory())
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFullLifecycleReachesRunningThenStopped(t *testing.T) {
	o := New(Options{StateDir: t.TempDir()})
	require.NoError(t, o.Initialise(minimalConfig(t)))
	require.Equal(t, Initialising, o.State())

	require.NoError(t, o.Start(sink.NewMemory()))
	require.Equal(t, Running, o.State())

	require.NoError(t, o.Stop())
	require.Equal(t, Stopped, o.State())
}

func TestStopIsIdempotent(t *testing.T) {
	o := New(Options{StateDir: t.TempDir()})
	require.NoError(t, o.Initialise(minimalConfig(t)))
	require.NoError(t, o.Start(sink.NewMemory()))

	require.NoError(t, o.Stop())
	require.NoError(t, o.Stop())
	require.Equal(t, Stopped, o.State())
}

func TestTriggerRescanRejectedOutsideRunning(t *testing.T) {
	o := New(Options{StateDir: t.TempDir()})
	cfg := minimalConfig(t)
	require.NoError(t, o.Initialise(cfg))

	err := o.TriggerRescan(cfg.WatchRoots[0])
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTriggerRescanRejectsUnknownRoot(t *testing.T) {
	o := New(Options{StateDir: t.TempDir()})
	require.NoError(t, o.Initialise(minimalConfig(t)))
	require.NoError(t, o.Start(sink.NewMemory()))
	defer o.Stop()

	err := o.TriggerRescan("/not/a/configured/root")
	require.ErrorIs(t, err, ErrUnknownRoot)
}

func TestStatisticsReflectsState(t *testing.T) {
	o := New(Options{StateDir: t.TempDir()})
	require.NoError(t, o.Initialise(minimalConfig(t)))
	require.NoError(t, o.Start(sink.NewMemory()))
	defer o.Stop()

	stats := o.Statistics()
	require.Equal(t, Running, stats.State)
	require.Len(t, stats.Watchers, 1)
}

func TestRescanDeliversInitialScanRecords(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("hello"), 0o644))

	o := New(Options{StateDir: t.TempDir()})
	cfg := minimalConfig(t)
	cfg.WatchRoots = []string{dir}
	require.NoError(t, o.Initialise(cfg))

	mem := sink.NewMemory()
	require.NoError(t, o.Start(mem))
	defer o.Stop()

	require.Eventually(t, func() bool {
		return len(mem.Batches) > 0
	}, 2*time.Second, 10*time.Millisecond)
}
