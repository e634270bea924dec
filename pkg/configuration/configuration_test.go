package configuration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRequiresWatchRoot(t *testing.T) {
	s := Defaults()
	require.ErrorIs(t, s.Validate(), ErrConfigurationRejected)
}

func TestValidateAcceptsMinimalSnapshot(t *testing.T) {
	s := Defaults()
	s.WatchRoots = []string{"/home/user/notes"}
	require.NoError(t, s.Validate())
}

func TestValidateRejectsRelativeWatchRoot(t *testing.T) {
	s := Defaults()
	s.WatchRoots = []string{"relative/path"}
	require.ErrorIs(t, s.Validate(), ErrConfigurationRejected)
}

func TestValidateRejectsCPUCeilingOverHundred(t *testing.T) {
	s := Defaults()
	s.WatchRoots = []string{"/home/user/notes"}
	s.MDSCPUPercentCeiling = 101
	require.ErrorIs(t, s.Validate(), ErrConfigurationRejected)
}

func TestValidateRejectsZeroMaxPendingEvents(t *testing.T) {
	s := Defaults()
	s.WatchRoots = []string{"/home/user/notes"}
	s.MaxPendingEvents = 0
	require.ErrorIs(t, s.Validate(), ErrConfigurationRejected)
}

func TestFingerprintStableUnderFieldReordering(t *testing.T) {
	a := Defaults()
	a.WatchRoots = []string{"/a", "/b"}
	a.ExcludePatterns = []string{"*.tmp", "*.log"}

	b := Defaults()
	b.WatchRoots = []string{"/b", "/a"}
	b.ExcludePatterns = []string{"*.log", "*.tmp"}

	require.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := Defaults()
	a.WatchRoots = []string{"/a"}

	b := Defaults()
	b.WatchRoots = []string{"/a", "/different"}

	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestDefaultsMatchDocumentedValues(t *testing.T) {
	d := Defaults()
	require.Equal(t, uint64(50*1024*1024), d.MaxFileSizeBytes)
	require.Equal(t, uint32(100), d.DebounceDelayMS)
	require.Equal(t, uint32(1000), d.MaxPendingEvents)
	require.Equal(t, uint32(300), d.BatchIntervalMS)
	require.Equal(t, uint32(256), d.MaxBatchSize)
	require.Equal(t, uint32(50_000), d.MaxContentLength)
	require.Equal(t, uint32(24), d.IndexScanIntervalHours)
	require.Equal(t, uint8(50), d.MDSCPUPercentCeiling)
	require.ElementsMatch(t, DefaultExcludeDirectoryNames, d.ExcludeDirectoryNames)
}

func TestLoaderLoadWithNoConfigFileRejectsMissingRoot(t *testing.T) {
	l := NewLoader()
	snap, err := l.Load("")
	// No watch_roots set anywhere: validation must reject.
	require.Error(t, err)
	require.Equal(t, uint32(0), snap.DebounceDelayMS)
}
