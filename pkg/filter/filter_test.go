package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/fsobserve/pkg/configuration"
	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
)

func newFixture(t *testing.T, mutate func(*configuration.Snapshot)) *Filter {
	t.Helper()
	root := pathkey.MustNew("/home/user/notes")
	cfg := configuration.Defaults()
	cfg.WatchRoots = []string{root.String()}
	if mutate != nil {
		mutate(&cfg)
	}
	return New([]pathkey.PathKey{root}, cfg)
}

func staticProbe(attributes *event.FileAttributes) Probe {
	return func() *event.FileAttributes { return attributes }
}

func TestAdmitsRejectsOutsideRoot(t *testing.T) {
	f := newFixture(t, nil)
	outside := pathkey.MustNew("/home/user/other/a.md")
	require.False(t, f.Admits(outside, event.Created, staticProbe(&event.FileAttributes{})))
}

func TestAdmitsRejectsExcludedAncestor(t *testing.T) {
	f := newFixture(t, nil)
	p := pathkey.MustNew("/home/user/notes/.git/HEAD")
	require.False(t, f.Admits(p, event.Created, staticProbe(&event.FileAttributes{})))
}

func TestAdmitsRejectsHiddenByDefault(t *testing.T) {
	f := newFixture(t, nil)
	p := pathkey.MustNew("/home/user/notes/.hidden.md")
	require.False(t, f.Admits(p, event.Created, staticProbe(&event.FileAttributes{})))
}

func TestAdmitsHiddenWhenConfigured(t *testing.T) {
	f := newFixture(t, func(c *configuration.Snapshot) { c.AdmitHidden = true })
	p := pathkey.MustNew("/home/user/notes/.hidden.md")
	require.True(t, f.Admits(p, event.Created, staticProbe(&event.FileAttributes{})))
}

func TestAdmitsRejectsExcludePattern(t *testing.T) {
	f := newFixture(t, func(c *configuration.Snapshot) { c.ExcludePatterns = []string{"*.tmp"} })
	p := pathkey.MustNew("/home/user/notes/draft.tmp")
	require.False(t, f.Admits(p, event.Created, staticProbe(&event.FileAttributes{})))
}

func TestAdmitsRejectsNonIncludedExtension(t *testing.T) {
	f := newFixture(t, func(c *configuration.Snapshot) { c.IncludeExtensions = []string{".md"} })
	p := pathkey.MustNew("/home/user/notes/image.png")
	require.False(t, f.Admits(p, event.Created, staticProbe(&event.FileAttributes{})))
	md := pathkey.MustNew("/home/user/notes/note.md")
	require.True(t, f.Admits(md, event.Created, staticProbe(&event.FileAttributes{})))
}

func TestAdmitsRejectsOversizeFile(t *testing.T) {
	f := newFixture(t, func(c *configuration.Snapshot) { c.MaxFileSizeBytes = 100 })
	p := pathkey.MustNew("/home/user/notes/big.md")
	require.False(t, f.Admits(p, event.Created, staticProbe(&event.FileAttributes{SizeBytes: 200})))
	require.True(t, f.Admits(p, event.Created, staticProbe(&event.FileAttributes{SizeBytes: 50})))
}

func TestAdmitsDeletedEventIgnoresSize(t *testing.T) {
	f := newFixture(t, func(c *configuration.Snapshot) { c.MaxFileSizeBytes = 100 })
	p := pathkey.MustNew("/home/user/notes/gone.md")
	require.True(t, f.Admits(p, event.Deleted, nil))
}

func TestAdmitsRejectsOnProbeFailure(t *testing.T) {
	f := newFixture(t, nil)
	p := pathkey.MustNew("/home/user/notes/note.md")
	require.False(t, f.Admits(p, event.Created, staticProbe(nil)))
}

func TestAdmitsNeverInvokesProbeWhenRootContainmentRejects(t *testing.T) {
	f := newFixture(t, nil)
	outside := pathkey.MustNew("/home/user/other/a.md")
	called := false
	probe := func() *event.FileAttributes {
		called = true
		return &event.FileAttributes{}
	}
	require.False(t, f.Admits(outside, event.Created, probe))
	require.False(t, called, "probe must not be invoked once an earlier rule has already rejected the path")
}
