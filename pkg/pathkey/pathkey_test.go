package pathkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsRelative(t *testing.T) {
	_, err := New("relative/path.txt")
	require.ErrorIs(t, err, ErrNotAbsolute)
}

func TestNewRejectsInvalidEncoding(t *testing.T) {
	_, err := New("/a/\xff\xfe/b.txt")
	require.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestNewIdempotent(t *testing.T) {
	once, err := New("/a/b/../c/./d.txt")
	require.NoError(t, err)

	twice, err := New(string(once))
	require.NoError(t, err)

	require.Equal(t, once, twice)
}

func TestNewNormalisesUnicodeForm(t *testing.T) {
	// "é" as a precomposed NFC codepoint vs. "e" + combining acute (NFD).
	nfc, err := New("/root/café.txt")
	require.NoError(t, err)

	nfd, err := New("/root/café.txt")
	require.NoError(t, err)

	require.Equal(t, nfc, nfd)
}

func TestUnder(t *testing.T) {
	root := MustNew("/root/notes")

	inside := MustNew("/root/notes/a.md")
	require.True(t, inside.Under(root))

	same := MustNew("/root/notes")
	require.True(t, same.Under(root))

	sibling := MustNew("/root/notes-other/a.md")
	require.False(t, sibling.Under(root))

	outside := MustNew("/root/elsewhere/a.md")
	require.False(t, outside.Under(root))
}

func TestExtLowercased(t *testing.T) {
	k := MustNew("/a/Document.PDF")
	require.Equal(t, ".pdf", k.Ext())
}
