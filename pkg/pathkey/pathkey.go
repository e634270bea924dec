// Package pathkey implements canonicalisation of filesystem paths into the
// PathKey form used throughout the ingestion pipeline: an absolute, cleaned,
// Unicode-normalised path that can be compared byte-for-byte.
//
// This follows the watch-target resolution performed by the recursive
// FSEvents watcher (symbolic link evaluation, prefix trimming) and the
// Unicode normalisation concerns documented for HFS+-backed volumes,
// generalised here into a single reusable canonicalisation step that every
// component (filter, coalescer, dispatcher, index scanner) can rely on
// without repeating the work.
package pathkey

import (
	"errors"
	"path/filepath"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrNotAbsolute indicates that a path was not absolute and could not be
// canonicalised.
var ErrNotAbsolute = errors.New("path is not absolute")

// ErrInvalidEncoding indicates that a path contained unpaired UTF-16
// surrogates or invalid UTF-8 byte sequences and was rejected at the
// boundary, per the data model's PathKey contract.
var ErrInvalidEncoding = errors.New("path contains invalid byte sequence")

// PathKey is a canonicalised absolute filesystem path. Equality is
// byte-exact on the canonical form. The zero value is not a valid PathKey.
type PathKey string

// String returns the canonical path as a string.
func (k PathKey) String() string {
	return string(k)
}

// Base returns the final path element, matching filepath.Base semantics.
func (k PathKey) Base() string {
	return filepath.Base(string(k))
}

// Dir returns the directory containing the path, matching filepath.Dir
// semantics.
func (k PathKey) Dir() string {
	return filepath.Dir(string(k))
}

// Ext returns the lowercased extension (including the leading dot), or the
// empty string if the path has none.
func (k PathKey) Ext() string {
	ext := filepath.Ext(string(k))
	for i := 0; i < len(ext); i++ {
		if ext[i] >= 'A' && ext[i] <= 'Z' {
			b := []byte(ext)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return ext
}

// Under reports whether k is equal to root or a descendant of it.
func (k PathKey) Under(root PathKey) bool {
	path, base := string(k), string(root)
	if path == base {
		return true
	}
	if len(base) > 0 && base[len(base)-1] == filepath.Separator {
		return len(path) > len(base) && path[:len(base)] == base
	}
	prefix := base + string(filepath.Separator)
	return len(path) > len(prefix) && path[:len(prefix)] == prefix
}

// New canonicalises a raw path into a PathKey. The input must be absolute.
// Canonicalisation is idempotent: New(string(New(p))) == New(p) for any
// valid p.
//
// It rejects paths containing invalid UTF-8 byte sequences. On platforms
// such as Windows, where native event paths are decoded from UTF-16, a
// caller that surfaces a lone surrogate (one that can't be represented as
// valid UTF-8) will have already produced an invalid string by the time it
// reaches here, so this check also catches that case at the boundary, per
// the data model's PathKey contract.
func New(raw string) (PathKey, error) {
	if !utf8.ValidString(raw) {
		return "", ErrInvalidEncoding
	}
	if !filepath.IsAbs(raw) {
		return "", ErrNotAbsolute
	}

	cleaned := filepath.Clean(raw)

	// Normalise to NFC so that decomposed (NFD) and precomposed (NFC) forms
	// of the same filename - as can be emitted interchangeably by HFS+/APFS
	// - compare equal. Volumes that store decomposed forms on disk are still
	// handled correctly because byte-exact comparison happens only between
	// PathKeys that have both been through this normalisation step.
	normalised := norm.NFC.String(cleaned)

	return PathKey(normalised), nil
}

// MustNew is like New but panics on error. It is intended for use with
// constant or pre-validated paths (tests, configuration defaults).
func MustNew(raw string) PathKey {
	key, err := New(raw)
	if err != nil {
		panic(err)
	}
	return key
}

// Join canonicalises filepath.Join(string(base), elem...).
func Join(base PathKey, elem ...string) (PathKey, error) {
	parts := append([]string{string(base)}, elem...)
	return New(filepath.Join(parts...))
}
