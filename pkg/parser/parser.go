// Package parser defines the ContentParser capability invoked by the
// Dispatcher when content_parsing_enabled is set. Format-specific readers,
// OCR, and document converters are out of scope; this package provides only
// the capability interface and a single built-in parser covering the
// plain-text/UTF-8 case, following a small-interface-plus-registry shape
// rather than any one concrete format library.
package parser

import (
	"bufio"
	"context"
	"io"
	"os"
	"unicode/utf8"

	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
)

// ContentParser extracts textual content from a file for inclusion on the
// wire as OutboundEvent.Content. Implementations must be safe for
// concurrent use by multiple Dispatcher workers.
type ContentParser interface {
	// Supports reports whether this parser can handle the given path,
	// typically by extension.
	Supports(key pathkey.PathKey) bool
	// Parse extracts content, bounded to at most maxRunes runes. A non-nil
	// error is treated as a non-fatal ParserFailure: the event is still
	// delivered, without content.
	Parse(ctx context.Context, key pathkey.PathKey, maxRunes int) (string, error)
}

// Registry dispatches to the first ContentParser that supports a given
// path.
type Registry struct {
	parsers []ContentParser
}

// NewRegistry builds a Registry from an ordered list of parsers; earlier
// parsers take precedence.
func NewRegistry(parsers ...ContentParser) *Registry {
	return &Registry{parsers: parsers}
}

// Extract runs the first supporting parser against key, truncating its
// result to maxRunes. It returns ("", false, nil) if no parser supports the
// path.
func (r *Registry) Extract(ctx context.Context, key pathkey.PathKey, maxRunes int) (content string, extracted bool, err error) {
	for _, p := range r.parsers {
		if !p.Supports(key) {
			continue
		}
		text, parseErr := p.Parse(ctx, key, maxRunes)
		if parseErr != nil {
			return "", false, parseErr
		}
		return event.TruncateContent(text, maxRunes), true, nil
	}
	return "", false, nil
}

// plainTextExtensions is the set of extensions the built-in parser accepts.
var plainTextExtensions = map[string]struct{}{
	".txt": {}, ".md": {}, ".markdown": {}, ".log": {},
}

// PlainTextParser reads a bounded prefix of a file and returns it verbatim
// if it is valid UTF-8.
type PlainTextParser struct {
	// MaxReadBytes bounds how much of the file is read before giving up on
	// finding maxRunes runes worth of content; it exists so a single huge
	// line doesn't force reading an entire large file into memory.
	MaxReadBytes int64
}

// NewPlainTextParser returns a PlainTextParser with a sane default read
// bound.
func NewPlainTextParser() *PlainTextParser {
	return &PlainTextParser{MaxReadBytes: 4 * 1024 * 1024}
}

// Supports implements ContentParser.
func (p *PlainTextParser) Supports(key pathkey.PathKey) bool {
	_, ok := plainTextExtensions[key.Ext()]
	return ok
}

// Parse implements ContentParser.
func (p *PlainTextParser) Parse(ctx context.Context, key pathkey.PathKey, maxRunes int) (string, error) {
	f, err := os.Open(key.String())
	if err != nil {
		return "", err
	}
	defer f.Close()

	limit := p.MaxReadBytes
	if limit <= 0 {
		limit = 4 * 1024 * 1024
	}

	reader := bufio.NewReader(io.LimitReader(f, limit))
	buf := make([]byte, 0, limit)
	chunk := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		n, readErr := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if utf8.RuneCount(buf) >= maxRunes {
				break
			}
		}
		if readErr != nil {
			break
		}
	}

	if !utf8.Valid(buf) {
		return "", errNotUTF8
	}
	return string(buf), nil
}

var errNotUTF8 = errInvalidEncoding{}

type errInvalidEncoding struct{}

func (errInvalidEncoding) Error() string { return "parser: file is not valid UTF-8" }
