// Package event defines the data types that flow through the ingestion
// pipeline: the raw events produced by a NativeWatcher, and the outbound
// events delivered to the sink. Both are modeled as plain, move-only value
// types - once handed to a downstream component the upstream component
// keeps no reference to them.
package event

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
)

// ChangeKind is a tagged variant describing the nature of a filesystem
// change.
type ChangeKind int

const (
	// Unknown indicates an event whose kind could not be determined, or a
	// synthetic event signaling that a watch needs a full rescan (see
	// NativeWatcher's recoverable-error contract).
	Unknown ChangeKind = iota
	// Created indicates a new path.
	Created
	// Modified indicates that an existing path's content or metadata
	// changed.
	Modified
	// Deleted indicates that a path no longer exists.
	Deleted
	// RenamedFrom indicates the origin side of a rename.
	RenamedFrom
	// RenamedTo indicates the destination side of a rename.
	RenamedTo
)

// String returns a human-readable name for the kind.
func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case RenamedFrom:
		return "renamed_old"
	case RenamedTo:
		return "renamed_new"
	default:
		return "unknown"
	}
}

// FileAttributes holds lazily-populated metadata about a path. It may be
// entirely absent (a nil *FileAttributes) when the path no longer exists or
// when probing it failed, per the non-fatal FilterProbeFailure contract.
type FileAttributes struct {
	// SizeBytes is the file size in bytes. Meaningless for directories.
	SizeBytes uint64
	// ModifiedAt is the file's modification time.
	ModifiedAt time.Time
	// IsDirectory indicates whether the path is a directory.
	IsDirectory bool
}

// RawEvent is emitted by a NativeWatcher in OS-observed order per root.
type RawEvent struct {
	// Path is the canonical path the event concerns.
	Path pathkey.PathKey
	// Kind describes the nature of the change.
	Kind ChangeKind
	// PreviousPath is set only for RenamedTo events.
	PreviousPath *pathkey.PathKey
	// ObservedAt is the time the watcher observed the event.
	ObservedAt time.Time
}

// Origin distinguishes events produced by steady-state watching from those
// produced by the initial bulk scan. Both may interleave freely for the same
// path; the sink must treat them as idempotent upserts.
type Origin string

const (
	// OriginWatcher marks an event produced by NativeWatcher + EventCoalescer.
	OriginWatcher Origin = "watcher"
	// OriginInitialScan marks an event produced by IndexQueryProvider.
	OriginInitialScan Origin = "initial_scan"
)

// OutboundEvent is the value delivered to the sink, after filtering,
// coalescing, attribute enrichment, and optional content extraction.
type OutboundEvent struct {
	Path             pathkey.PathKey
	Kind             ChangeKind
	Attributes       *FileAttributes
	PreviousPath     *pathkey.PathKey
	Content          *string
	ContentExtracted bool
	ObservedAt       time.Time
	Origin           Origin
}

// wireEvent is the exact JSON shape required by the external sink interface.
type wireEvent struct {
	Path             string `json:"path"`
	Name             string `json:"name"`
	Extension        string `json:"extension"`
	Directory        string `json:"directory"`
	IsDirectory      bool   `json:"is_directory"`
	Size             *uint64 `json:"size,omitempty"`
	ModifiedTime     *uint64 `json:"modified_time,omitempty"`
	OldPath          string  `json:"old_path,omitempty"`
	EventType        string  `json:"event_type"`
	Content          *string `json:"content,omitempty"`
	ContentExtracted bool    `json:"content_extracted"`
	Origin           string  `json:"origin"`
	ObservedAt       uint64  `json:"observed_at"`
}

// truncationSuffix is appended by TruncateContent to content it has cut
// short to its rune limit.
const truncationSuffix = " ... [truncated]"

// MarshalJSON implements json.Marshaler, producing the wire format
// expected by downstream sinks.
func (e OutboundEvent) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Path:             e.Path.String(),
		Name:             e.Path.Base(),
		Extension:        e.Path.Ext(),
		Directory:        e.Path.Dir(),
		EventType:        e.Kind.String(),
		ContentExtracted: e.ContentExtracted,
		Origin:           string(e.Origin),
		ObservedAt:       uint64(e.ObservedAt.UnixMilli()),
	}

	if e.Attributes != nil {
		w.IsDirectory = e.Attributes.IsDirectory
		size := e.Attributes.SizeBytes
		w.Size = &size
		modified := uint64(e.Attributes.ModifiedAt.Unix())
		w.ModifiedTime = &modified
	}

	if e.PreviousPath != nil {
		w.OldPath = e.PreviousPath.String()
	}

	if e.Content != nil {
		w.Content = e.Content
	}

	return json.Marshal(w)
}

// TruncateContent truncates s to at most maxRunes runes, appending the
// standard truncation marker if truncation occurred. It operates on runes,
// not bytes, so that multi-byte UTF-8 sequences aren't split.
func TruncateContent(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return strings.TrimRight(string(runes[:maxRunes]), " ") + truncationSuffix
}
