// Package filter implements PathFilter: the admission decision applied to
// every observed path before it is allowed into the coalescing/dispatch
// pipeline. The pattern-matching rules follow the same shape as the
// Mutagen-style ignorer (pkg/synchronization/core/ignore/mutagen), reusing
// bmatcuk/doublestar for glob matching; the short-circuit ordering (root
// containment, excluded ancestor, hidden rule, pattern, extension, size) is
// specific to this pipeline's admission contract.
package filter

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/inkwell-ai/fsobserve/pkg/configuration"
	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
)

// Probe lazily supplies the metadata a PathFilter needs to apply its size
// rule. It is invoked at most once, and only once every earlier rule has
// already admitted the path, so a caller backing it with a stat syscall
// never pays that cost for a path the root-containment, ancestor, hidden,
// pattern, or extension rules would have rejected anyway. A nil return
// (probe failure, or the path no longer exists) is treated as a rejection.
type Probe = func() *event.FileAttributes

// Filter admits or rejects a path according to a Snapshot's filtering
// configuration.
type Filter struct {
	roots                 []pathkey.PathKey
	excludeDirectoryNames  map[string]struct{}
	excludePatterns        []string
	includeExtensions      map[string]struct{}
	admitHidden            bool
	maxFileSizeBytes       uint64
}

// New builds a Filter from watch roots and the filtering portion of a
// configuration Snapshot.
func New(roots []pathkey.PathKey, cfg configuration.Snapshot) *Filter {
	f := &Filter{
		roots:            append([]pathkey.PathKey(nil), roots...),
		excludePatterns:  append([]string(nil), cfg.ExcludePatterns...),
		admitHidden:      cfg.AdmitHidden,
		maxFileSizeBytes: cfg.MaxFileSizeBytes,
	}

	f.excludeDirectoryNames = make(map[string]struct{}, len(cfg.ExcludeDirectoryNames))
	for _, name := range cfg.ExcludeDirectoryNames {
		f.excludeDirectoryNames[name] = struct{}{}
	}

	if len(cfg.IncludeExtensions) > 0 {
		f.includeExtensions = make(map[string]struct{}, len(cfg.IncludeExtensions))
		for _, ext := range cfg.IncludeExtensions {
			f.includeExtensions[strings.ToLower(ext)] = struct{}{}
		}
	}

	return f
}

// Admits reports whether path is admitted into the pipeline, evaluating
// rules in the fixed order: root containment, excluded ancestor directory
// name, hidden-file rule, exclude pattern, extension allow-list, then file
// size. probe is called only if every preceding rule admits the path and
// kind is not a deletion; a rejection from any earlier rule short-circuits
// before probe is ever invoked. A nil probe, or a probe returning nil
// (attribute probing failed, or the path no longer exists), is treated as a
// rejection.
func (f *Filter) Admits(key pathkey.PathKey, kind event.ChangeKind, probe Probe) bool {
	if !f.underAnyRoot(key) {
		return false
	}
	if f.hasExcludedAncestor(key) {
		return false
	}
	if !f.admitHidden && f.hasHiddenComponent(key) {
		return false
	}
	if f.matchesExcludePattern(key) {
		return false
	}
	if !f.passesExtension(key) {
		return false
	}
	if kind == event.Deleted {
		return true
	}
	if !f.passesSize(probe) {
		return false
	}
	return true
}

func (f *Filter) underAnyRoot(key pathkey.PathKey) bool {
	for _, root := range f.roots {
		if key.Under(root) {
			return true
		}
	}
	return false
}

func (f *Filter) hasExcludedAncestor(key pathkey.PathKey) bool {
	if len(f.excludeDirectoryNames) == 0 {
		return false
	}
	current := key.String()
	for {
		base := path.Base(current)
		if _, excluded := f.excludeDirectoryNames[base]; excluded {
			return true
		}
		parent := path.Dir(current)
		if parent == current {
			return false
		}
		current = parent
	}
}

func (f *Filter) hasHiddenComponent(key pathkey.PathKey) bool {
	for _, root := range f.roots {
		if !key.Under(root) {
			continue
		}
		relative := strings.TrimPrefix(strings.TrimPrefix(key.String(), root.String()), "/")
		for _, component := range strings.Split(relative, "/") {
			if strings.HasPrefix(component, ".") && component != "." && component != "" {
				return true
			}
		}
		return false
	}
	return false
}

func (f *Filter) matchesExcludePattern(key pathkey.PathKey) bool {
	name := key.Base()
	for _, pattern := range f.excludePatterns {
		if match, _ := doublestar.Match(pattern, key.String()); match {
			return true
		}
		if match, _ := doublestar.Match(pattern, name); match {
			return true
		}
		if strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}

func (f *Filter) passesExtension(key pathkey.PathKey) bool {
	if f.includeExtensions == nil {
		return true
	}
	_, ok := f.includeExtensions[key.Ext()]
	return ok
}

func (f *Filter) passesSize(probe Probe) bool {
	if probe == nil {
		return false
	}
	attributes := probe()
	if attributes == nil {
		return false
	}
	if attributes.IsDirectory {
		return true
	}
	if f.maxFileSizeBytes == 0 {
		return true
	}
	return attributes.SizeBytes <= f.maxFileSizeBytes
}
