package watching

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
	"github.com/inkwell-ai/fsobserve/pkg/stats"
)

// pollingBackend periodically walks the watch root, diffing successive
// snapshots of path -> (size, modtime) to synthesize RawEvents. It trades
// latency and CPU for universal availability: no platform API dependency at
// all, usable on any OS and inside network filesystems where native
// watches are unreliable.
type pollingBackend struct {
	interval time.Duration
}

func newPollingBackend(interval time.Duration) *pollingBackend {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &pollingBackend{interval: interval}
}

type pollingEntry struct {
	size    int64
	modTime time.Time
	isDir   bool
}

func (b *pollingBackend) run(ctx context.Context, root pathkey.PathKey, out chan<- event.RawEvent, errs chan<- error, statsOut *stats.Watcher) {
	previous := b.snapshot(root)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current := b.snapshot(root)
		b.diff(previous, current, out, statsOut)
		previous = current
	}
}

func (b *pollingBackend) snapshot(root pathkey.PathKey) map[string]pollingEntry {
	result := make(map[string]pollingEntry)
	_ = filepath.Walk(root.String(), func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		result[path] = pollingEntry{size: info.Size(), modTime: info.ModTime(), isDir: info.IsDir()}
		return nil
	})
	return result
}

func (b *pollingBackend) diff(previous, current map[string]pollingEntry, out chan<- event.RawEvent, statsOut *stats.Watcher) {
	now := time.Now()

	for path, entry := range current {
		key, err := pathkey.New(path)
		if err != nil {
			continue
		}
		prior, existed := previous[path]
		if !existed {
			b.emit(out, statsOut, event.RawEvent{Path: key, Kind: event.Created, ObservedAt: now})
			continue
		}
		if prior.size != entry.size || !prior.modTime.Equal(entry.modTime) {
			b.emit(out, statsOut, event.RawEvent{Path: key, Kind: event.Modified, ObservedAt: now})
		}
	}

	for path := range previous {
		if _, stillExists := current[path]; stillExists {
			continue
		}
		key, err := pathkey.New(path)
		if err != nil {
			continue
		}
		b.emit(out, statsOut, event.RawEvent{Path: key, Kind: event.Deleted, ObservedAt: now})
	}
}

func (b *pollingBackend) emit(out chan<- event.RawEvent, statsOut *stats.Watcher, raw event.RawEvent) {
	select {
	case out <- raw:
		if statsOut != nil {
			statsOut.IncEventsReceived()
		}
	default:
		if statsOut != nil {
			statsOut.IncEventsDropped()
		}
	}
}
