//go:build darwin && cgo

package watching

import (
	"context"
	"path/filepath"
	"time"

	"github.com/mutagen-io/fsevents"

	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
	"github.com/inkwell-ai/fsobserve/pkg/stats"
)

// fseventsChannelCapacity is the capacity of the internal FSEvents events
// channel.
const fseventsChannelCapacity = 50

// fseventsCoalescingPeriod is the latency parameter passed to the FSEvents
// API: the window over which multiple events are coalesced before being
// delivered as a batch.
const fseventsCoalescingPeriod = 10 * time.Millisecond

const fseventsFlags = fsevents.NoDefer | fsevents.WatchRoot | fsevents.FileEvents

// fseventsBackend watches a root natively via the Spotlight FSEvents API,
// which covers an entire directory tree with a single stream.
type fseventsBackend struct{}

func newNativeBackend() nativeBackend {
	return &fseventsBackend{}
}

func (b *fseventsBackend) run(ctx context.Context, root pathkey.PathKey, out chan<- event.RawEvent, errs chan<- error, statsOut *stats.Watcher) {
	target, err := filepath.EvalSymlinks(root.String())
	if err != nil {
		select {
		case errs <- err:
		default:
		}
		return
	}

	rawEvents := make(chan []fsevents.Event, fseventsChannelCapacity)
	stream := &fsevents.EventStream{
		Events:  rawEvents,
		Paths:   []string{target},
		Latency: fseventsCoalescingPeriod,
		Flags:   fseventsFlags,
	}
	stream.Start()
	defer stream.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case eventSet, ok := <-rawEvents:
			if !ok {
				return
			}
			for _, raw := range eventSet {
				if raw.Flags&fsevents.MustScanSubDirs != 0 {
					b.emit(out, statsOut, event.RawEvent{Path: root, Kind: event.Unknown, ObservedAt: time.Now()})
					continue
				}
				if raw.Flags&(fsevents.Mount|fsevents.Unmount) != 0 {
					b.emit(out, statsOut, event.RawEvent{Path: root, Kind: event.Unknown, ObservedAt: time.Now()})
					continue
				}

				key, keyErr := pathkey.New(raw.Path)
				if keyErr != nil {
					continue
				}

				b.emit(out, statsOut, event.RawEvent{Path: key, Kind: classify(raw), ObservedAt: time.Now()})
			}
		}
	}
}

func classify(raw fsevents.Event) event.ChangeKind {
	switch {
	case raw.Flags&fsevents.ItemRemoved != 0:
		return event.Deleted
	case raw.Flags&fsevents.ItemCreated != 0:
		return event.Created
	case raw.Flags&fsevents.ItemRenamed != 0:
		return event.RenamedTo
	case raw.Flags&(fsevents.ItemModified|fsevents.ItemInodeMetaMod) != 0:
		return event.Modified
	default:
		return event.Modified
	}
}

func (b *fseventsBackend) emit(out chan<- event.RawEvent, statsOut *stats.Watcher, raw event.RawEvent) {
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
