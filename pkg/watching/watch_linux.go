//go:build linux

package watching

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unsafe"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sys/unix"

	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
	"github.com/inkwell-ai/fsobserve/pkg/stats"
)

// maximumInotifyWatches bounds the number of directories simultaneously
// watched per root; beyond this, the least-recently-touched watch is
// evicted on an LRU basis.
const maximumInotifyWatches = 8192

const inotifyEventMask = unix.IN_CREATE | unix.IN_MODIFY | unix.IN_DELETE |
	unix.IN_MOVED_FROM | unix.IN_MOVED_TO | unix.IN_ATTRIB | unix.IN_DELETE_SELF

// inotifyBackend recursively watches a root by registering an inotify watch
// on every directory under it, adding watches as subdirectories are
// created and evicting the oldest watches on an LRU basis if the watch
// count would otherwise grow without bound.
type inotifyBackend struct{}

func newNativeBackend() nativeBackend {
	return &inotifyBackend{}
}

func (b *inotifyBackend) run(ctx context.Context, root pathkey.PathKey, out chan<- event.RawEvent, errs chan<- error, statsOut *stats.Watcher) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		select {
		case errs <- fmt.Errorf("inotify_init1 failed: %w", err):
		default:
		}
		return
	}
	defer unix.Close(fd)

	watchToPath := make(map[int32]string)
	var evictor *lru.Cache
	evictor = lru.New(maximumInotifyWatches)
	evictor.OnEvicted = func(key lru.Key, value interface{}) {
		wd := value.(int32)
		delete(watchToPath, wd)
		_, _ = unix.InotifyRmWatch(fd, uint32(wd))
	}

	addWatch := func(path string) {
		wd, watchErr := unix.InotifyAddWatch(fd, path, inotifyEventMask)
		if watchErr != nil {
			return
		}
		watchToPath[int32(wd)] = path
		evictor.Add(path, int32(wd))
	}

	_ = filepath.Walk(root.String(), func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil || info == nil || !info.IsDir() {
			return nil
		}
		addWatch(path)
		return nil
	})

	buffer := make([]byte, 64*1024)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, readErr := unix.Read(fd, buffer)
		if readErr != nil {
			continue
		}
		if n == 0 {
			continue
		}

		offset := 0
		for offset+unix.SizeofInotifyEvent <= n {
			raw := (*unix.InotifyEvent)(unsafe.Pointer(&buffer[offset]))
			nameLen := int(raw.Len)
			var name string
			if nameLen > 0 {
				name = trimNulBytes(buffer[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen])
			}
			offset += unix.SizeofInotifyEvent + nameLen

			if raw.Mask&unix.IN_Q_OVERFLOW != 0 {
				if statsOut != nil {
					statsOut.IncQueueOverflows()
				}
				b.emit(out, statsOut, event.RawEvent{Path: root, Kind: event.Unknown, ObservedAt: time.Now()})
				continue
			}

			dir, known := watchToPath[raw.Wd]
			if !known {
				continue
			}
			var path string
			if name != "" {
				path = filepath.Join(dir, name)
			} else {
				path = dir
			}

			key, keyErr := pathkey.New(path)
			if keyErr != nil {
				continue
			}

			switch {
			case raw.Mask&unix.IN_CREATE != 0:
				b.emit(out, statsOut, event.RawEvent{Path: key, Kind: event.Created, ObservedAt: time.Now()})
				if info, statErr := os.Lstat(path); statErr == nil && info.IsDir() {
					addWatch(path)
				}
			case raw.Mask&(unix.IN_MODIFY|unix.IN_ATTRIB) != 0:
				b.emit(out, statsOut, event.RawEvent{Path: key, Kind: event.Modified, ObservedAt: time.Now()})
			case raw.Mask&(unix.IN_DELETE|unix.IN_DELETE_SELF) != 0:
				b.emit(out, statsOut, event.RawEvent{Path: key, Kind: event.Deleted, ObservedAt: time.Now()})
			case raw.Mask&unix.IN_MOVED_FROM != 0:
				b.emit(out, statsOut, event.RawEvent{Path: key, Kind: event.RenamedFrom, ObservedAt: time.Now()})
			case raw.Mask&unix.IN_MOVED_TO != 0:
				previous := key
				b.emit(out, statsOut, event.RawEvent{Path: key, Kind: event.RenamedTo, PreviousPath: &previous, ObservedAt: time.Now()})
			}
		}
	}
}

func (b *inotifyBackend) emit(out chan<- event.RawEvent, statsOut *stats.Watcher, raw event.RawEvent) {
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

func trimNulBytes(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
