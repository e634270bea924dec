// Package watching implements NativeWatcher: the platform-specific
// low-level observer that produces RawEvents for a watch root. Three
// native backends are provided (FSEvents on darwin via mutagen-io/fsevents,
// inotify on linux via golang.org/x/sys/unix with golang/groupcache/lru
// watch eviction, ReadDirectoryChangesW on windows via
// golang.org/x/sys/windows); a fourth, platform-independent polling
// backend is always available as an explicit fallback.
package watching

import (
	"context"
	"time"

	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
	"github.com/inkwell-ai/fsobserve/pkg/stats"
)

// Backend identifies which underlying mechanism a NativeWatcher uses.
type Backend int

const (
	// BackendAuto selects the native backend built for the current
	// platform, and Polling where none is built. A native backend that
	// fails to initialize reports the failure on Watcher.Errors; it is not
	// replaced by Polling.
	BackendAuto Backend = iota
	// BackendNative uses the platform-native recursive watch mechanism.
	BackendNative
	// BackendPolling uses the universal polling fallback.
	BackendPolling
)

// Events is the channel type a NativeWatcher delivers RawEvents on.
// Ordering within a single root is guaranteed; ordering across roots is
// not.
type Events <-chan event.RawEvent

// nativeBackend is the interface each platform implementation satisfies.
type nativeBackend interface {
	// run watches root until ctx is cancelled, sending RawEvents to out
	// (including a synthetic Unknown event when the platform reports lost
	// events) and sending via errs an error that ends the watch. Every
	// RawEvent sent increments statsOut.EventsReceived.
	run(ctx context.Context, root pathkey.PathKey, out chan<- event.RawEvent, errs chan<- error, statsOut *stats.Watcher)
}

// Watcher observes a single watch root and produces RawEvents in OS-
// observed order.
type Watcher struct {
	root    pathkey.PathKey
	backend nativeBackend
	stats   *stats.Watcher

	events chan event.RawEvent
	errs   chan error
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates and starts a Watcher for root using the requested backend
// (BackendAuto picks the platform-native mechanism where one is built for
// this platform and polling otherwise; a native backend that fails to start
// reports the error on Errors and is not replaced by polling, and once
// running, lost native events produce a synthetic Unknown event rather than
// a backend switch).
func New(root pathkey.PathKey, requested Backend, pollInterval time.Duration, statsOut *stats.Watcher) *Watcher {
	backend := selectBackend(requested, pollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		root:    root,
		backend: backend,
		stats:   statsOut,
		events:  make(chan event.RawEvent, 64),
		errs:    make(chan error, 8),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		w.backend.run(ctx, root, w.events, w.errs, w.stats)
	}()

	return w
}

func selectBackend(requested Backend, pollInterval time.Duration) nativeBackend {
	if requested == BackendPolling {
		return newPollingBackend(pollInterval)
	}
	if native := newNativeBackend(); native != nil {
		return native
	}
	return newPollingBackend(pollInterval)
}

// Events returns the channel on which RawEvents are delivered.
func (w *Watcher) Events() Events {
	return w.events
}

// Errors returns the channel on which the backend reports an error that
// ended its watch; the Orchestrator treats each one as a watcher failure
// and applies its restart policy.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// UsingPolling reports whether this Watcher fell back to the universal
// polling backend, either because BackendPolling was requested explicitly
// or because no native backend is built for this platform.
func (w *Watcher) UsingPolling() bool {
	_, polling := w.backend.(*pollingBackend)
	return polling
}

// Stop terminates the watcher's background goroutine and waits for it to
// exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}
