// Package coalescing implements EventCoalescer: per-path debouncing and
// merging of RawEvents before they reach the Dispatcher. The background
// run-loop / reset-timer structure follows the same shape as
// state.Coalescer (pkg/state/coalescer.go), generalized from a single
// coalesced signal to a bounded map of per-path pending entries, each with
// its own debounce deadline.
package coalescing

import (
	"context"
	"sync"
	"time"

	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
	"github.com/inkwell-ai/fsobserve/pkg/stats"
)

// PendingEntry is the coalesced state held for a single path while its
// debounce window is open.
type PendingEntry struct {
	Path         pathkey.PathKey
	Kind         event.ChangeKind
	PreviousPath *pathkey.PathKey
	FirstSeen    time.Time
	LastSeen     time.Time
	deadline     time.Time
}

// Sink receives flushed entries. The Dispatcher implements this.
type Sink interface {
	HandleCoalesced(PendingEntry)
}

// EventCoalescer merges bursts of RawEvents on the same path into a single
// flushed change within a sliding debounce window, bounded by
// max_pending_events to provide back-pressure toward the watcher.
type EventCoalescer struct {
	debounce    time.Duration
	maxPending  int
	sink        Sink
	stats       *stats.Coalescer

	mu      sync.Mutex
	pending map[pathkey.PathKey]*PendingEntry

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an EventCoalescer with the given debounce window and pending
// entry bound, and starts its background flush loop.
func New(debounce time.Duration, maxPending int, sink Sink, statsOut *stats.Coalescer) *EventCoalescer {
	if debounce < 0 {
		debounce = 0
	}
	if maxPending <= 0 {
		maxPending = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &EventCoalescer{
		debounce:   debounce,
		maxPending: maxPending,
		sink:       sink,
		stats:      statsOut,
		pending:    make(map[pathkey.PathKey]*PendingEntry),
		wake:       make(chan struct{}, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

// Submit admits a RawEvent into the coalescer. It merges with any existing
// pending entry for the same path using the following precedence: a
// Deleted event always wins outright and is never overwritten by anything
// that arrives after it; otherwise the incoming kind always replaces the
// prior one, last-writer-wins (a Created followed by a Modified becomes
// Modified); a RenamedTo always carries the original PreviousPath forward.
// Submit returns false if the pending map is already at capacity and
// raw.Path has no existing entry to merge into.
func (c *EventCoalescer) Submit(raw event.RawEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := raw.ObservedAt
	existing, found := c.pending[raw.Path]
	if !found {
		if len(c.pending) >= c.maxPending {
			if c.stats != nil {
				c.stats.IncRejected()
			}
			return false
		}
		c.pending[raw.Path] = &PendingEntry{
			Path:         raw.Path,
			Kind:         raw.Kind,
			PreviousPath: raw.PreviousPath,
			FirstSeen:    now,
			LastSeen:     now,
			deadline:     now.Add(c.debounce),
		}
		if c.stats != nil {
			c.stats.IncPending()
		}
	} else {
		existing.Kind = mergeKind(existing.Kind, raw.Kind)
		if raw.PreviousPath != nil {
			existing.PreviousPath = raw.PreviousPath
		}
		existing.LastSeen = now
		existing.deadline = now.Add(c.debounce)
		if c.stats != nil {
			c.stats.IncMerged()
		}
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// mergeKind applies the merge precedence rules described above.
func mergeKind(existing, incoming event.ChangeKind) event.ChangeKind {
	if incoming == event.Deleted {
		return event.Deleted
	}
	if existing == event.Deleted {
		return existing
	}
	return incoming
}

// run is the background flush loop: it wakes whenever Submit posts to wake,
// and otherwise sleeps until the earliest pending deadline.
func (c *EventCoalescer) run(ctx context.Context) {
	defer close(c.done)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		c.rescheduleLocked(timer)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.wake:
		case <-timer.C:
			c.flushDue()
		}
	}
}

func (c *EventCoalescer) rescheduleLocked(timer *time.Timer) {
	c.mu.Lock()
	var earliest time.Time
	for _, entry := range c.pending {
		if earliest.IsZero() || entry.deadline.Before(earliest) {
			earliest = entry.deadline
		}
	}
	c.mu.Unlock()

	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if earliest.IsZero() {
		timer.Reset(time.Hour)
		return
	}
	delay := time.Until(earliest)
	if delay < 0 {
		delay = 0
	}
	timer.Reset(delay)
}

func (c *EventCoalescer) flushDue() {
	now := time.Now()
	c.mu.Lock()
	due := make([]*PendingEntry, 0)
	for path, entry := range c.pending {
		if !entry.deadline.After(now) {
			due = append(due, entry)
			delete(c.pending, path)
		}
	}
	c.mu.Unlock()

	for _, entry := range due {
		if c.stats != nil {
			c.stats.DecPending()
			c.stats.IncFlushed()
		}
		c.sink.HandleCoalesced(*entry)
	}
}

// Stop terminates the background flush loop, flushing any remaining
// pending entries immediately first so no event is lost.
func (c *EventCoalescer) Stop() {
	c.cancel()
	<-c.done

	c.mu.Lock()
	remaining := make([]*PendingEntry, 0, len(c.pending))
	for path, entry := range c.pending {
		remaining = append(remaining, entry)
		delete(c.pending, path)
	}
	c.mu.Unlock()

	for _, entry := range remaining {
		if c.stats != nil {
			c.stats.DecPending()
			c.stats.IncFlushed()
		}
		c.sink.HandleCoalesced(*entry)
	}
}
