// Package stats provides the atomic statistics counters shared by
// NativeWatcher, EventCoalescer, and Dispatcher, and read by the
// Orchestrator's status surface. Counters are updated with atomic
// arithmetic only, never guarded by a mutex, and are safe to read
// concurrently by reference.
package stats

import "sync/atomic"

// Watcher holds statistics reported by a NativeWatcher.
type Watcher struct {
	// EventsReceived counts every RawEvent delivered by the platform API.
	EventsReceived uint64
	// EventsDropped counts events dropped due to back-pressure from the
	// coalescer (see the Dispatcher back-pressure chain).
	EventsDropped uint64
	// QueueOverflows counts recoverable queue-overflow conditions (e.g.
	// inotify IN_Q_OVERFLOW) that triggered a synthetic Unknown event.
	QueueOverflows uint64
}

// IncEventsReceived atomically increments the received-event counter.
func (w *Watcher) IncEventsReceived() { atomic.AddUint64(&w.EventsReceived, 1) }

// IncEventsDropped atomically increments the dropped-event counter.
func (w *Watcher) IncEventsDropped() { atomic.AddUint64(&w.EventsDropped, 1) }

// IncQueueOverflows atomically increments the queue-overflow counter.
func (w *Watcher) IncQueueOverflows() { atomic.AddUint64(&w.QueueOverflows, 1) }

// Snapshot returns a consistent-enough point-in-time copy for reporting.
func (w *Watcher) Snapshot() Watcher {
	return Watcher{
		EventsReceived: atomic.LoadUint64(&w.EventsReceived),
		EventsDropped:  atomic.LoadUint64(&w.EventsDropped),
		QueueOverflows: atomic.LoadUint64(&w.QueueOverflows),
	}
}

// Coalescer holds statistics reported by an EventCoalescer.
type Coalescer struct {
	// Pending is the current number of entries in the pending map.
	Pending int64
	// Merged counts every submit that merged into an existing pending entry
	// rather than creating a new one.
	Merged uint64
	// Flushed counts every entry handed off to the Dispatcher.
	Flushed uint64
	// Rejected counts every submit rejected due to the back-pressure limit
	// (Invariant: this is the only case Rejected is ever returned).
	Rejected uint64
}

// IncPending atomically adjusts the current pending count.
func (c *Coalescer) IncPending() { atomic.AddInt64(&c.Pending, 1) }

// DecPending atomically adjusts the current pending count.
func (c *Coalescer) DecPending() { atomic.AddInt64(&c.Pending, -1) }

// IncMerged atomically increments the merge counter.
func (c *Coalescer) IncMerged() { atomic.AddUint64(&c.Merged, 1) }

// IncFlushed atomically increments the flush counter.
func (c *Coalescer) IncFlushed() { atomic.AddUint64(&c.Flushed, 1) }

// IncRejected atomically increments the rejection counter.
func (c *Coalescer) IncRejected() { atomic.AddUint64(&c.Rejected, 1) }

// CoalescingRatio returns the fraction of submits (merged+flushed) that were
// merged away rather than flushed as their own event. Returns 0 while no
// submit has been merged or flushed yet.
func (c *Coalescer) CoalescingRatio() float64 {
	merged := atomic.LoadUint64(&c.Merged)
	flushed := atomic.LoadUint64(&c.Flushed)
	total := merged + flushed
	if total == 0 {
		return 0
	}
	return float64(merged) / float64(total)
}

// Snapshot returns a consistent-enough point-in-time copy for reporting.
func (c *Coalescer) Snapshot() Coalescer {
	return Coalescer{
		Pending:  atomic.LoadInt64(&c.Pending),
		Merged:   atomic.LoadUint64(&c.Merged),
		Flushed:  atomic.LoadUint64(&c.Flushed),
		Rejected: atomic.LoadUint64(&c.Rejected),
	}
}

// Dispatcher holds statistics reported by a Dispatcher.
type Dispatcher struct {
	// Delivered counts events successfully handed to the sink.
	Delivered uint64
	// Retries counts retry attempts made against the sink.
	Retries uint64
	// SinkLatencyNanos accumulates total nanoseconds spent in sink calls,
	// for computing an average latency (SinkLatencyNanos / Delivered).
	SinkLatencyNanos uint64
	// ParserFailures counts non-fatal parser errors/timeouts.
	ParserFailures uint64
}

// IncDelivered atomically increments the delivered counter.
func (d *Dispatcher) IncDelivered() { atomic.AddUint64(&d.Delivered, 1) }

// IncRetries atomically increments the retry counter.
func (d *Dispatcher) IncRetries() { atomic.AddUint64(&d.Retries, 1) }

// AddSinkLatency atomically accumulates sink call latency in nanoseconds.
func (d *Dispatcher) AddSinkLatency(nanos int64) {
	atomic.AddUint64(&d.SinkLatencyNanos, uint64(nanos))
}

// IncParserFailures atomically increments the parser-failure counter.
func (d *Dispatcher) IncParserFailures() { atomic.AddUint64(&d.ParserFailures, 1) }

// Snapshot returns a consistent-enough point-in-time copy for reporting.
func (d *Dispatcher) Snapshot() Dispatcher {
	return Dispatcher{
		Delivered:        atomic.LoadUint64(&d.Delivered),
		Retries:          atomic.LoadUint64(&d.Retries),
		SinkLatencyNanos: atomic.LoadUint64(&d.SinkLatencyNanos),
		ParserFailures:   atomic.LoadUint64(&d.ParserFailures),
	}
}
