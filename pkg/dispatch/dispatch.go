// Package dispatch implements the Dispatcher: it receives coalesced
// entries, enriches them with attributes and (optionally) extracted
// content, batches them by size and interval, and delivers batches to a
// Sink with bounded retry. The retry-with-sleep-under-cancellation shape
// follows the same pattern as the synchronization controller's reconnect
// loop (pkg/synchronization/controller.go's autoReconnectInterval loop);
// attribute probing follows the extstat.NewFromFileName pattern used by
// agent housekeeping (pkg/agent/housekeeping.go).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mutagen-io/extstat"

	"github.com/inkwell-ai/fsobserve/pkg/coalescing"
	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/logging"
	"github.com/inkwell-ai/fsobserve/pkg/parser"
	"github.com/inkwell-ai/fsobserve/pkg/sink"
	"github.com/inkwell-ai/fsobserve/pkg/stats"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	maxRetries     = 3
)

// Dispatcher batches OutboundEvents and delivers them to a Sink, retrying
// transient failures. It reports through Backlogged when the sink falls
// behind; it does not itself refuse or slow upstream submission.
type Dispatcher struct {
	sink          sink.Sink
	parsers       *parser.Registry
	logger        *logging.Logger
	stats         *stats.Dispatcher
	contentMax    int
	parsingOn     bool
	maxBatchSize  int
	batchInterval time.Duration

	mu    sync.Mutex
	batch []event.OutboundEvent

	flush  chan struct{}
	fatal  chan error
	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures a Dispatcher.
type Options struct {
	MaxBatchSize          int
	BatchInterval         time.Duration
	ContentParsingEnabled bool
	MaxContentLength      int
	Parsers               *parser.Registry
	Stats                 *stats.Dispatcher
	Logger                *logging.Logger
}

// New creates a Dispatcher delivering to the given Sink and starts its
// background batch-flush loop.
func New(s sink.Sink, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.RootLogger.Sublogger("dispatch")
	}
	maxBatch := opts.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sink:          s,
		parsers:       opts.Parsers,
		logger:        logger,
		stats:         opts.Stats,
		contentMax:    opts.MaxContentLength,
		parsingOn:     opts.ContentParsingEnabled,
		maxBatchSize:  maxBatch,
		batchInterval: opts.BatchInterval,
		flush:         make(chan struct{}, 1),
		fatal:         make(chan error, 1),
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	go d.run(ctx)
	return d
}

// HandleCoalesced implements coalescing.Sink: it is invoked by the
// EventCoalescer when a pending entry's debounce window expires.
func (d *Dispatcher) HandleCoalesced(entry coalescing.PendingEntry) {
	outbound := d.enrich(entry)
	d.enqueue(outbound)
}

func (d *Dispatcher) enrich(entry coalescing.PendingEntry) event.OutboundEvent {
	outbound := event.OutboundEvent{
		Path:         entry.Path,
		Kind:         entry.Kind,
		PreviousPath: entry.PreviousPath,
		ObservedAt:   entry.LastSeen,
		Origin:       event.OriginWatcher,
	}

	if entry.Kind != event.Deleted {
		if stat, err := extstat.NewFromFileName(entry.Path.String()); err == nil {
			outbound.Attributes = &event.FileAttributes{
				SizeBytes:   uint64(stat.Size()),
				ModifiedAt:  stat.ModTime(),
				IsDirectory: stat.IsDir(),
			}
		}
	}

	if d.parsingOn && d.parsers != nil && outbound.Attributes != nil && !outbound.Attributes.IsDirectory {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		content, extracted, err := d.parsers.Extract(ctx, entry.Path, d.contentMax)
		cancel()
		if err != nil {
			if d.stats != nil {
				d.stats.IncParserFailures()
			}
			d.logger.Debugf("content extraction failed for %s: %v", entry.Path, err)
		} else if extracted {
			outbound.Content = &content
			outbound.ContentExtracted = true
		}
	}

	return outbound
}

// Backlogged reports whether the internal batch has grown well past its
// target size (four times MaxBatchSize), meaning the sink is falling
// behind. HandleCoalesced and EnqueueScanned keep appending to the batch
// whatever this reports.
func (d *Dispatcher) Backlogged() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batch) >= d.maxBatchSize*4
}

// EnqueueScanned admits an already-enriched OutboundEvent straight into the
// batch queue, bypassing per-path coalescing. IndexQueryProvider uses this:
// initial-scan records have no debounce window to merge against, only
// batching before delivery.
func (d *Dispatcher) EnqueueScanned(e event.OutboundEvent) {
	d.enqueue(e)
}

func (d *Dispatcher) enqueue(e event.OutboundEvent) {
	d.mu.Lock()
	d.batch = append(d.batch, e)
	full := len(d.batch) >= d.maxBatchSize
	d.mu.Unlock()

	if full {
		select {
		case d.flush <- struct{}{}:
		default:
		}
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.batchIntervalOrDefault())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.flushNow(context.Background())
			return
		case <-ticker.C:
			d.flushNow(ctx)
		case <-d.flush:
			d.flushNow(ctx)
		}
	}
}

func (d *Dispatcher) batchIntervalOrDefault() time.Duration {
	if d.batchInterval <= 0 {
		return 300 * time.Millisecond
	}
	return d.batchInterval
}

func (d *Dispatcher) flushNow(ctx context.Context) {
	d.mu.Lock()
	if len(d.batch) == 0 {
		d.mu.Unlock()
		return
	}
	toSend := d.batch
	d.batch = nil
	d.mu.Unlock()

	d.deliverWithRetry(ctx, toSend)
}

// deliverWithRetry delivers a batch, retrying retryable failures up to
// maxRetries times with an exponentially increasing delay that starts at
// retryBaseDelay and doubles on each retry. A failure after exhausting retries is logged
// and the batch is dropped; the Orchestrator surfaces sink health via
// Dispatcher statistics rather than this call failing loudly, since there
// is no caller left to propagate an error to once the background loop owns
// delivery.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, batch []event.OutboundEvent) {
	start := time.Now()
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if d.stats != nil {
				d.stats.IncRetries()
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryBaseDelay * time.Duration(1<<(attempt-1))):
			}
		}
		err = d.sink.Deliver(ctx, batch)
		if err == nil {
			if d.stats != nil {
				for range batch {
					d.stats.IncDelivered()
				}
				d.stats.AddSinkLatency(time.Since(start).Nanoseconds())
			}
			return
		}
		if errors.Is(err, sink.ErrFatal) {
			d.logger.Error(fmt.Errorf("dropping batch of %d events after fatal sink error: %w", len(batch), err))
			select {
			case d.fatal <- err:
			default:
			}
			return
		}
		d.logger.Warn(fmt.Errorf("sink delivery attempt %d failed: %w", attempt+1, err))
	}
	d.logger.Error(fmt.Errorf("dropping batch of %d events after exhausting retries: %w", len(batch), err))
}

// Fatal returns a channel on which a single SinkFatal error is delivered if
// the sink reports an unrecoverable failure; the Orchestrator watches this
// channel to transition to Failed per the error taxonomy.
func (d *Dispatcher) Fatal() <-chan error {
	return d.fatal
}

// Stop terminates the background flush loop after delivering any remaining
// batched events.
func (d *Dispatcher) Stop() {
	d.cancel()
	<-d.done
}
