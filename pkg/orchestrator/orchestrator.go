// Package orchestrator implements the Orchestrator: it owns the lifecycle
// state machine, wires NativeWatcher, PathFilter, EventCoalescer,
// Dispatcher, and IndexQueryProvider together per watch root, publishes
// statistics, and is the only component permitted to move the system to
// Failed. Stop is idempotent and shutdown signaling fires only once,
// following the same daemon service lifecycle shape as pkg/daemon/service.go;
// the periodic re-scan task follows pkg/housekeeping/background.go,
// with the fixed ticker replaced by a github.com/robfig/cron/v3 "@every Nh"
// schedule, so re-scans run at a fixed interval counted from Start.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mutagen-io/extstat"
	"github.com/robfig/cron/v3"

	"github.com/inkwell-ai/fsobserve/pkg/checkpoint"
	"github.com/inkwell-ai/fsobserve/pkg/coalescing"
	"github.com/inkwell-ai/fsobserve/pkg/configuration"
	"github.com/inkwell-ai/fsobserve/pkg/dispatch"
	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/filter"
	"github.com/inkwell-ai/fsobserve/pkg/indexscan"
	"github.com/inkwell-ai/fsobserve/pkg/logging"
	"github.com/inkwell-ai/fsobserve/pkg/parser"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
	"github.com/inkwell-ai/fsobserve/pkg/sink"
	"github.com/inkwell-ai/fsobserve/pkg/stats"
	"github.com/inkwell-ai/fsobserve/pkg/watching"
)

// watcherFailureWindow is the window within which a second NativeWatcher
// failure moves the whole system to Failed.
const watcherFailureWindow = 60 * time.Second

// watcherRestartDelay is how long the Orchestrator waits before restarting
// a failed watcher once.
const watcherRestartDelay = 1 * time.Second

// Statistics is a point-in-time snapshot of every component's counters,
// returned by Orchestrator.Statistics for the process-control surface.
type Statistics struct {
	State      State
	Watchers   map[string]stats.Watcher
	Coalescer  stats.Coalescer
	Dispatcher stats.Dispatcher
}

// Options configures an Orchestrator at construction time. StateDir is the
// directory under which per-root checkpoints are persisted; Logger defaults to a sublogger of
// logging.RootLogger.
type Options struct {
	StateDir string
	Logger   *logging.Logger
}

// watchedRoot bundles the per-root components the Orchestrator supervises.
type watchedRoot struct {
	root          pathkey.PathKey
	watcher       *watching.Watcher
	checkpoints   *checkpoint.Store
	failureCount  int
	lastFailureAt time.Time
}

// Orchestrator owns the lifecycle of the ingestion pipeline: it is
// constructed once, Initialise'd with a configuration.Snapshot, Start'ed
// with a sink.Sink, and Stop'ed to tear everything down.
type Orchestrator struct {
	mu    sync.Mutex
	state State

	logger   *logging.Logger
	stateDir string

	config      configuration.Snapshot
	fingerprint [32]byte
	filter      *filter.Filter
	coalescer   *coalescing.EventCoalescer
	dispatcher  *dispatch.Dispatcher
	scanner     *indexscan.Provider
	cron        *cron.Cron
	roots       map[string]*watchedRoot

	coalescerStats  *stats.Coalescer
	dispatcherStats *stats.Dispatcher
	watcherStats    map[string]*stats.Watcher

	errs   chan *Error
	cancel context.CancelFunc
}

// New creates an Orchestrator in the Uninitialised state.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.RootLogger.Sublogger("orchestrator")
	}
	return &Orchestrator{
		state:    Uninitialised,
		logger:   logger,
		stateDir: opts.StateDir,
		roots:    make(map[string]*watchedRoot),
		errs:     make(chan *Error, 16),
	}
}

// Errors returns the Orchestrator's single typed error channel: any
// error a leaf component could not recover from locally is routed here.
func (o *Orchestrator) Errors() <-chan *Error {
	return o.errs
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Statistics returns a point-in-time snapshot of every supervised
// component's counters.
func (o *Orchestrator) Statistics() Statistics {
	o.mu.Lock()
	defer o.mu.Unlock()

	watchers := make(map[string]stats.Watcher, len(o.watcherStats))
	for label, s := range o.watcherStats {
		watchers[label] = s.Snapshot()
	}

	result := Statistics{State: o.state, Watchers: watchers}
	if o.coalescerStats != nil {
		result.Coalescer = o.coalescerStats.Snapshot()
	}
	if o.dispatcherStats != nil {
		result.Dispatcher = o.dispatcherStats.Snapshot()
	}
	return result
}

// Initialise validates cfg and builds every pipeline component, without
// starting any background task. It is the only operation valid from
// Uninitialised, and rejects configuration wholesale rather than starting
// partially (ConfigurationRejected).
func (o *Orchestrator) Initialise(cfg configuration.Snapshot) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != Uninitialised && o.state != Stopped {
		return fmt.Errorf("%w: initialise from %s", ErrInvalidTransition, o.state)
	}

	if err := cfg.Validate(); err != nil {
		return &Error{Kind: ConfigurationRejected, Cause: err}
	}

	roots := make([]pathkey.PathKey, 0, len(cfg.WatchRoots))
	watched := make(map[string]*watchedRoot, len(cfg.WatchRoots))
	for _, raw := range cfg.WatchRoots {
		key, err := pathkey.New(raw)
		if err != nil {
			return &Error{Kind: ConfigurationRejected, Root: raw, Cause: err}
		}
		roots = append(roots, key)

		store, err := checkpoint.Open(checkpoint.DefaultPath(o.stateDir, sanitizeRootLabel(raw)), o.logger.Sublogger("checkpoint"))
		if err != nil {
			return &Error{Kind: ConfigurationRejected, Root: raw, Cause: err}
		}
		watched[raw] = &watchedRoot{root: key, checkpoints: store}
	}

	o.config = cfg
	o.fingerprint = cfg.Fingerprint()
	o.filter = filter.New(roots, cfg)
	o.scanner = indexscan.New(cfg.MDSCPUPercentCeiling, o.logger.Sublogger("indexscan"))
	o.roots = watched
	o.state = Initialising

	return nil
}

// Start wires the coalescer and dispatcher to sink, starts a watcher for
// every configured root, begins the periodic re-scan schedule, and
// transitions to Running. It is rejected from any state other than
// Initialising.
func (o *Orchestrator) Start(s sink.Sink) error {
	o.mu.Lock()
	if o.state != Initialising {
		o.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, o.state)
	}

	dispatcherStats := &stats.Dispatcher{}
	o.dispatcher = dispatch.New(s, dispatch.Options{
		MaxBatchSize:          int(o.config.MaxBatchSize),
		BatchInterval:         o.config.BatchInterval(),
		ContentParsingEnabled: o.config.ContentParsingEnabled,
		MaxContentLength:      int(o.config.MaxContentLength),
		Parsers:               parser.NewRegistry(parser.NewPlainTextParser()),
		Stats:                 dispatcherStats,
		Logger:                o.logger.Sublogger("dispatch"),
	})

	o.dispatcherStats = dispatcherStats
	coalescerStats := &stats.Coalescer{}
	o.coalescerStats = coalescerStats
	o.coalescer = coalescing.New(o.config.DebounceDelay(), int(o.config.MaxPendingEvents), o.dispatcher, coalescerStats)
	o.watcherStats = make(map[string]*stats.Watcher, len(o.roots))

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	o.cron = cron.New()
	if o.config.IndexScanIntervalHours > 0 {
		spec := fmt.Sprintf("@every %dh", o.config.IndexScanIntervalHours)
		_, _ = o.cron.AddFunc(spec, func() { o.rescanAll(ctx) })
	}
	o.cron.Start()

	for label, wr := range o.roots {
		watcherStats := &stats.Watcher{}
		o.watcherStats[label] = watcherStats
		wr.watcher = watching.New(wr.root, watching.BackendAuto, 2*time.Second, watcherStats)
		if wr.watcher.UsingPolling() {
			o.reportError(&Error{Kind: PlatformWatcherUnavailable, Root: label, Cause: fmt.Errorf("no native watcher usable, falling back to polling")})
		}
		go o.superviseWatcher(ctx, label, wr, watcherStats)
	}

	o.state = Running
	o.mu.Unlock()

	go o.watchDispatcherFatal(ctx)
	go o.rescanAll(ctx)

	return nil
}

// watchDispatcherFatal surfaces a SinkFatal condition reported by the
// Dispatcher to the Orchestrator's error channel. The Dispatcher itself is left running so
// unaffected roots keep flowing; only the embedder's visibility changes.
func (o *Orchestrator) watchDispatcherFatal(ctx context.Context) {
	select {
	case <-ctx.Done():
	case err, ok := <-o.dispatcher.Fatal():
		if ok {
			o.reportError(&Error{Kind: SinkFatal, Cause: err})
		}
	}
}

// superviseWatcher forwards RawEvents from a single watcher into the
// filter/coalescer, and applies the recovery policy to recoverable
// backend errors: one automatic restart after 1s, a second failure within
// the window moves the whole system to Failed.
func (o *Orchestrator) superviseWatcher(ctx context.Context, label string, wr *watchedRoot, statsOut *stats.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-wr.watcher.Events():
			if !ok {
				return
			}
			if raw.Kind == event.Unknown {
				o.reportError(&Error{Kind: WatcherQueueOverflow, Root: label, Cause: fmt.Errorf("watcher signaled a gap, scheduling re-scan")})
				go o.scanRoot(ctx, label, wr)
				continue
			}
			o.admitRaw(raw, statsOut)
		case err, ok := <-wr.watcher.Errors():
			if !ok {
				return
			}
			if o.handleWatcherFailure(label, wr, err) {
				return
			}
			wr.watcher.Stop()
			select {
			case <-ctx.Done():
				return
			case <-time.After(watcherRestartDelay):
			}
			wr.watcher = watching.New(wr.root, watching.BackendAuto, 2*time.Second, statsOut)
		}
	}
}

// handleWatcherFailure applies the recovery policy and reports whether the
// system was moved to Failed as a result.
func (o *Orchestrator) handleWatcherFailure(label string, wr *watchedRoot, cause error) bool {
	now := time.Now()
	o.mu.Lock()
	if wr.failureCount > 0 && now.Sub(wr.lastFailureAt) <= watcherFailureWindow {
		o.state = Failed
		o.mu.Unlock()
		o.reportError(&Error{Kind: WatcherFailed, Root: label, Cause: cause})
		return true
	}
	wr.failureCount++
	wr.lastFailureAt = now
	o.mu.Unlock()
	o.reportError(&Error{Kind: WatcherFailed, Root: label, Cause: cause})
	return false
}

func (o *Orchestrator) admitRaw(raw event.RawEvent, statsOut *stats.Watcher) {
	if !o.filter.Admits(raw.Path, raw.Kind, lazyProbe(raw)) {
		return
	}
	if !o.coalescer.Submit(raw) && statsOut != nil {
		statsOut.IncEventsDropped()
	}
}

func (o *Orchestrator) reportError(err *Error) {
	o.logger.Warn(err)
	select {
	case o.errs <- err:
	default:
	}
}

// TriggerRescan starts an out-of-band Initial-Scan-shaped pass over root,
// resuming from any valid checkpoint. It is valid only while Running.
func (o *Orchestrator) TriggerRescan(root string) error {
	o.mu.Lock()
	if o.state != Running {
		o.mu.Unlock()
		return fmt.Errorf("%w: rescan while %s", ErrInvalidTransition, o.state)
	}
	wr, ok := o.roots[root]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoot, root)
	}

	go o.scanRoot(context.Background(), root, wr)
	return nil
}

func (o *Orchestrator) rescanAll(ctx context.Context) {
	o.mu.Lock()
	roots := make(map[string]*watchedRoot, len(o.roots))
	for label, wr := range o.roots {
		roots[label] = wr
	}
	o.mu.Unlock()

	for label, wr := range roots {
		o.scanRoot(ctx, label, wr)
	}
}

func (o *Orchestrator) scanRoot(ctx context.Context, label string, wr *watchedRoot) {
	resumeAfter := ""
	if cp, err := wr.checkpoints.Load(o.fingerprint, time.Now()); err == nil {
		for _, batch := range cp.Batches {
			if !batch.Completed {
				resumeAfter = batch.LastPathSeen
				break
			}
		}
	}

	adapter := &scanSink{o: o, wr: wr, fingerprint: o.fingerprint}
	if err := o.scanner.Scan(ctx, wr.root, resumeAfter, adapter); err != nil {
		o.logger.Warn(fmt.Errorf("scan of %s did not complete cleanly: %w", label, err))
		return
	}
	_ = wr.checkpoints.Remove()
}

// scanSink adapts indexscan.Sink to the filter and Dispatcher, and
// checkpoints progress as batches complete.
type scanSink struct {
	o           *Orchestrator
	wr          *watchedRoot
	fingerprint [32]byte
}

func (s *scanSink) HandleScanned(e event.OutboundEvent) {
	attributes := e.Attributes
	if !s.o.filter.Admits(e.Path, e.Kind, func() *event.FileAttributes { return attributes }) {
		return
	}
	s.o.dispatcher.EnqueueScanned(e)
}

func (s *scanSink) BatchCompleted(label, lastPathSeen string) {
	cp := checkpoint.NewSession(s.fingerprint, time.Now())
	cp.Batches = []checkpoint.BatchProgress{{Label: label, LastPathSeen: lastPathSeen}}
	if err := s.wr.checkpoints.Save(cp); err != nil {
		s.o.logger.Warn(fmt.Errorf("unable to persist scan checkpoint: %w", err))
	}
}

// Stop cancels every background task and waits for them to settle. It is
// idempotent: calling it twice is observationally equivalent to calling it
// once.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if o.state == Stopped || o.state == Stopping {
		o.mu.Unlock()
		return nil
	}
	if o.state != Running {
		o.state = Stopped
		o.mu.Unlock()
		return nil
	}
	o.state = Stopping
	cancel := o.cancel
	roots := o.roots
	coalescer := o.coalescer
	dispatcher := o.dispatcher
	scheduler := o.cron
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	for _, wr := range roots {
		if wr.watcher != nil {
			wr.watcher.Stop()
		}
	}
	if coalescer != nil {
		coalescer.Stop()
	}
	if dispatcher != nil {
		dispatcher.Stop()
	}

	o.mu.Lock()
	o.state = Stopped
	o.mu.Unlock()
	return nil
}

func sanitizeRootLabel(raw string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	label := replacer.Replace(strings.Trim(raw, "/\\"))
	if label == "" {
		return "root"
	}
	return label
}

// lazyProbe returns a filter.Probe that stats raw.Path only when actually
// invoked. The watcher hot path must not pay a stat syscall for every raw
// event up front: Filter.Admits only calls the probe once root containment,
// ancestor exclusion, the hidden rule, exclude patterns, and the extension
// allow-list have already admitted the path, so paths rejected earlier never
// reach the filesystem. A Deleted event never needs attributes, since
// PathFilter always admits deletions regardless of size.
func lazyProbe(raw event.RawEvent) filter.Probe {
	if raw.Kind == event.Deleted {
		return nil
	}
	return func() *event.FileAttributes {
		stat, err := extstat.NewFromFileName(raw.Path.String())
		if err != nil {
			return nil
		}
		return &event.FileAttributes{
			SizeBytes:   uint64(stat.Size()),
			ModifiedAt:  stat.ModTime(),
			IsDirectory: stat.IsDir(),
		}
	}
}
