// Package indexscan implements IndexQueryProvider: the bulk-enumeration
// side of the ingestion pipeline, used for the initial scan of a watch root
// and for periodic full rescans. Where the OS exposes a fast content index
// (Spotlight's mdfind on macOS, locate on Linux) it is used; otherwise a
// recursive directory walk is performed. The walk fallback uses
// spf13/afero so it can be exercised against an in-memory filesystem in
// tests, and its traversal shape follows filesystem.Walk
// (pkg/filesystem/walk.go) generalized to afero.Fs.
package indexscan

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/inkwell-ai/fsobserve/pkg/checkpoint"
	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/logging"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
)

// BatchSize bounds how many paths are grouped into a single BatchProgress
// label during a walk-based scan, matching the label granularity persisted
// to Checkpoint.
const BatchSize = 500

// Sink receives OutboundEvents produced by a scan, and is notified as
// batches complete so progress can be checkpointed.
type Sink interface {
	HandleScanned(event.OutboundEvent)
	BatchCompleted(label string, lastPathSeen string)
}

// Provider enumerates the contents of a watch root in bulk.
type Provider struct {
	fs             afero.Fs
	cpuCeiling     uint8
	logger         *logging.Logger
	pressureSource func() uint8
}

// Option configures a Provider.
type Option func(*Provider)

// WithFilesystem overrides the afero.Fs used for the walk fallback
// (defaults to the real OS filesystem); tests use this to substitute an
// in-memory filesystem.
func WithFilesystem(fs afero.Fs) Option {
	return func(p *Provider) { p.fs = fs }
}

// WithPressureSource overrides how current CPU load is sampled, for tests
// that want to exercise the pressure-guard without real system load.
func WithPressureSource(f func() uint8) Option {
	return func(p *Provider) { p.pressureSource = f }
}

// New creates a Provider.
func New(cpuCeiling uint8, logger *logging.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = logging.RootLogger.Sublogger("indexscan")
	}
	p := &Provider{
		fs:         afero.NewOsFs(),
		cpuCeiling: cpuCeiling,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Scan enumerates root, invoking sink for every admitted path and
// periodically reporting batch completion for checkpointing. It resumes
// after resumeAfter (the LastPathSeen of an incomplete batch from a prior
// Checkpoint) if non-empty, skipping paths already covered.
//
// Platform content indexes are attempted first (mdfind on darwin, locate on
// linux); RecursiveWalk is always the fallback, used directly on windows
// and whenever the platform index command is unavailable or fails.
func (p *Provider) Scan(ctx context.Context, root pathkey.PathKey, resumeAfter string, sink Sink) error {
	sessionID := uuid.NewString()
	p.logger.Infof("starting scan session %s for root %s", sessionID, root)

	switch runtime.GOOS {
	case "darwin":
		if err := p.scanViaMDFind(ctx, root, resumeAfter, sink); err == nil {
			return nil
		}
		p.logger.Debug("mdfind unavailable or failed, falling back to recursive walk")
	case "linux":
		if err := p.scanViaLocate(ctx, root, resumeAfter, sink); err == nil {
			return nil
		}
		p.logger.Debug("locate unavailable or failed, falling back to recursive walk")
	}

	return p.RecursiveWalk(ctx, root, resumeAfter, sink)
}

// RecursiveWalk is the universal fallback scanner, implemented directly
// against afero.Fs so it is exercisable in tests without touching the real
// filesystem.
func (p *Provider) RecursiveWalk(ctx context.Context, root pathkey.PathKey, resumeAfter string, sink Sink) error {
	var batch []string
	var batchIndex int
	skipping := resumeAfter != ""

	flush := func(lastPath string) {
		label := fmt.Sprintf("walk-%d", batchIndex)
		sink.BatchCompleted(label, lastPath)
		batchIndex++
		batch = batch[:0]
	}

	walkErr := afero.Walk(p.fs, root.String(), func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if skipping {
			if path == resumeAfter {
				skipping = false
			}
			return nil
		}

		if err := p.waitForPressure(ctx); err != nil {
			return err
		}

		key, err := pathkey.New(path)
		if err != nil {
			return nil
		}

		outbound := event.OutboundEvent{
			Path: key,
			Kind: event.Created,
			Attributes: &event.FileAttributes{
				SizeBytes:   uint64(info.Size()),
				ModifiedAt:  info.ModTime(),
				IsDirectory: info.IsDir(),
			},
			ObservedAt: time.Now(),
			Origin:     event.OriginInitialScan,
		}
		sink.HandleScanned(outbound)

		batch = append(batch, path)
		if len(batch) >= BatchSize {
			flush(path)
		}
		return nil
	})

	if len(batch) > 0 {
		flush(batch[len(batch)-1])
	}

	return walkErr
}

// waitForPressure blocks briefly while sampled CPU load exceeds
// cpuCeiling, so a full rescan doesn't starve interactive use of the
// machine.
func (p *Provider) waitForPressure(ctx context.Context) error {
	if p.pressureSource == nil || p.cpuCeiling == 0 || p.cpuCeiling >= 100 {
		return nil
	}
	for p.pressureSource() > p.cpuCeiling {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

func (p *Provider) scanViaMDFind(ctx context.Context, root pathkey.PathKey, resumeAfter string, sink Sink) error {
	return p.scanViaLineCommand(ctx, sink, resumeAfter, exec.CommandContext(ctx, "mdfind", "-onlyin", root.String(), ""))
}

func (p *Provider) scanViaLocate(ctx context.Context, root pathkey.PathKey, resumeAfter string, sink Sink) error {
	return p.scanViaLineCommand(ctx, sink, resumeAfter, exec.CommandContext(ctx, "locate", "-r", "^"+root.String()))
}

// scanViaLineCommand runs an external enumeration command that prints one
// path per line and feeds the results through the same batching/attribute
// path as RecursiveWalk would; attribute probing for each path still goes
// through the filesystem, since content indexes generally don't report
// size/mtime in a portable way.
func (p *Provider) scanViaLineCommand(ctx context.Context, sink Sink, resumeAfter string, cmd *exec.Cmd) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("indexscan: unable to open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("indexscan: unable to start %s: %w", cmd.Path, err)
	}

	var batch []string
	var batchIndex int
	skipping := resumeAfter != ""

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if skipping {
			if line == resumeAfter {
				skipping = false
			}
			continue
		}

		if err := p.waitForPressure(ctx); err != nil {
			_ = cmd.Process.Kill()
			return err
		}

		key, keyErr := pathkey.New(filepath.Clean(line))
		if keyErr != nil {
			continue
		}

		var attrs *event.FileAttributes
		if stat, statErr := statPath(key.String()); statErr == nil {
			attrs = stat
		}

		sink.HandleScanned(event.OutboundEvent{
			Path:       key,
			Kind:       event.Created,
			Attributes: attrs,
			ObservedAt: time.Now(),
			Origin:     event.OriginInitialScan,
		})

		batch = append(batch, line)
		if len(batch) >= BatchSize {
			sink.BatchCompleted(fmt.Sprintf("index-%d", batchIndex), line)
			batchIndex++
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		sink.BatchCompleted(fmt.Sprintf("index-%d", batchIndex), batch[len(batch)-1])
	}

	return cmd.Wait()
}

// DefaultCheckpointPath is a convenience wrapper used by the Orchestrator
// to locate this root's checkpoint file.
func DefaultCheckpointPath(stateDir string, root pathkey.PathKey) string {
	return checkpoint.DefaultPath(stateDir, sanitizeLabel(root.String()))
}

// statPath probes a single path's attributes, used to enrich results from
// the external index commands (which report only paths, not metadata).
func statPath(path string) (*event.FileAttributes, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	return &event.FileAttributes{
		SizeBytes:   uint64(info.Size()),
		ModifiedAt:  info.ModTime(),
		IsDirectory: info.IsDir(),
	}, nil
}

func sanitizeLabel(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
