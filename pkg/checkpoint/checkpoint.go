// Package checkpoint implements ScanProgressStore: durable, atomically
// written checkpointing of index-scan progress, so a restarted scan can
// resume rather than starting over, and so a scan from a stale
// configuration is detected and discarded. The atomic-write-via-temp-file-
// and-rename technique is taken directly from filesystem.WriteFileAtomic
// (pkg/filesystem/atomic.go); concurrent-scan protection reuses the
// cross-platform advisory file lock in pkg/filesystem/locking.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/fsobserve/pkg/filesystem"
	"github.com/inkwell-ai/fsobserve/pkg/filesystem/locking"
	"github.com/inkwell-ai/fsobserve/pkg/logging"
	"github.com/inkwell-ai/fsobserve/pkg/must"
)

// ErrCheckpointStale indicates a Checkpoint was rejected because it no
// longer matches the current configuration fingerprint, is older than
// MaxAge, or failed to decode.
var ErrCheckpointStale = errors.New("checkpoint: stale or invalid")

// MaxAge bounds how old a checkpoint may be before it is treated as stale
// even if its fingerprint still matches, since the underlying filesystem
// may have changed significantly in the meantime.
const MaxAge = 24 * time.Hour

// BatchProgress records the cursor position within a single scan batch.
type BatchProgress struct {
	Label        string `json:"label"`
	LastPathSeen string `json:"last_path_seen"`
	Completed    bool   `json:"completed"`
}

// Checkpoint is the durable record of an in-progress or completed index
// scan.
type Checkpoint struct {
	SessionID         string          `json:"session_id"`
	ConfigFingerprint [32]byte        `json:"config_fingerprint"`
	StartedAt         time.Time       `json:"started_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Batches           []BatchProgress `json:"batches"`
}

// NewSession creates a fresh Checkpoint with a new session identifier.
func NewSession(fingerprint [32]byte, now time.Time) Checkpoint {
	return Checkpoint{
		SessionID:         uuid.NewString(),
		ConfigFingerprint: fingerprint,
		StartedAt:         now,
		UpdatedAt:         now,
	}
}

// Store persists Checkpoints to a single file path, guarded by an advisory
// lock so two concurrent scan processes can't corrupt each other's
// progress.
type Store struct {
	path   string
	lock   *locking.Locker
	logger *logging.Logger
}

// Open creates a Store backed by path, creating the lock file alongside it
// if necessary.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.RootLogger.Sublogger("checkpoint")
	}
	locker, err := locking.NewLocker(path+".lock", 0o644)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: unable to create lock: %w", err)
	}
	return &Store{path: path, lock: locker, logger: logger}, nil
}

// Acquire takes the exclusive scan lock, blocking if another process
// currently holds it.
func (s *Store) Acquire() error {
	return s.lock.Lock(true)
}

// Release releases the exclusive scan lock.
func (s *Store) Release() {
	must.Unlock(s.lock, s.logger)
}

// Load reads the persisted Checkpoint, validating it against the current
// configuration fingerprint. It returns ErrCheckpointStale (never a raw
// decode error) if the file is missing, malformed, fingerprint-mismatched,
// or older than MaxAge - any of these cases means the scan should restart
// from scratch rather than resume.
func (s *Store) Load(currentFingerprint [32]byte, now time.Time) (Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrCheckpointStale, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: malformed checkpoint: %v", ErrCheckpointStale, err)
	}

	if cp.ConfigFingerprint != currentFingerprint {
		return Checkpoint{}, fmt.Errorf("%w: configuration fingerprint changed", ErrCheckpointStale)
	}
	if now.Sub(cp.UpdatedAt) > MaxAge {
		return Checkpoint{}, fmt.Errorf("%w: checkpoint older than %s", ErrCheckpointStale, MaxAge)
	}

	return cp, nil
}

// Save atomically persists cp to the store's path.
func (s *Store) Save(cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("checkpoint: unable to encode: %w", err)
	}
	if err := filesystem.WriteFileAtomic(s.path, data, 0o644, s.logger); err != nil {
		return fmt.Errorf("checkpoint: unable to persist: %w", err)
	}
	return nil
}

// Remove deletes the persisted checkpoint, used once a scan completes
// successfully so the next run starts fresh rather than resuming a
// finished session.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: unable to remove: %w", err)
	}
	return nil
}

// DefaultPath returns the conventional checkpoint file location under a
// state directory, named after the watch root it tracks progress for so
// multiple roots don't collide.
func DefaultPath(stateDir string, rootLabel string) string {
	return filepath.Join(stateDir, "scan-checkpoint-"+rootLabel+".json")
}
