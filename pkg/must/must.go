// Package must provides small best-effort wrappers around operations whose
// error return is usually ignorable but still worth a log line - closing a
// file after an earlier error already being returned, removing a stale
// temporary file, releasing a checkpoint lock. Trimmed to the handful of
// operations this module actually performs; protobuf/cobra/process-control
// helpers with no caller here were dropped rather than kept unused.
package must

import (
	"fmt"
	"io"
	"os"

	"github.com/inkwell-ai/fsobserve/pkg/logging"
)

// Close closes c, logging a warning if it fails.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn(fmt.Errorf("unable to close: %w", err))
	}
}

// OSRemove removes the file at name, logging a warning if it fails.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil {
		logger.Warn(fmt.Errorf("unable to remove %q: %w", name, err))
	}
}

// Unlock unlocks locker, logging a warning if it fails.
func Unlock(locker interface{ Unlock() error }, logger *logging.Logger) {
	if err := locker.Unlock(); err != nil {
		logger.Warn(fmt.Errorf("unable to unlock locker: %w", err))
	}
}

// RemoveFile removes name from rf, logging a warning if it fails.
func RemoveFile(rf interface{ RemoveFile(string) error }, name string, logger *logging.Logger) {
	if err := rf.RemoveFile(name); err != nil {
		logger.Warn(fmt.Errorf("unable to remove %q: %w", name, err))
	}
}
