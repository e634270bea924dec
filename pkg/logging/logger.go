package logging

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// colorEnabled reports whether standard output is an interactive terminal.
// When it isn't (e.g. output is piped into the RPC sink process) color codes
// are suppressed so downstream consumers don't have to strip them.
var colorEnabled = isatty.IsTerminal(uintptr(1)) || isatty.IsCygwinTerminal(uintptr(1))

func init() {
	color.NoColor = !colorEnabled
}

// writer is an io.Writer that splits its input stream into lines and writes
// those lines to an underlying logger.
type writer struct {
	// callback is the logging callback.
	callback func(string)
	// buffer is any incomplete line fragment left over from a previous write.
	buffer []byte
}

// trimCarriageReturn trims any single trailing carriage return from the end of
// a byte slice.
func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.Write.
func (w *writer) Write(buffer []byte) (int, error) {
	// Append the data to our internal buffer.
	w.buffer = append(w.buffer, buffer...)

	// Process all lines in the buffer, tracking the number of bytes that we
	// process.
	var processed int
	remaining := w.buffer
	for {
		// Find the index of the next newline character.
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}

		// Process the line.
		w.callback(string(trimCarriageReturn(remaining[:index])))

		// Update the number of bytes that we've processed.
		processed += index + 1

		// Update the remaining slice.
		remaining = remaining[index+1:]
	}

	// If we managed to process bytes, then truncate our internal buffer.
	if processed > 0 {
		// Compute the number of leftover bytes.
		leftover := len(w.buffer) - processed

		// If there are leftover bytes, then shift them to the front of the
		// buffer.
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}

		// Truncate the buffer.
		w.buffer = w.buffer[:leftover]
	}

	// Done.
	return len(buffer), nil
}

// Logger is the main logger type. It has the novel property that it still
// functions if nil, but it doesn't log anything. It is designed to use the
// standard logger provided by the log package, so it respects any flags set
// for that logger. It is safe for concurrent usage.
type Logger struct {
	// prefix is any prefix specified for the logger.
	prefix string
	// level is the maximum level that will be logged by this logger and its
	// subloggers. It is shared with every sublogger derived from the same
	// root, so adjusting it on the root adjusts it everywhere.
	level *uint32
}

// RootLogger is the root logger from which all other loggers derive.
var RootLogger = NewRootLogger(LevelInfo)

// NewRootLogger creates a new root logger with the specified initial level.
func NewRootLogger(level Level) *Logger {
	v := uint32(level)
	return &Logger{level: &v}
}

// Sublogger creates a new sublogger with the specified name.
func (l *Logger) Sublogger(name string) *Logger {
	// If the logger is nil, then the sublogger will be as well.
	if l == nil {
		return nil
	}

	// Compute the new prefix.
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}

	// Create the new logger, sharing the level control with its ancestor.
	return &Logger{
		prefix: prefix,
		level:  l.level,
	}
}

// SetLevel adjusts the logging level for this logger and every sublogger
// derived from it, past or future.
func (l *Logger) SetLevel(level Level) {
	if l != nil {
		atomic.StoreUint32(l.level, uint32(level))
	}
}

// Level returns the logger's current level.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelDisabled
	}
	return Level(atomic.LoadUint32(l.level))
}

// output is the internal logging method.
func (l *Logger) output(calldepth int, line string) {
	// Add a prefix if necessary.
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}

	// Log.
	log.Output(calldepth, line)
}

// Error logs error information with an error prefix and red color. Errors are
// logged unconditionally of level: the error taxonomy in this pipeline treats
// reaching this call as always worth surfacing.
func (l *Logger) Error(err error) {
	if l != nil {
		l.output(3, color.RedString("error: %v", err))
	}
}

// Warn logs error information with a warning prefix and yellow color, if the
// logger's level is at least LevelWarn.
func (l *Logger) Warn(err error) {
	if l != nil && l.Level() >= LevelWarn {
		l.output(3, color.YellowString("warning: %v", err))
	}
}

// Info logs information with semantics equivalent to fmt.Print, if the
// logger's level is at least LevelInfo.
func (l *Logger) Info(v ...interface{}) {
	if l != nil && l.Level() >= LevelInfo {
		l.output(3, fmt.Sprint(v...))
	}
}

// Infof logs information with semantics equivalent to fmt.Printf, if the
// logger's level is at least LevelInfo.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l != nil && l.Level() >= LevelInfo {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Debug logs information with semantics equivalent to fmt.Print, but only if
// the logger's level is at least LevelDebug.
func (l *Logger) Debug(v ...interface{}) {
	if l != nil && l.Level() >= LevelDebug {
		l.output(3, fmt.Sprint(v...))
	}
}

// Debugf logs information with semantics equivalent to fmt.Printf, but only
// if the logger's level is at least LevelDebug.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l != nil && l.Level() >= LevelDebug {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Writer returns an io.Writer that writes lines at LevelInfo.
func (l *Logger) Writer() io.Writer {
	if l == nil || l.Level() < LevelInfo {
		return ioutil.Discard
	}
	return &writer{callback: func(s string) { l.Info(s) }}
}

// DebugWriter returns an io.Writer that writes lines at LevelDebug. When
// debugging is disabled it returns ioutil.Discard, so no line-splitting
// work is done.
func (l *Logger) DebugWriter() io.Writer {
	if l == nil || l.Level() < LevelDebug {
		return ioutil.Discard
	}
	return &writer{callback: func(s string) { l.Debug(s) }}
}
