// Package logging provides the logging facilities used throughout fsobserve.
// It follows the same nil-safe-sublogger design used across the ingestion
// pipeline: every component is handed a *Logger (possibly nil) and never
// needs to check it before calling a method on it.
package logging

import (
	"log"

	"github.com/mattn/go-colorable"
)

func init() {
	// Route the standard logger through go-colorable so that ANSI color
	// codes emitted by fatih/color render correctly on Windows consoles as
	// well as POSIX terminals.
	log.SetOutput(colorable.NewColorableStdout())
	log.SetFlags(log.LstdFlags)
}
