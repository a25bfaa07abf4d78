// Package cliui renders this client's terminal output: colorized, bracket-
// tagged log lines in the teacher's own "[INFO]\t..." convention, and a
// live progress bar during a download.
package cliui

import (
	"fmt"
	"log"
	"os"

	"github.com/mitchellh/colorstring"
)

// Logger wraps the standard logger with the teacher's bracket-tag
// convention, now rendered in color instead of plain text.
type Logger struct {
	sessionTag string
	std        *log.Logger
}

// NewLogger builds a Logger that prefixes every line with sessionTag (an
// 8-character session id, see internal/session), matching the teacher's
// single process-wide *log.Logger but letting concurrent runs' interleaved
// output be told apart.
func NewLogger(sessionTag string) *Logger {
	return &Logger{
		sessionTag: sessionTag,
		std:        log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Info logs an informational line, matching the teacher's "[INFO]" tag.
func (l *Logger) Info(format string, args ...any) {
	l.tagged("green", "INFO", format, args...)
}

// Warn logs a recoverable-fault line, matching the teacher's "[FAIL]" tag
// for non-fatal per-peer errors.
func (l *Logger) Warn(format string, args ...any) {
	l.tagged("yellow", "FAIL", format, args...)
}

// Error logs a fatal or near-fatal line.
func (l *Logger) Error(format string, args ...any) {
	l.tagged("red", "ERROR", format, args...)
}

func (l *Logger) tagged(color, tag, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	coloredTag := colorstring.Color(fmt.Sprintf("[%s][%s][reset]", color, tag))
	l.std.Printf("%s\t[%s] %s", coloredTag, l.sessionTag, msg)
}
