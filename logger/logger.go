// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2014,2015,2017 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package logger

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/flatpak/flatpak-xdg-utils/osutil"
)

// A Logger is a fairly minimal logging tool.
type Logger interface {
	// Notice is for messages that the user should see
	Notice(msg string)
	// Debug is for messages that the user should be able to find if they're debugging something
	Debug(msg string)
}

// DebugEnv is the environment variable that turns on debug output
// regardless of command line options.
const DebugEnv = "FLATPAK_XDG_UTILS_DEBUG"

type nullLogger struct{}

func (nullLogger) Notice(string) {}
func (nullLogger) Debug(string)  {}

// NullLogger is a logger that does nothing
var NullLogger = nullLogger{}

var (
	logger Logger = NullLogger
	lock   sync.Mutex
)

// Panicf notifies the user and then panics
func Panicf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)

	lock.Lock()
	defer lock.Unlock()

	logger.Notice("PANIC " + msg)
	panic(msg)
}

// Noticef notifies the user of something
func Noticef(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)

	lock.Lock()
	defer lock.Unlock()

	logger.Notice(msg)
}

// Debugf records something in the debug log
func Debugf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)

	lock.Lock()
	defer lock.Unlock()

	logger.Debug(msg)
}

// MockLogger replaces the existing logger with a buffer and returns
// the log buffer and a restore function. Debug output is enabled.
func MockLogger() (buf *bytes.Buffer, restore func()) {
	buf = &bytes.Buffer{}
	oldLogger := logger
	l := New(buf, "test")
	l.debug = true
	SetLogger(l)
	return buf, func() {
		SetLogger(oldLogger)
	}
}

// WithLoggerLock invokes f with the global logger lock, useful for
// tests involving goroutines with MockLogger.
func WithLoggerLock(f func()) {
	lock.Lock()
	defer lock.Unlock()

	f()
}

// SetLogger sets the global logger to the given one
func SetLogger(l Logger) {
	lock.Lock()
	defer lock.Unlock()

	logger = l
}

// Log writes notices as "prog: message" and debug lines as
// "F: message", mimicking plain console output.
type Log struct {
	log  *log.Logger
	prog string

	debug bool
}

func (l *Log) debugEnabled() bool {
	return l.debug || osutil.GetenvBool(DebugEnv)
}

// Debug only prints if verbose output was requested
func (l *Log) Debug(msg string) {
	if l.debugEnabled() {
		l.log.Output(3, "F: "+msg)
	}
}

// Notice alerts the user about something
func (l *Log) Notice(msg string) {
	l.log.Output(3, l.prog+": "+msg)
}

// SetDebug turns debug output on or off.
func (l *Log) SetDebug(debug bool) {
	l.debug = debug
}

// New creates a Log writing to w, prefixing notices with prog.
func New(w io.Writer, prog string) *Log {
	return &Log{
		log:  log.New(w, "", 0),
		prog: prog,
	}
}

// SimpleSetup creates the default (console) logger for the running
// program, with debug output enabled if verbose is set.
func SimpleSetup(verbose bool) {
	l := New(os.Stderr, filepath.Base(os.Args[0]))
	l.debug = verbose
	SetLogger(l)
}
