// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

type Logger struct {
	prefix string
}

var (
	mu           sync.RWMutex
	out          io.Writer = os.Stdout
	baseLogger             = log.New(io.MultiWriter(os.Stdout, recent), "", log.LstdFlags)
	logFile      *os.File
	recent       = newRing(250)
	debugEnabled = os.Getenv("DEBUG") != ""
)

// Init tees log output to stdout and the file at logPath.
// Calling it again replaces the previous file.
func Init(logPath string) error {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	out = io.MultiWriter(os.Stdout, f)
	baseLogger = log.New(io.MultiWriter(out, recent), "", log.LstdFlags)
	return nil
}

// SetOutput redirects all loggers to w. Intended for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	baseLogger = log.New(io.MultiWriter(out, recent), "", log.LstdFlags)
}

// Close cleans up the log file (call on shutdown)
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	out = os.Stdout
	baseLogger = log.New(io.MultiWriter(out, recent), "", log.LstdFlags)
}

// EnableDebug dynamically turns debug logging on/off
func EnableDebug(on bool) {
	mu.Lock()
	debugEnabled = on
	mu.Unlock()
}

// IsDebug returns current debug state
func IsDebug() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugEnabled
}

// Recent returns up to n of the most recently logged lines, oldest first.
func Recent(n int) []string {
	return recent.last(n)
}

func New(prefix string) *Logger {
	return &Logger{prefix: strings.TrimSpace(prefix)}
}

func (l *Logger) printf(level string, withCaller bool, fmtstr string, v ...any) string {
	formatted := fmt.Sprintf(fmtstr, v...)
	mu.RLock()
	bl := baseLogger
	mu.RUnlock()

	if withCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			bl.Printf("[%s] %s: (%s:%d) %s", l.prefix, level, filepath.Base(file), line, formatted)
			return formatted
		}
	}
	bl.Printf("[%s] %s: %s", l.prefix, level, formatted)
	return formatted
}

func (l *Logger) Info(fmtstr string, v ...any) {
	l.printf("INFO", false, fmtstr, v...)
}

func (l *Logger) Warn(fmtstr string, v ...any) {
	l.printf("WARN", false, fmtstr, v...)
}

func (l *Logger) Error(fmtstr string, v ...any) {
	l.printf("ERROR", true, fmtstr, v...)
}

// Fatal logs and panics. pkg/service recovers the panic and turns it into
// a non-zero exit code.
func (l *Logger) Fatal(fmtstr string, v ...any) {
	panic(l.printf("FATAL", true, fmtstr, v...))
}

func (l *Logger) Debug(fmtstr string, v ...any) {
	if !IsDebug() {
		return
	}
	l.printf("DEBUG", false, fmtstr, v...)
}

// ring keeps the last few log lines in memory for the web page.
type ring struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newRing(size int) *ring {
	return &ring{lines: make([]string, size)}
}

func (r *ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		r.lines[r.next] = line
		r.next = (r.next + 1) % len(r.lines)
		if r.next == 0 {
			r.full = true
		}
	}
	return len(p), nil
}

func (r *ring) last(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ordered []string
	if r.full {
		ordered = append(ordered, r.lines[r.next:]...)
	}
	ordered = append(ordered, r.lines[:r.next]...)
	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}
