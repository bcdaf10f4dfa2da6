// Copyright 2026 The Reins Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger configures the process-wide slog logger.
//
// Logs emitted by third-party libraries through slog are suppressed unless
// the level is debug, so normal output stays focused on runtime events.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

const modulePrefix = "github.com/reins-ai/reins"

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn (warning), error.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}

// moduleFilterHandler suppresses records emitted outside this module unless
// the configured level is debug. Callers are identified by program counter.
type moduleFilterHandler struct {
	next     slog.Handler
	minLevel slog.Level
}

func (h *moduleFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	// The caller is only known at Handle time, so defer filtering there.
	return h.next.Enabled(ctx, level)
}

func (h *moduleFilterHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || fromThisModule(record.PC) {
		return h.next.Handle(ctx, record)
	}
	return nil
}

func (h *moduleFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &moduleFilterHandler{next: h.next.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *moduleFilterHandler) WithGroup(name string) slog.Handler {
	return &moduleFilterHandler{next: h.next.WithGroup(name), minLevel: h.minLevel}
}

// fromThisModule reports whether the program counter belongs to a reins
// package, checking both the symbol name and the source file path.
func fromThisModule(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), modulePrefix) || strings.Contains(file, "reins/")
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m" // red
	case level >= slog.LevelWarn:
		return "\033[33m" // yellow
	case level >= slog.LevelInfo:
		return "\033[36m" // cyan
	default:
		return "\033[90m" // gray
	}
}

func isTerminal(file *os.File) bool {
	if info, err := file.Stat(); err == nil {
		return (info.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// levelName normalizes slog's WARNING spelling to WARN.
func levelName(level slog.Level) string {
	name := level.String()
	if name == "WARNING" {
		name = "WARN"
	}
	return strings.ToUpper(name)
}

// writeRecord renders a record as "LEVEL message k=v ..." with an optional
// timestamp prefix and optional ANSI color on the level token.
func writeRecord(w io.Writer, record slog.Record, withTime, color bool) error {
	var buf strings.Builder

	if withTime && !record.Time.IsZero() {
		buf.WriteString(record.Time.Format("2006/01/02 15:04:05 "))
	}
	if color {
		buf.WriteString(levelColor(record.Level))
		buf.WriteString(levelName(record.Level))
		buf.WriteString("\033[0m")
	} else {
		buf.WriteString(levelName(record.Level))
	}
	buf.WriteString(" ")
	buf.WriteString(record.Message)

	record.Attrs(func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	})
	buf.WriteString("\n")

	_, err := io.WriteString(w, buf.String())
	return err
}

// textHandler renders records in the compact reins format. The verbose
// variant prefixes a timestamp; color is enabled for terminals.
type textHandler struct {
	next     slog.Handler
	writer   io.Writer
	color    bool
	withTime bool
}

func (h *textHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *textHandler) Handle(ctx context.Context, record slog.Record) error {
	return writeRecord(h.writer, record, h.withTime, h.color)
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &textHandler{next: h.next.WithAttrs(attrs), writer: h.writer, color: h.color, withTime: h.withTime}
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	return &textHandler{next: h.next.WithGroup(name), writer: h.writer, color: h.color, withTime: h.withTime}
}

// Init initializes the process-wide logger and installs it as the slog
// default, so libraries logging through slog share the same sink.
//
// format: "simple" (level + message, the default), "verbose" (adds a
// timestamp), or any other value for the standard slog text format.
func Init(level slog.Level, output *os.File, format string) {
	simple := format == "simple" || format == ""
	verbose := format == "verbose"

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
				return slog.String("level", "WARN")
			}
			return a
		},
	}
	base := slog.NewTextHandler(output, opts)

	var handler slog.Handler = base
	if simple || verbose {
		handler = &textHandler{
			next:     base,
			writer:   output,
			color:    isTerminal(output),
			withTime: verbose,
		}
	}

	defaultLogger = slog.New(&moduleFilterHandler{next: handler, minLevel: level})
	slog.SetDefault(defaultLogger)
}

// OpenLogFile opens or creates a log file at the given path in append mode.
// The returned cleanup function closes the file.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}

// GetLogger returns the default logger, initializing it lazily with info
// level and the simple format when Init was never called.
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, "simple")
	}
	return defaultLogger
}
