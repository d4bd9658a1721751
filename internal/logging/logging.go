// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package logging owns the terminal logger and the zap loggers handed to the
// dispatch components. Component logs are written through the terminal
// logger so both share one format and level.
package logging

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	clog "github.com/charmbracelet/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the terminal logger behind the helper functions below. Core packages
// receive their own *zap.Logger and never use L.
var L = clog.New(os.Stderr)

// New builds the terminal logger for level ("debug", "info", "warn",
// "error") and format ("console", "json" or "logfmt") writing to w, and a
// zap logger that writes through it.
func New(w io.Writer, level, format string) (*zap.Logger, *clog.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := clog.Options{
		Level:           toClogLevel(lvl),
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		opts.Formatter = clog.TextFormatter
	case "json":
		opts.Formatter = clog.JSONFormatter
	case "logfmt":
		opts.Formatter = clog.LogfmtFormatter
	default:
		return nil, nil, fmt.Errorf("invalid log format %q (want console, json or logfmt)", format)
	}
	term := clog.NewWithOptions(w, opts)
	return zap.New(&clogCore{LevelEnabler: zap.NewAtomicLevelAt(lvl), l: term}), term, nil
}

// SetLogger replaces L. Passing nil discards helper output.
func SetLogger(l *clog.Logger) {
	if l == nil {
		l = clog.New(io.Discard)
	}
	L = l
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...any) {
	L.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...any) {
	L.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...any) {
	L.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...any) {
	L.Error(fmt.Sprintf(format, v...))
}

// clogCore is a zapcore.Core that hands entries to a terminal logger. The
// zap logger name becomes the prefix; fields become key/value pairs.
type clogCore struct {
	zapcore.LevelEnabler
	l      *clog.Logger
	fields []zapcore.Field
}

func (c *clogCore) With(fields []zapcore.Field) zapcore.Core {
	return &clogCore{
		LevelEnabler: c.LevelEnabler,
		l:            c.l,
		fields:       append(slices.Clip(c.fields), fields...),
	}
}

func (c *clogCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *clogCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	kv := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		kv = append(kv, k, enc.Fields[k])
	}

	l := c.l
	if e.LoggerName != "" {
		l = l.WithPrefix(e.LoggerName)
	}
	l.Log(toClogLevel(e.Level), e.Message, kv...)
	return nil
}

func (c *clogCore) Sync() error { return nil }

// toClogLevel maps zap levels; everything above error is logged as error
// and left to zap to act on.
func toClogLevel(l zapcore.Level) clog.Level {
	switch {
	case l <= zapcore.DebugLevel:
		return clog.DebugLevel
	case l == zapcore.InfoLevel:
		return clog.InfoLevel
	case l == zapcore.WarnLevel:
		return clog.WarnLevel
	default:
		return clog.ErrorLevel
	}
}
