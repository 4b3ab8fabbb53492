// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Logger provides a simple logging interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

// Level 日志级别
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

// ParseLevel maps "debug", "info" and "error" to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Options 日志配置
type Options struct {
	Prefix string
	Level  Level
	Output io.Writer
	// File is appended to in addition to Output when set.
	File string
}

type defaultLogger struct {
	prefix string
	level  Level
	out    *log.Logger
}

// New returns an info-level logger writing to stderr.
func New(prefix string) Logger {
	l, _ := NewWithOptions(Options{Prefix: prefix, Level: LevelInfo})
	return l
}

// NewWithOptions builds a logger. The returned closer releases the log file, if any.
func NewWithOptions(opts Options) (Logger, io.Closer) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err == nil {
			if f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
				out = io.MultiWriter(out, f)
				closer = f
			} else {
				fmt.Fprintf(out, "[ERROR] open log file %s: %v\n", opts.File, err)
			}
		}
	}
	prefix := ""
	if opts.Prefix != "" {
		prefix = "[" + opts.Prefix + "] "
	}
	return &defaultLogger{
		prefix: prefix,
		level:  opts.Level,
		out:    log.New(out, "", log.LstdFlags),
	}, closer
}

func (l *defaultLogger) Info(format string, args ...interface{}) {
	if l.level > LevelInfo {
		return
	}
	l.out.Printf("[INFO] "+l.prefix+format, args...)
}

func (l *defaultLogger) Error(format string, args ...interface{}) {
	l.out.Printf("[ERROR] "+l.prefix+format, args...)
}

func (l *defaultLogger) Debug(format string, args ...interface{}) {
	if l.level > LevelDebug {
		return
	}
	l.out.Printf("[DEBUG] "+l.prefix+format, args...)
}

// WithPrefix returns a logger that prepends "prefix: " to every message.
func WithPrefix(l Logger, prefix string) Logger {
	if l == nil {
		return Nop()
	}
	return &prefixed{logger: l, prefix: prefix + ": "}
}

type prefixed struct {
	logger Logger
	prefix string
}

func (p *prefixed) Info(format string, args ...interface{}) {
	p.logger.Info(p.prefix+format, args...)
}

func (p *prefixed) Error(format string, args ...interface{}) {
	p.logger.Error(p.prefix+format, args...)
}

func (p *prefixed) Debug(format string, args ...interface{}) {
	p.logger.Debug(p.prefix+format, args...)
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns l, or a nop logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

type nopLogger struct{}

func (nopLogger) Info(format string, args ...interface{})  {}
func (nopLogger) Error(format string, args ...interface{}) {}
func (nopLogger) Debug(format string, args ...interface{}) {}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
