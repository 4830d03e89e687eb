// Package logging configures CokeDB's structured logger: log/slog with a
// rotating file backend via gopkg.in/natefinch/lumberjack.v2, plus a
// human-readable handler to stderr when running interactively. Every
// transaction boundary and DDL statement is expected to log one
// structured record through this logger (see session.Session).
package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// File, if non-empty, routes logs through a rotating lumberjack.Logger
	// at this path instead of stderr.
	File string
	// MaxSizeMB is lumberjack's MaxSize in megabytes (default 100 if zero).
	MaxSizeMB int
	// Level is the minimum level to emit (default slog.LevelInfo).
	Level slog.Leveler
	// Writer overrides the interactive-stderr destination; used by tests.
	Writer io.Writer
}

// New builds a *slog.Logger per Options. With File set, output goes to a
// rotating file handler (JSON, since rotated files are read by tooling,
// not a human at a terminal). Without File, output goes to Writer (or
// os.Stderr) using a text handler when that destination is a TTY, and
// JSON otherwise.
func New(opts Options) *slog.Logger {
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename: opts.File,
			MaxSize:  maxSizeOr(opts.MaxSizeMB, 100),
			Compress: true,
		}
		return slog.New(slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level}))
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	if isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func maxSizeOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
