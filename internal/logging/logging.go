// Package logging builds the process logger: zap underneath, logr on top.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DEBUG is the logr V() level for per-tick detail. It maps to zap's debug
// level, so it only shows with --log-level=debug.
const DEBUG = 1

type Options struct {
	// Level is debug, info, warn or error.
	Level string
	// Format is json or console.
	Format string
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
	// Tee additionally receives every entry in console format, e.g. the
	// /api/logs ring buffer.
	Tee io.Writer
}

// New returns the logger and a flush function to call before exit.
func New(opts Options) (logr.Logger, func(), error) {
	lvl, err := parseLevel(opts.Level)
	if err != nil {
		return logr.Discard(), func() {}, err
	}
	atomicLevel := zap.NewAtomicLevelAt(lvl)

	var enc zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		enc = zapcore.NewConsoleEncoder(consoleEncoderConfig())
	case "json":
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return logr.Discard(), func() {}, fmt.Errorf("logging: unknown format %q (want json or console)", opts.Format)
	}

	out := opts.Stderr
	if out == nil {
		out = os.Stderr
	}
	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), atomicLevel)}
	if opts.Tee != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig()), zapcore.AddSync(opts.Tee), atomicLevel))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return zapr.NewLogger(z), func() { _ = z.Sync() }, nil
}

func parseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return 0, fmt.Errorf("logging: %w", err)
	}
	return lvl, nil
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
