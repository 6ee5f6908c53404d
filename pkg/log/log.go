// Copyright 2025 The pki-server Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is a thin wrapper around zap. All pki-server code logs through
// this package: the global functions log through the root logger, and
// loggers with additional context can be created with New or attached to a
// context.Context with CtxWith.
package log

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultConsoleLevel only lets errors through, mirroring a command line
	// tool that stays quiet unless asked otherwise.
	DefaultConsoleLevel = "error"
	// DefaultConsoleFormat is the human readable console encoding.
	DefaultConsoleFormat = "human"
)

// Level is a logging level.
type Level zapcore.Level

const (
	DebugLevel = Level(zapcore.DebugLevel)
	InfoLevel  = Level(zapcore.InfoLevel)
	ErrorLevel = Level(zapcore.ErrorLevel)
)

// ParseLevel parses one of "debug", "info" or "error".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return ErrorLevel, fmt.Errorf("unknown log level: %q", s)
	}
}

// ConsoleConfig is the configuration of the console logger.
type ConsoleConfig struct {
	// Level is the minimum level that is logged (debug|info|error).
	Level string `toml:"level,omitempty"`
	// Format is the output encoding (human|json).
	Format string `toml:"format,omitempty"`
	// DisableCaller stops annotating entries with the calling function.
	DisableCaller bool `toml:"disable_caller,omitempty"`
}

// InitDefaults populates unset fields.
func (c *ConsoleConfig) InitDefaults() {
	if c.Level == "" {
		c.Level = DefaultConsoleLevel
	}
	if c.Format == "" {
		c.Format = DefaultConsoleFormat
	}
}

// Config is the logging configuration.
type Config struct {
	Console ConsoleConfig `toml:"console,omitempty"`
}

// InitDefaults populates unset fields.
func (c *Config) InitDefaults() {
	c.Console.InitDefaults()
}

// Logger describes the logger interface.
type Logger interface {
	New(ctx ...any) Logger
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Enabled(lvl Level) bool
}

var (
	rootLogger   = &logger{logger: zap.NewNop()}
	consoleLevel = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
)

// Setup configures the root logger to write to stderr. It can be called more
// than once; the last call wins.
func Setup(cfg Config) error {
	cfg.InitDefaults()
	lvl, err := ParseLevel(cfg.Console.Level)
	if err != nil {
		return err
	}
	consoleLevel.SetLevel(zapcore.Level(lvl))

	encCfg := zap.NewDevelopmentEncoderConfig()
	var enc zapcore.Encoder
	switch cfg.Console.Format {
	case "human":
		encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return fmt.Errorf("unknown log format: %q", cfg.Console.Format)
	}

	opts := []zap.Option{zap.AddCallerSkip(1)}
	if !cfg.Console.DisableCaller {
		opts = append(opts, zap.AddCaller())
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), consoleLevel)
	zl := zap.New(core, opts...)
	rootLogger = &logger{logger: zl}
	zap.ReplaceGlobals(zl)
	return nil
}

// SetLevel changes the console level of an already set up logger.
func SetLevel(lvl Level) {
	consoleLevel.SetLevel(zapcore.Level(lvl))
}

// Flush writes the logs to the underlying buffer.
func Flush() {
	_ = rootLogger.logger.Sync()
}

// HandlePanic catches panics and logs them. Use it as a deferred call at the
// top of goroutines.
func HandlePanic() {
	if msg := recover(); msg != nil {
		rootLogger.logger.Error("Panic", zap.Any("msg", msg), zap.String("stack",
			string(debug.Stack())))
		Flush()
		panic(msg)
	}
}

// Root returns the root logger.
func Root() Logger {
	return rootLogger
}

// New creates a logger with the given context based on the root logger.
func New(ctx ...any) Logger {
	return rootLogger.New(ctx...)
}

// Debug logs at debug level through the root logger.
func Debug(msg string, ctx ...any) {
	rootLogger.logger.Debug(msg, convertCtx(ctx)...)
}

// Info logs at info level through the root logger.
func Info(msg string, ctx ...any) {
	rootLogger.logger.Info(msg, convertCtx(ctx)...)
}

// Error logs at error level through the root logger.
func Error(msg string, ctx ...any) {
	rootLogger.logger.Error(msg, convertCtx(ctx)...)
}

type logger struct {
	logger *zap.Logger
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{logger: l.logger.With(convertCtx(ctx)...)}
}

func (l *logger) Debug(msg string, ctx ...any) {
	l.logger.Debug(msg, convertCtx(ctx)...)
}

func (l *logger) Info(msg string, ctx ...any) {
	l.logger.Info(msg, convertCtx(ctx)...)
}

func (l *logger) Error(msg string, ctx ...any) {
	l.logger.Error(msg, convertCtx(ctx)...)
}

func (l *logger) Enabled(lvl Level) bool {
	return l.logger.Core().Enabled(zapcore.Level(lvl))
}

// WrapZap exposes an existing zap logger through the Logger interface.
func WrapZap(zl *zap.Logger) Logger {
	return &logger{logger: zl}
}

func convertCtx(ctx []any) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(ctx[i]), ctx[i+1]))
	}
	return fields
}
