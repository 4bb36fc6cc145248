// Copyright 2025 The blobwagon Authors
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

// Package logger provides component-scoped structured logging on top of zap.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "debug"
	INFO  LogLevel = "info"
	WARN  LogLevel = "warn"
	ERROR LogLevel = "error"
)

// Format selects the output encoding
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

// Config holds process-wide logger settings
type Config struct {
	Level  LogLevel
	Format Format
}

var (
	rootMu sync.RWMutex
	root   = mustBuild(Config{Level: INFO, Format: JSONFormat})
)

// Configure replaces the process-wide zap core. Loggers created before the
// call keep their previous core.
func Configure(cfg Config) error {
	z, err := build(cfg)
	if err != nil {
		return err
	}
	rootMu.Lock()
	root = z
	rootMu.Unlock()
	return nil
}

// Logger writes structured entries tagged with a component name
type Logger struct {
	Component  string
	InstanceID string
	sugar      *zap.SugaredLogger
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	rootMu.RLock()
	z := root
	rootMu.RUnlock()

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		sugar:      z.With(zap.String("component", component), zap.String("instance_id", instanceID)).Sugar(),
	}
}

// NewWithCore creates a logger writing to the given core. Used by tests to
// capture output.
func NewWithCore(component string, core zapcore.Core) *Logger {
	return &Logger{
		Component:  component,
		InstanceID: "test",
		sugar:      zap.New(core).With(zap.String("component", component)).Sugar(),
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Component: "nop", sugar: zap.NewNop().Sugar()}
}

// With returns a child logger carrying the extra key/value pairs
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		Component:  l.Component,
		InstanceID: l.InstanceID,
		sugar:      l.sugar.With(keysAndValues...),
	}
}

// Log writes a message at the given level with optional fields
func (l *Logger) Log(level LogLevel, message string, fields map[string]interface{}) {
	kv := flatten(fields)
	switch level {
	case DEBUG:
		l.sugar.Debugw(message, kv...)
	case WARN:
		l.sugar.Warnw(message, kv...)
	case ERROR:
		l.sugar.Errorw(message, kv...)
	default:
		l.sugar.Infow(message, kv...)
	}
}

// Info logs an informational message
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.Log(INFO, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.Log(WARN, message, fields)
}

// Error logs an error message
func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.Log(ERROR, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.Log(DEBUG, message, fields)
}

// Printf logs a formatted informational message
func (l *Logger) Printf(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// ErrorWithCause logs an error message with the error attached
func (l *Logger) ErrorWithCause(message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(message, fields)
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// ParseLevel converts a string to a LogLevel
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return "", fmt.Errorf("invalid log level: %s", s)
	}
}

func flatten(fields map[string]interface{}) []interface{} {
	if len(fields) == 0 {
		return nil
	}
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}

func build(cfg Config) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case DEBUG:
		level = zapcore.DebugLevel
	case "", INFO:
		level = zapcore.InfoLevel
	case WARN:
		level = zapcore.WarnLevel
	case ERROR:
		level = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == ConsoleFormat {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	// stderr keeps CLI stdout clean for command output
	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)), nil
}

func mustBuild(cfg Config) *zap.Logger {
	z, err := build(cfg)
	if err != nil {
		panic(err)
	}
	return z
}
