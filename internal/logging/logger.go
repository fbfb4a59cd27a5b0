// Package logging provides the shared, category-scoped logger for gdcore.
// Every subsystem logs through a named zap logger obtained via Get, so
// output can be filtered per category without each package owning its own
// logging setup.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryDocument   Category = "document"   // Document store, XML loading
	CategorySafety     Category = "safety"     // File safety manager
	CategoryBackup     Category = "backup"     // Backup creation and rotation
	CategoryAudit      Category = "audit"      // Audit trail writer
	CategoryValidation Category = "validation" // Rule engine
	CategoryWatch      Category = "watch"      // Directory watcher
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*zap.Logger)
)

// Initialize installs the process-wide logger. debug switches the level to
// Debug and enables development-style output. Safe to call more than once;
// later calls replace the root and drop cached category loggers.
func Initialize(debug bool) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = make(map[Category]*zap.Logger)
	return nil
}

// Get returns the named logger for a category, creating it on first use.
// Before Initialize is called, Get returns a no-op logger so library code
// can log unconditionally.
func Get(cat Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	if root == nil {
		root = zap.NewNop()
	}
	l := root.Named(string(cat))
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}
