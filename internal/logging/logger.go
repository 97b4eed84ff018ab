// Package logging provides categorized logging for mend.
// Each subsystem logs under its own category so a failed run can be
// reconstructed per component (toolchain output, parse decisions, symbol
// scans, LLM traffic, patch writes, loop transitions).
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryToolchain Category = "toolchain" // configure/build invocations
	CategoryParse     Category = "parse"     // diagnostic parsing and classification
	CategorySymbols   Category = "symbols"   // project symbol scans
	CategoryRepair    Category = "repair"    // context building and repair requests
	CategoryLLM       Category = "llm"       // reasoning service traffic
	CategoryPatch     Category = "patch"     // file writes and backups
	CategoryLoop      Category = "loop"      // controller state transitions
	CategoryStore     Category = "store"     // attempt history persistence
)

var (
	mu   sync.RWMutex
	root = zap.NewNop().Sugar()
)

// Initialize installs the process-wide logger. Verbose enables debug level;
// otherwise only warnings and errors reach the console. Returns the underlying
// zap logger so the caller can Sync it on shutdown.
func Initialize(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	logger, err := cfg.Build(zap.WithCaller(false))
	if err != nil {
		return nil, err
	}
	mu.Lock()
	root = logger.Sugar()
	mu.Unlock()
	return logger, nil
}

// SetLogger replaces the process-wide logger. Tests use this to capture output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		root = zap.NewNop().Sugar()
		return
	}
	root = l.Sugar()
}

func get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With("cat", string(cat))
}

// Debug logs a debug message under the given category.
func Debug(cat Category, format string, args ...interface{}) {
	get(cat).Debugf(format, args...)
}

// Info logs an info message under the given category.
func Info(cat Category, format string, args ...interface{}) {
	get(cat).Infof(format, args...)
}

// Warn logs a warning under the given category.
func Warn(cat Category, format string, args ...interface{}) {
	get(cat).Warnf(format, args...)
}

// Error logs an error under the given category.
func Error(cat Category, format string, args ...interface{}) {
	get(cat).Errorf(format, args...)
}

// Convenience helpers, one set per subsystem. Call sites read like
// logging.Toolchain("configure exited %d", code).

func Toolchain(format string, args ...interface{})      { Info(CategoryToolchain, format, args...) }
func ToolchainDebug(format string, args ...interface{}) { Debug(CategoryToolchain, format, args...) }
func Parse(format string, args ...interface{})          { Info(CategoryParse, format, args...) }
func ParseDebug(format string, args ...interface{})     { Debug(CategoryParse, format, args...) }
func Symbols(format string, args ...interface{})        { Info(CategorySymbols, format, args...) }
func SymbolsDebug(format string, args ...interface{})   { Debug(CategorySymbols, format, args...) }
func Repair(format string, args ...interface{})         { Info(CategoryRepair, format, args...) }
func RepairDebug(format string, args ...interface{})    { Debug(CategoryRepair, format, args...) }
func LLM(format string, args ...interface{})            { Info(CategoryLLM, format, args...) }
func LLMDebug(format string, args ...interface{})       { Debug(CategoryLLM, format, args...) }
func Patch(format string, args ...interface{})          { Info(CategoryPatch, format, args...) }
func Loop(format string, args ...interface{})           { Info(CategoryLoop, format, args...) }
func LoopDebug(format string, args ...interface{})      { Debug(CategoryLoop, format, args...) }
func Store(format string, args ...interface{})          { Info(CategoryStore, format, args...) }
func StoreWarn(format string, args ...interface{})      { Warn(CategoryStore, format, args...) }
