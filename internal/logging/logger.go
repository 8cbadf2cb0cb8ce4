// Package logging provides config-driven categorized file-based logging for taskhive.
// Logs are written to .hive/logs/ with separate files per category.
// Logging is controlled by debug_mode in .hive/config.json - when false, no logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot         Category = "boot"         // Boot/initialization
	CategoryScheduler    Category = "scheduler"    // Task distribution and rebalancing
	CategoryCache        Category = "cache"        // Response cache hits/misses/sweeps
	CategoryVerification Category = "verification" // VBH header generation and validation
	CategoryComplexity   Category = "complexity"   // Complexity scoring and trend tracking
	CategoryFacts        Category = "facts"        // Fact store load/persist
	CategoryStore        Category = "store"        // Document store I/O
)

// loggingConfig mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type loggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories"`
	Level      string          `json:"level"`
}

// configFile structure for reading .hive/config.json
type configFile struct {
	Logging loggingConfig `json:"logging"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".hive", "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	// Only create logs directory if debug mode is enabled
	if !config.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== taskhive logging initialized ===")
	boot.Info("Workspace: %s", workspace)
	boot.Info("Log level: %s", config.Level)

	return nil
}

// loadConfig reads the logging config from .hive/config.json
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(workspace, ".hive", "config.json")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config = production mode (no logging)
			config.DebugMode = false
			return nil
		}
		return err
	}

	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	config = cf.Logging

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	return nil
}

// ReloadConfig reloads the config from disk.
// Call this if config changes at runtime.
func ReloadConfig() error {
	return loadConfig()
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}
	if logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix for easy rotation
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Scheduler logs to the scheduler category
func Scheduler(format string, args ...interface{}) {
	Get(CategoryScheduler).Info(format, args...)
}

// SchedulerDebug logs debug to the scheduler category
func SchedulerDebug(format string, args ...interface{}) {
	Get(CategoryScheduler).Debug(format, args...)
}

// SchedulerWarn logs warning to the scheduler category
func SchedulerWarn(format string, args ...interface{}) {
	Get(CategoryScheduler).Warn(format, args...)
}

// Cache logs to the cache category
func Cache(format string, args ...interface{}) {
	Get(CategoryCache).Info(format, args...)
}

// CacheDebug logs debug to the cache category
func CacheDebug(format string, args ...interface{}) {
	Get(CategoryCache).Debug(format, args...)
}

// CacheWarn logs warning to the cache category
func CacheWarn(format string, args ...interface{}) {
	Get(CategoryCache).Warn(format, args...)
}

// Verification logs to the verification category
func Verification(format string, args ...interface{}) {
	Get(CategoryVerification).Info(format, args...)
}

// VerificationDebug logs debug to the verification category
func VerificationDebug(format string, args ...interface{}) {
	Get(CategoryVerification).Debug(format, args...)
}

// Complexity logs to the complexity category
func Complexity(format string, args ...interface{}) {
	Get(CategoryComplexity).Info(format, args...)
}

// ComplexityDebug logs debug to the complexity category
func ComplexityDebug(format string, args ...interface{}) {
	Get(CategoryComplexity).Debug(format, args...)
}

// Facts logs to the facts category
func Facts(format string, args ...interface{}) {
	Get(CategoryFacts).Info(format, args...)
}

// FactsWarn logs warning to the facts category
func FactsWarn(format string, args ...interface{}) {
	Get(CategoryFacts).Warn(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreWarn logs warning to the store category
func StoreWarn(format string, args ...interface{}) {
	Get(CategoryStore).Warn(format, args...)
}

// StoreError logs error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
