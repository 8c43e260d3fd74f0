// Package logging provides categorized file-based logging for socialNERD.
// Logs are written to <dir>/logs/ with a separate file per category.
// When debug mode is off the whole package is a silent no-op, so hot paths
// can log freely without guarding.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot      Category = "boot"      // startup, config resolution
	CategorySession   Category = "session"   // login state machine, cookies
	CategoryBrowser   Category = "browser"   // transport, navigation, waits
	CategoryDiscovery Category = "discovery" // feed extraction, filtering
	CategorySynthesis Category = "synthesis" // generation backend calls
	CategoryPosting   Category = "posting"   // reply sequencing
	CategoryGovernor  Category = "governor"  // quota, backoff, cooldowns
)

// Logger wraps a standard logger bound to one category file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu          sync.RWMutex
	loggers     = make(map[Category]*Logger)
	logsDir     string
	debugMode   bool
	initialized bool
)

// Initialize sets up the logging directory. When debug is false the
// package stays a no-op and no directory is created.
func Initialize(dir string, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	debugMode = debug
	initialized = true
	if !debug {
		return nil
	}
	if dir == "" {
		return fmt.Errorf("logging directory required")
	}

	logsDir = filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}
	return nil
}

// Shutdown closes all open log files.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	for cat, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
		delete(loggers, cat)
	}
	initialized = false
}

// Get returns the logger for a category, creating it on first use.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category}
	if debugMode && logsDir != "" {
		path := filepath.Join(logsDir, string(category)+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			l.file = f
			l.logger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
		}
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level, format string, args ...interface{}) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) { l.write("DEBUG", format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.write("INFO", format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.write("WARN", format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.write("ERROR", format, args...) }

// Category convenience wrappers, one pair per subsystem.

func Boot(format string, args ...interface{})    { Get(CategoryBoot).Info(format, args...) }
func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}
func Browser(format string, args ...interface{}) { Get(CategoryBrowser).Info(format, args...) }
func BrowserDebug(format string, args ...interface{}) {
	Get(CategoryBrowser).Debug(format, args...)
}
func Discovery(format string, args ...interface{}) { Get(CategoryDiscovery).Info(format, args...) }
func DiscoveryWarn(format string, args ...interface{}) {
	Get(CategoryDiscovery).Warn(format, args...)
}
func Synthesis(format string, args ...interface{}) { Get(CategorySynthesis).Info(format, args...) }
func Posting(format string, args ...interface{})   { Get(CategoryPosting).Info(format, args...) }
func Governor(format string, args ...interface{})  { Get(CategoryGovernor).Info(format, args...) }
func GovernorDebug(format string, args ...interface{}) {
	Get(CategoryGovernor).Debug(format, args...)
}
