package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Global logger instance and synchronization
var (
	Logger   *slog.Logger
	loggerMu sync.RWMutex
	logFile  *os.File // Track file handle for cleanup
	isInited bool
	initOnce sync.Once // For lazy initialization in GetLogger
)

// LogLevel represents logging verbosity
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// slogLevel maps a LogLevel onto its slog equivalent; unknown values
// fall back to INFO.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config holds logger configuration
type Config struct {
	Level      LogLevel
	OutputPath string // Empty for stdout, or file path
	Format     string // "json" or "text"
}

// newHandler builds the slog handler for the configured format.
func newHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// openOutput resolves the configured destination, creating parent
// directories for file outputs. The returned file is nil for stdout.
func openOutput(cfg Config) (io.Writer, *os.File, error) {
	if cfg.OutputPath == "" {
		return os.Stdout, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o750); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return file, file, nil
}

// Init initializes the global logger. Call it once at startup; calling
// it again without Close in between is an error.
//
// Example:
//
//	logging.Init(logging.Config{
//	    Level:      logging.LevelDebug,
//	    OutputPath: "logs/stratum.log",
//	    Format:     "json",
//	})
func Init(config Config) error {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if isInited {
		return fmt.Errorf("logger already initialized; call Close() first to reinitialize")
	}

	writer, file, err := openOutput(config)
	if err != nil {
		return err
	}
	logFile = file

	Logger = slog.New(newHandler(writer, config))
	isInited = true
	return nil
}

// InitDefault initializes the logger with INFO-level text output on
// stdout. Safe to call multiple times; only the first call takes effect.
func InitDefault() {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if isInited {
		return
	}

	Logger = slog.New(newHandler(os.Stdout, Config{Level: LevelInfo}))
	isInited = true
}

// Close closes the logger and any open file handle. After Close, Init
// may be called again. Safe to call multiple times.
func Close() error {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if !isInited {
		return nil
	}

	var err error
	if logFile != nil {
		err = logFile.Close()
		logFile = nil
	}

	Logger = nil
	isInited = false

	initOnce = sync.Once{}
	return err
}

// GetLogger returns the current logger. When called before Init, a
// default logger is created lazily via sync.Once so early callers are
// safe.
func GetLogger() *slog.Logger {
	loggerMu.RLock()
	if isInited {
		logger := Logger
		loggerMu.RUnlock()
		return logger
	}
	loggerMu.RUnlock()

	initOnce.Do(InitDefault)

	loggerMu.RLock()
	logger := Logger
	loggerMu.RUnlock()
	return logger
}

// Debug logs a debug message through the global logger
func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, args...)
}

// Info logs an info message through the global logger
func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

// Warn logs a warning message through the global logger
func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, args...)
}

// Error logs an error message through the global logger
func Error(msg string, args ...any) {
	GetLogger().Error(msg, args...)
}
