package cli

import (
	"log/slog"

	"github.com/kmoussa/spacegrab/internal/logger"
)

// InitLogger initializes the global logger for CLI operations
func InitLogger(level, format string) {
	logger.InitLogger(level, logger.OutputFormat(format))
}

// GetLogger returns the configured logger instance
func GetLogger() *slog.Logger {
	return logger.GetLogger()
}

// Info logs an info message
func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

// Debug logs a debug message (only shown when debug level is enabled)
func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	GetLogger().Error(msg, args...)
}
