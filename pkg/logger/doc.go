// Package logger provides structured logging for zester on top of zerolog.
//
// Features:
// - Levels (Debug, Info, Warn, Error, Fatal)
// - Structured fields
// - Colored console output or JSON lines on stderr
// - Optional JSON log file
// - Global logger instance
//
// Basic Usage:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//
//	logger.Info("archive started")
//	logger.WithField("kind", "likes").Info("crawl finished")
//
// Advanced Usage:
//
//	log := logger.GetLogger().WithField("component", "crawler")
//	log.InfoWithFields("page fetched", map[string]interface{}{
//	    "kind":    "likes",
//	    "records": 500,
//	})
//
// Tests use NewNopLogger, or NewTestLogger to assert on captured messages.
package logger
