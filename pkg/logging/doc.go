// Package logging provides structured logging configuration for acarsrouter.
//
// This package wraps log/slog to provide consistent logging across all router
// components. It supports configurable log levels (including a trace level
// below debug) and text or JSON output, optionally teed to a second writer.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Info("sink started", "family", "ACARS", "sink", "tcp-send 10.0.0.5:5550")
//	logger.Error("bind failed", "error", err)
//
// # Integration
//
// Components accept a *slog.Logger through an option. If no logger is
// provided they use logging.Nop().
package logging
