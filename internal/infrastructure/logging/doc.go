// Package logging provides structured logging for camcore.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	mgr := camera.New(camera.Options{Logger: logger.With("component", "manager"), ...})
//
// Each core package declares its own minimal Logger interface
// (Debug/Info/Warn/Error with key-value args); *Logger satisfies all of them.
package logging
