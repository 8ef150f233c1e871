// Package logger provides structured logging for the Redis client.
//
// It wraps log/slog to provide structured JSON logging with automatic
// redaction of credentials:
//
//   - JSON structured logging (default), text handler optional
//   - Redaction of password-bearing fields and redis:// URI userinfo
//   - Context-aware logging with connection ID propagation
//   - Dynamic log level adjustment
//
// A library must stay quiet unless asked: the package default logger logs
// at warn level to stderr. The level is process-wide: every New call and
// SetLevel change it for all loggers, the default logger included.
package logger
