// Package fixlog defines the minimal structured-logging sink the engine
// calls into (spec §1 non-goal "logging sinks" — the core owns the
// interface, not the sink). internal/logging provides the zap-backed
// implementation used by cmd/fixctl; tests use NopLogger.
package fixlog

// Logger is a small structured-logging interface. kv is an even-length
// list of alternating keys and values, following zap's SugaredLogger
// convention.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	// LogMessage records one raw wire frame, direction being "in" or
	// "out" — split from Debug/Info so a deployment can enable message
	// logging independent of event logging (spec §6 "Logging sink").
	LogMessage(direction, raw string)
}

// NopLogger discards everything. Useful in tests and as a default when no
// Logger is supplied.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{})  {}
func (NopLogger) Info(string, ...interface{})   {}
func (NopLogger) Warn(string, ...interface{})   {}
func (NopLogger) Error(string, ...interface{})  {}
func (NopLogger) LogMessage(string, string)     {}
