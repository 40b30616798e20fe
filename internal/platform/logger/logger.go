// Package logger constructs the process-wide structured logger.
package logger

import (
	"os"

	"pkt.systems/pslog"
)

// SubsystemKey is the canonical key for subsystem tags.
const SubsystemKey = "sys"

// New returns a structured logger writing key-value entries to stderr.
func New() pslog.Logger {
	return pslog.NewStructured(os.Stderr).With("app", "registrar")
}

// Noop returns a logger that discards everything; used as the default in
// constructors so call sites may pass nil.
func Noop() pslog.Logger {
	return pslog.NoopLogger()
}

// WithSubsystem attaches a subsystem tag to every log entry.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}
