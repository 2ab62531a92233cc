package obslog

import (
	"fmt"

	"github.com/andymwolf/solveengine/internal/security"
)

// SecureLogger wraps a Logger and sanitizes every message and label map
// before it reaches the wrapped logger. Every component that might log
// agent output, PR bodies, or subprocess stderr goes through this rather
// than a bare Logger, since any of those can echo back a token the
// workspace environment handed the agent.
type SecureLogger struct {
	Logger
	sanitizer     *security.LogSanitizer
	pathSanitizer *security.PathSanitizer
}

// NewSecureLogger wraps an existing Logger with sanitization.
func NewSecureLogger(inner Logger) *SecureLogger {
	return &SecureLogger{
		Logger:        inner,
		sanitizer:     security.NewLogSanitizer(),
		pathSanitizer: security.NewPathSanitizer(),
	}
}

func (sl *SecureLogger) Info(msg string) {
	sl.Logger.Info(sl.sanitizer.Sanitize(msg))
}

func (sl *SecureLogger) Infof(format string, args ...interface{}) {
	sl.Logger.Info(sl.sanitizer.Sanitize(fmt.Sprintf(format, args...)))
}

func (sl *SecureLogger) Warning(msg string) {
	sl.Logger.Warning(sl.sanitizer.Sanitize(msg))
}

func (sl *SecureLogger) Warningf(format string, args ...interface{}) {
	sl.Logger.Warning(sl.sanitizer.Sanitize(fmt.Sprintf(format, args...)))
}

func (sl *SecureLogger) Error(msg string) {
	sl.Logger.Error(sl.sanitizer.Sanitize(msg))
}

func (sl *SecureLogger) Errorf(format string, args ...interface{}) {
	sl.Logger.Error(sl.sanitizer.Sanitize(fmt.Sprintf(format, args...)))
}

// Log sanitizes both the message and any string-valued fields.
func (sl *SecureLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	sanitizedFields := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			sanitizedFields[sl.sanitizer.Sanitize(k)] = sl.sanitizer.Sanitize(s)
			continue
		}
		sanitizedFields[k] = v
	}
	sl.Logger.Log(severity, sl.sanitizer.Sanitize(message), sanitizedFields)
}

// SanitizePath scrubs a filesystem path of home-directory and session-id
// components before it's safe to log (workspace paths embed a UUID).
func (sl *SecureLogger) SanitizePath(p string) string {
	return sl.pathSanitizer.Sanitize(p)
}

var _ Logger = (*SecureLogger)(nil)
