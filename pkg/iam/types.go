package iam

// Map is a decoded JSON object. Resource bodies, cache entries and request
// payloads all travel through the SDK in this form.
type Map = map[string]any

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

// Debug does nothing.
func (NoOpLogger) Debug(string, map[string]interface{}) {}

// Info does nothing.
func (NoOpLogger) Info(string, map[string]interface{}) {}

// Warn does nothing.
func (NoOpLogger) Warn(string, map[string]interface{}) {}

// Error does nothing.
func (NoOpLogger) Error(string, map[string]interface{}) {}

// LoggerOrNoOp returns logger, or a NoOpLogger when logger is nil.
func LoggerOrNoOp(logger Logger) Logger {
	if logger == nil {
		return NoOpLogger{}
	}

	return logger
}
