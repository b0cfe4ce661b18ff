// Package logger defines the logging surface shared by the trainer, the
// prediction service and its HTTP and MQTT transports. The zerolog backed
// implementation lives in infra/logger.
package logger

// Structured field keys used across components so prediction log lines can
// be joined with the prediction log and metrics on the same keys.
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldSource    = "source"
	FieldModelPath = "path"
)

// Logger is the leveled printf style logger handed to every component.
// Debugw carries per-prediction detail which is too verbose for info level.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StructuredLogger is implemented by loggers able to emit info level lines
// with fields, such as the training summary.
type StructuredLogger interface {
	Infow(msg string, fields map[string]any)
}
