package core

// Logger is any service that can log messages at the usual levels.
// Extra args are appended to the log entry; implementations may give
// certain types (errors, request actors) special treatment.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
