package core

// Logger is the logging capability handed to every service; constructed once
// at process start and passed by reference.
// Implementations may extract a user.User from args to tag reports.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
