package logger

// Logger is the subset of zap's SugaredLogger the pipeline writes to. Progress goes to
// Debug, one line per merged window goes to Info.
type Logger interface {
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
}
