package hdc

import (
	"log"
	"os"
)

// logger is a tiny named wrapper around the standard library's *log.Logger,
// following the shape elektrosoftlab/modbus builds for its transports: a
// component name prefixes every line, and callers may inject their own
// *log.Logger (e.g. to redirect output or silence it with log.New(io.Discard,
// ...)) or fall back to a shared package default.
type logger struct {
	name   string
	target *log.Logger
}

// defaultLogTarget is used by every logger that is not given a custom one.
var defaultLogTarget = log.New(os.Stderr, "", log.LstdFlags)

func newLogger(name string, customLogger *log.Logger) *logger {
	if customLogger == nil {
		customLogger = defaultLogTarget
	}
	return &logger{name: name, target: customLogger}
}

func (l *logger) Debugf(format string, args ...interface{}) {
	l.target.Printf("[DEBUG] "+l.name+": "+format, args...)
}

func (l *logger) Warningf(format string, args ...interface{}) {
	l.target.Printf("[WARN] "+l.name+": "+format, args...)
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.target.Printf("[ERROR] "+l.name+": "+format, args...)
}
