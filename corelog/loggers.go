// Package corelog provides the small leveled-logger abstraction used throughout
// rudder-eventcore, in the same shape as the teacher SDK's own ldlog.Loggers: a
// fixed set of per-level *log.Logger writers plus a minimum-level gate, so that
// every component logs through one interface regardless of which backend (file,
// SQL, HTTP) it happens to be exercising.
package corelog

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Level is a logging severity, ordered from most to least verbose.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	None
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "NONE"
	}
}

// Loggers is a set of per-level loggers plus the minimum level that is actually
// emitted. The zero value has no writers and logs nothing; NewDefaultLoggers
// logs Info and above to stderr.
type Loggers struct {
	debug    *log.Logger
	info     *log.Logger
	warn     *log.Logger
	errorLog *log.Logger
	minLevel Level
}

// NewDefaultLoggers returns Loggers writing to stderr at Info level, prefixed
// per level the way the teacher SDK prefixes its own leveled output.
func NewDefaultLoggers() Loggers {
	return NewLoggers(os.Stderr, Info)
}

// NewLoggers builds a Loggers writing every level to w, filtering out anything
// below minLevel.
func NewLoggers(w io.Writer, minLevel Level) Loggers {
	flags := log.LstdFlags
	return Loggers{
		debug:    log.New(w, "DEBUG: ", flags),
		info:     log.New(w, "INFO: ", flags),
		warn:     log.New(w, "WARN: ", flags),
		errorLog: log.New(w, "ERROR: ", flags),
		minLevel: minLevel,
	}
}

func (l Loggers) log(level Level, logger *log.Logger, args ...interface{}) {
	if logger == nil || level < l.minLevel {
		return
	}
	logger.Print(args...)
}

func (l Loggers) logf(level Level, logger *log.Logger, format string, args ...interface{}) {
	if logger == nil || level < l.minLevel {
		return
	}
	logger.Print(fmt.Sprintf(format, args...))
}

func (l Loggers) Debug(args ...interface{})                 { l.log(Debug, l.debug, args...) }
func (l Loggers) Debugf(format string, args ...interface{}) { l.logf(Debug, l.debug, format, args...) }
func (l Loggers) Info(args ...interface{})                  { l.log(Info, l.info, args...) }
func (l Loggers) Infof(format string, args ...interface{})  { l.logf(Info, l.info, format, args...) }
func (l Loggers) Warn(args ...interface{})                  { l.log(Warn, l.warn, args...) }
func (l Loggers) Warnf(format string, args ...interface{})  { l.logf(Warn, l.warn, format, args...) }
func (l Loggers) Error(args ...interface{})                 { l.log(Error, l.errorLog, args...) }
func (l Loggers) Errorf(format string, args ...interface{}) { l.logf(Error, l.errorLog, format, args...) }
