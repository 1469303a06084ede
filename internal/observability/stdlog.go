package observability

import (
	"fmt"
	"log"
	"strings"
)

// StdLogger adapts a standard library logger to the Logger interface.
type StdLogger struct {
	logger *log.Logger
	debug  bool
}

// NewStdLogger wraps logger; debug enables Debug-level output.
func NewStdLogger(logger *log.Logger, debug bool) *StdLogger {
	return &StdLogger{logger: logger, debug: debug}
}

// Debug logs at debug level when enabled.
func (l *StdLogger) Debug(msg string, fields ...Field) {
	if l == nil || l.logger == nil || !l.debug {
		return
	}
	l.logger.Print(format("DEBUG", msg, fields))
}

// Info logs at info level.
func (l *StdLogger) Info(msg string, fields ...Field) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Print(format("INFO", msg, fields))
}

// Warn logs at warn level.
func (l *StdLogger) Warn(msg string, fields ...Field) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Print(format("WARN", msg, fields))
}

// Error logs at error level.
func (l *StdLogger) Error(msg string, fields ...Field) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Print(format("ERROR", msg, fields))
}

func format(level, msg string, fields []Field) string {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(msg)
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f.Key)
		b.WriteString("=")
		fmt.Fprintf(&b, "%v", f.Value)
	}
	return b.String()
}
