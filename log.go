package canopy

import (
	"io"
	"log"
)

// Logger is what a job logs through. Debugf output is only wanted when
// running verbosely.
type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

// NopLogger logs nothing.
type NopLogger struct{}

func (NopLogger) Printf(format string, v ...interface{}) {}
func (NopLogger) Debugf(format string, v ...interface{}) {}

// NewLogger gets a Logger writing timestamped lines to w. Debugf lines are
// dropped unless verbose is set.
func NewLogger(w io.Writer, verbose bool) Logger {
	return &stdLogger{l: log.New(w, "", log.LstdFlags), verbose: verbose}
}

type stdLogger struct {
	l       *log.Logger
	verbose bool
}

func (s *stdLogger) Printf(format string, v ...interface{}) {
	s.l.Printf(format, v...)
}

func (s *stdLogger) Debugf(format string, v ...interface{}) {
	if s.verbose {
		s.l.Printf("DEBUG "+format, v...)
	}
}
