package klm

import (
	"io"
	"log"
	"sync"
)

// LogStream selects one of the KLM log streams.
type LogStream int

const (
	LogOps   LogStream = iota // warnings, config corrections, run lifecycle
	LogDiag                   // per-event and per-track summaries
	LogTrace                  // per-hit detail of the efficiency scan
	numLogStreams
)

var logStreamNames = [numLogStreams]string{"ops", "diag", "trace"}

func (s LogStream) String() string {
	if s < 0 || s >= numLogStreams {
		return "unknown"
	}
	return logStreamNames[s]
}

// LogWriters holds the destination of each stream. A nil writer disables
// its stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	logMu   sync.RWMutex
	loggers [numLogStreams]*log.Logger
)

// SetLogWriters replaces all streams at once. Each line is prefixed with
// the stream name, e.g. "[klm diag] ".
func SetLogWriters(w LogWriters) {
	logMu.Lock()
	defer logMu.Unlock()
	for s, out := range [numLogStreams]io.Writer{w.Ops, w.Diag, w.Trace} {
		loggers[s] = nil
		if out != nil {
			loggers[s] = log.New(out, "[klm "+LogStream(s).String()+"] ", log.LstdFlags|log.Lmicroseconds)
		}
	}
}

func streamLogger(s LogStream) *log.Logger {
	if s < 0 || s >= numLogStreams {
		return nil
	}
	logMu.RLock()
	defer logMu.RUnlock()
	return loggers[s]
}

// LogEnabled reports whether s has a writer, so that hot loops can skip
// work whose only consumer is the log.
func LogEnabled(s LogStream) bool { return streamLogger(s) != nil }

// Logf writes to stream s if it is enabled.
func Logf(s LogStream, format string, args ...any) {
	if l := streamLogger(s); l != nil {
		l.Printf(format, args...)
	}
}

// Opsf logs to the ops stream.
func Opsf(format string, args ...any) { Logf(LogOps, format, args...) }

// Diagf logs to the diag stream.
func Diagf(format string, args ...any) { Logf(LogDiag, format, args...) }

// Tracef logs to the trace stream.
func Tracef(format string, args ...any) { Logf(LogTrace, format, args...) }
