// Package alog provides the structured logging wrapper every agentd
// service and the supervisor log through.
//
// It is a thin wrapper over github.com/sirupsen/logrus, chosen for this
// role the way nestybox-sysbox-libs and Synnergy's CLI both adopt logrus
// for structured, leveled logging, and mirrors gravwell's KV(...) field
// idiom (ingest/log.KV) by exposing a small KV helper over logrus.Fields.
package alog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Entry scoped to one service name.
type Logger struct {
	entry *logrus.Entry
}

// KV is a single structured field, matching gravwell's log.KV(key, value)
// call-site shape.
type KV struct {
	Key   string
	Value any
}

// NewField constructs a KV pair.
func NewField(key string, value any) KV { return KV{Key: key, Value: value} }

// New creates a Logger for service, writing text to stderr when
// foreground is true (matching agentd's -F flag) and JSON to w otherwise.
func New(service string, foreground bool, w io.Writer) *Logger {
	l := logrus.New()
	if foreground {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		l.SetOutput(os.Stderr)
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
		if w != nil {
			l.SetOutput(w)
		}
	}
	return &Logger{entry: l.WithField("service", service)}
}

func (lg *Logger) with(fields []KV) *logrus.Entry {
	e := lg.entry
	for _, f := range fields {
		e = e.WithField(f.Key, f.Value)
	}
	return e
}

func (lg *Logger) Info(msg string, fields ...KV)  { lg.with(fields).Info(msg) }
func (lg *Logger) Warn(msg string, fields ...KV)  { lg.with(fields).Warn(msg) }
func (lg *Logger) Error(msg string, fields ...KV) { lg.with(fields).Error(msg) }
func (lg *Logger) Debug(msg string, fields ...KV) { lg.with(fields).Debug(msg) }

// KVErr mirrors gravwell's log.KVErr(err) helper: a KV pair named "error".
func KVErr(err error) KV { return KV{Key: "error", Value: err} }
