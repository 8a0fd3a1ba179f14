// Package logging defines the key/value Logger accepted by every component
// and a logrus-backed implementation.
//
// Any logging framework can be plugged in by implementing Logger:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Warn(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is a leveled logger taking alternating key/value pairs.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Warn logs a warning with optional key-value pairs
	Warn(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

// Logrus adapts a logrus entry to Logger.
type Logrus struct {
	entry *logrus.Entry
}

// New wraps l. A nil l uses logrus.StandardLogger().
func New(l *logrus.Logger) *Logrus {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Logrus{entry: logrus.NewEntry(l)}
}

// FromEntry wraps an existing entry, keeping its fields.
func FromEntry(e *logrus.Entry) *Logrus {
	return &Logrus{entry: e}
}

// With returns a logger that adds the given key/value pairs to every message.
func (l *Logrus) With(keysAndValues ...interface{}) *Logrus {
	return &Logrus{entry: l.entry.WithFields(fields(keysAndValues))}
}

func (l *Logrus) Debug(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l *Logrus) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Info(msg)
}

func (l *Logrus) Warn(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l *Logrus) Error(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Error(msg)
}

// fields converts alternating key/value pairs. A dangling key is recorded
// with a nil value; non-string keys are formatted with %v.
func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		var value interface{}
		if i+1 < len(keysAndValues) {
			value = keysAndValues[i+1]
		}
		f[key] = value
	}
	return f
}

// Component returns a logger tagging every message with component=name.
// Loggers that are not *Logrus are wrapped so the tag is prepended to the pairs.
func Component(l Logger, name string) Logger {
	if l == nil {
		return Nop()
	}
	if lr, ok := l.(*Logrus); ok {
		return lr.With("component", name)
	}
	return &tagged{next: l, kv: []interface{}{"component", name}}
}

type tagged struct {
	next Logger
	kv   []interface{}
}

func (t *tagged) merge(keysAndValues []interface{}) []interface{} {
	out := make([]interface{}, 0, len(t.kv)+len(keysAndValues))
	out = append(out, t.kv...)
	return append(out, keysAndValues...)
}

func (t *tagged) Debug(msg string, kv ...interface{}) { t.next.Debug(msg, t.merge(kv)...) }
func (t *tagged) Info(msg string, kv ...interface{})  { t.next.Info(msg, t.merge(kv)...) }
func (t *tagged) Warn(msg string, kv ...interface{})  { t.next.Warn(msg, t.merge(kv)...) }
func (t *tagged) Error(msg string, kv ...interface{}) { t.next.Error(msg, t.merge(kv)...) }

type nop struct{}

func (nop) Debug(string, ...interface{}) {}
func (nop) Info(string, ...interface{})  {}
func (nop) Warn(string, ...interface{})  {}
func (nop) Error(string, ...interface{}) {}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nop{}
}

// Options configures NewLogrus.
type Options struct {
	// Level is a logrus level name such as "debug" or "info"
	Level string

	// Format is "text" or "json"
	Format string

	// Output defaults to os.Stderr when nil
	Output io.Writer
}

// NewLogrus builds a configured logrus logger.
func NewLogrus(opts Options) (*logrus.Logger, error) {
	l := logrus.New()
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	}

	if opts.Level != "" {
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		l.SetLevel(level)
	}

	switch opts.Format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	return l, nil
}
