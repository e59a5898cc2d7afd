// Package log defines the structured logging interface used throughout
// the handler chain engine, trimmed from the gateway-wide pkg/log to the
// fields this repo's components actually emit.
package log

import (
	"context"
	"time"
)

// Logger is implemented by every logging backend this repo ships.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger that includes fields in every entry.
	With(fields ...Field) Logger

	// WithContext returns a child logger annotated with trace/span
	// information extracted from ctx, when present.
	WithContext(ctx context.Context) Logger
}

// Level is the minimum severity a Logger backend will emit.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Field is a single structured key/value logging attribute.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field     { return Field{Key: key, Value: value} }
func Int(key string, value int) Field    { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field  { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}
func Error(err error) Field { return Field{Key: "error", Value: err} }

// Chain/destination/processor/replay field helpers, the handler-chain
// analogue of the gateway's domain-specific field groups.

func ChainName(name string) Field          { return String("chain", name) }
func MessageID(id string) Field            { return String("message_id", id) }
func ProcessorID(id string) Field          { return String("processor_id", id) }
func DestinationID(id string) Field        { return String("destination_id", id) }
func DestinationCount(n int) Field         { return Int("destination_count", n) }
func Attempt(n int) Field                  { return Int("attempt", n) }
func Outcome(outcome string) Field         { return String("outcome", outcome) }
func EnvelopeID(id string) Field           { return String("envelope_id", id) }

// Nop is a Logger that discards everything; used as the zero-value
// default so callers never need a nil check.
type Nop struct{}

func (Nop) Debug(string, ...Field)            {}
func (Nop) Info(string, ...Field)             {}
func (Nop) Warn(string, ...Field)             {}
func (Nop) Error(string, ...Field)            {}
func (n Nop) With(...Field) Logger            { return n }
func (n Nop) WithContext(context.Context) Logger { return n }
