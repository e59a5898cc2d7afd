package chain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the taxonomy of errors a HandlerChain can raise,
// mirroring pkg/mq's ErrorType in the teacher repo.
type ErrorKind string

const (
	KindConfiguration  ErrorKind = "configuration"
	KindProcessor      ErrorKind = "processor"
	KindDestination    ErrorKind = "destination"
	KindRetryExhausted ErrorKind = "retry_exhausted"
	KindStore          ErrorKind = "store"
)

// RetryExhaustedError is raised by the destination retry wrapper when
// every attempt (1+maxRetries) has failed; see handler.RetryExhaustedError,
// which this package's DestinationError.Causes may wrap directly.

// ConfigurationError reports a construction-time defect: an empty
// processor/destination list, a missing handler id, or a listener that
// failed to start.
type ConfigurationError struct {
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// ProcessorError wraps the error returned by a single processor.
type ProcessorError struct {
	ProcessorID string
	Cause       error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("Failed to execute processor: %s - %s", e.ProcessorID, e.Cause)
}

func (e *ProcessorError) Unwrap() error { return e.Cause }

// DestinationError wraps the error(s) returned by one or more
// destinations during a single destination-stage run.
type DestinationError struct {
	// FailedIDs are the destination ids that failed, sorted lexically.
	FailedIDs []string
	// Causes maps destination id to its underlying error.
	Causes map[string]error
}

func (e *DestinationError) Error() string {
	if len(e.FailedIDs) == 1 {
		id := e.FailedIDs[0]
		return fmt.Sprintf("Failed to execute destination: %s - %s", id, e.Causes[id])
	}
	msg := "Failed to execute destinations: "
	for i, id := range e.FailedIDs {
		if i > 0 {
			msg += ", "
		}
		msg += id
	}
	return msg
}

// Unwrap returns the first failure's cause in lexical order, so
// errors.Is/errors.As can still reach it for the common single-failure case.
func (e *DestinationError) Unwrap() error {
	if len(e.FailedIDs) == 0 {
		return nil
	}
	return e.Causes[e.FailedIDs[0]]
}

// StoreError wraps a failure from the durable store collaborator. The
// chain logs these; it never propagates one as the primary execute/replay
// error.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %q failed: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// ErrHandlerAborted carries the "handler aborted" text that prefixes the
// error handler.Processor.Invoke and handler.Destination.Invoke return
// for a recovered panic. Those errors are built with fmt.Errorf and do
// not wrap this value, so errors.Is does not match them against it.
var ErrHandlerAborted = errors.New("handler aborted")
