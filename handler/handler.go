// Package handler defines the value types describing a handler chain's
// processors and destinations: stable identifiers paired with the
// callables that act on a message.Context.
package handler

import (
	"fmt"
	"time"

	"github.com/songzhibin97/handlerchain/message"
)

// Kind distinguishes the three processor shapes.
type Kind int

const (
	KindFilter Kind = iota
	KindTransformer
	KindGeneric
)

// FilterFunc returns false to drop the message, true to continue.
type FilterFunc func(ctx *message.Context) (bool, error)

// TransformerFunc returns the new content value to install on the context.
type TransformerFunc func(ctx *message.Context) (any, error)

// GenericFunc performs a side effect only.
type GenericFunc func(ctx *message.Context) error

// Processor is one stage of the sequential processor pipeline.
type Processor struct {
	ID   string
	Kind Kind

	filter      FilterFunc
	transformer TransformerFunc
	generic     GenericFunc
}

// NewFilter registers a Filter processor under id.
func NewFilter(id string, fn FilterFunc) Processor {
	return Processor{ID: id, Kind: KindFilter, filter: fn}
}

// NewTransformer registers a Transformer processor under id.
func NewTransformer(id string, fn TransformerFunc) Processor {
	return Processor{ID: id, Kind: KindTransformer, transformer: fn}
}

// NewGeneric registers a Generic (side-effect only) processor under id.
func NewGeneric(id string, fn GenericFunc) Processor {
	return Processor{ID: id, Kind: KindGeneric, generic: fn}
}

// Invoke runs the processor against ctx, recovering from panics and
// converting them into an ordinary "handler aborted" error.
func (p Processor) Invoke(ctx *message.Context) (drop bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler aborted: %v", r)
		}
	}()

	switch p.Kind {
	case KindFilter:
		keep, ferr := p.filter(ctx)
		if ferr != nil {
			return false, ferr
		}
		return !keep, nil
	case KindTransformer:
		next, terr := p.transformer(ctx)
		if terr != nil {
			return false, terr
		}
		ctx.SetContent(next)
		return false, nil
	case KindGeneric:
		return false, p.generic(ctx)
	default:
		return false, fmt.Errorf("unknown processor kind for %q", p.ID)
	}
}

// DestinationFunc delivers ctx's content to a terminal collaborator and
// returns an arbitrary result value recorded under the destination's id.
type DestinationFunc func(ctx *message.Context) (any, error)

// RetryConfig configures the bounded-retry wrapper applied to a destination.
type RetryConfig struct {
	MaxRetries    int
	RetryInterval time.Duration
}

// Destination is one terminal fan-out target of the destination stage.
type Destination struct {
	ID    string
	Retry *RetryConfig

	fn DestinationFunc
}

// NewDestination registers a destination under id, with an optional
// retry policy.
func NewDestination(id string, fn DestinationFunc, retry *RetryConfig) Destination {
	return Destination{ID: id, Retry: retry, fn: fn}
}

// Invoke runs the destination, applying the retry wrapper if configured
// and recovering from panics on every attempt.
func (d Destination) Invoke(ctx *message.Context) (any, error) {
	return d.InvokeObserved(ctx, nil)
}

func (d Destination) invokeOnce(ctx *message.Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler aborted: %v", r)
		}
	}()
	return d.fn(ctx)
}

// RetryObserver is notified before each retry sleep; used by the chain
// to emit the "retrying destination" debug log line and bump the
// destination_retries_total metric without handler depending on either.
type RetryObserver func(destinationID string, attempt int)

func (d Destination) invokeWithRetryObserved(ctx *message.Context, cfg RetryConfig, observe RetryObserver) (any, error) {
	attempts := 1 + cfg.MaxRetries
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if observe != nil {
				observe(d.ID, attempt)
			}
			time.Sleep(cfg.RetryInterval)
		}
		result, err := d.invokeOnce(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, &RetryExhaustedError{DestinationID: d.ID, Attempts: attempts, Cause: lastErr}
}

// InvokeObserved behaves like Invoke but reports retry attempts to observe.
func (d Destination) InvokeObserved(ctx *message.Context, observe RetryObserver) (any, error) {
	if d.Retry == nil {
		return d.invokeOnce(ctx)
	}
	return d.invokeWithRetryObserved(ctx, *d.Retry, observe)
}

// RetryExhaustedError is returned when every retry attempt for a
// destination has failed. Defined here (rather than in package chain)
// so the handler package has no import cycle back onto chain; callers
// match on this type directly, as chain declares no alias for it.
type RetryExhaustedError struct {
	DestinationID string
	Attempts      int
	Cause         error
}

func (e *RetryExhaustedError) Error() string {
	return "Failed to execute destination after retries"
}

func (e *RetryExhaustedError) Unwrap() error { return e.Cause }
