// Package chain implements HandlerChain: the orchestrator that runs a
// named, immutable pipeline of processors followed by parallel
// destination fan-out, persisting failures to a replaystore.Store and
// offering a Replay entry point for the replay listener.
package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/songzhibin97/handlerchain/handler"
	"github.com/songzhibin97/handlerchain/log"
	"github.com/songzhibin97/handlerchain/message"
	"github.com/songzhibin97/handlerchain/metrics"
	"github.com/songzhibin97/handlerchain/replaystore"
)

// ExecutionSuccess is returned by Execute/Replay when the pipeline
// completed without a terminal failure (this includes the drop case).
type ExecutionSuccess struct {
	Message            *message.Message
	DestinationResults map[string]any
}

// ExecutionError is returned when the pipeline failed; Message is the
// snapshot persisted to the failure store.
type ExecutionError struct {
	Message *message.Message
	Err     error
}

func (e *ExecutionError) Error() string { return e.Err.Error() }
func (e *ExecutionError) Unwrap() error { return e.Err }

// ChainOption configures optional ambient collaborators on a HandlerChain.
type ChainOption func(*HandlerChain)

// WithLogger sets the chain's structured logger. Defaults to log.Nop{}.
func WithLogger(logger log.Logger) ChainOption {
	return func(c *HandlerChain) { c.logger = logger }
}

// WithMetrics attaches Prometheus collectors to the chain.
func WithMetrics(m *metrics.ChainMetrics) ChainOption {
	return func(c *HandlerChain) { c.metrics = m }
}

// WithTracer sets the tracer used to open execute/replay spans.
func WithTracer(tracer trace.Tracer) ChainOption {
	return func(c *HandlerChain) { c.tracer = tracer }
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// WithClock overrides the chain's clock, used to stamp Message.CreatedAt.
func WithClock(clock Clock) ChainOption {
	return func(c *HandlerChain) { c.clock = clock }
}

// Closer is satisfied by a running ReplayListener. Declared here,
// rather than importing package replaylistener directly, to avoid a
// cycle (replaylistener depends on chain to call Replay).
type Closer interface {
	Close(ctx context.Context) error
}

// ListenerStarter builds and starts a replay listener bound to c. Passed
// in via WithReplayListener by replaylistener's chain-wiring helper.
type ListenerStarter func(c *HandlerChain) (Closer, error)

// WithReplayListener configures a ReplayListener to start alongside the
// chain and stop when the chain's Close is called.
func WithReplayListener(start ListenerStarter) ChainOption {
	return func(c *HandlerChain) { c.listenerStarter = start }
}

// HandlerChain is an immutable, named pipeline of processors and
// destinations, backed by a durable failure store.
type HandlerChain struct {
	name         string
	processors   []handler.Processor
	destinations []handler.Destination
	failureStore replaystore.Store

	logger log.Logger
	metrics *metrics.ChainMetrics
	tracer  trace.Tracer
	clock   Clock

	listenerStarter ListenerStarter
	listener        Closer

	storeMu sync.Mutex
}

// New builds a HandlerChain. name, processors and destinations must be
// non-empty; otherwise New returns a *ConfigurationError.
func New(name string, processors []handler.Processor, destinations []handler.Destination, failureStore replaystore.Store, opts ...ChainOption) (*HandlerChain, error) {
	if name == "" {
		return nil, &ConfigurationError{Message: "handler chain name must not be empty"}
	}
	if len(processors) == 0 {
		return nil, &ConfigurationError{Message: "handler chain must have at least one processor"}
	}
	if len(destinations) == 0 {
		return nil, &ConfigurationError{Message: "handler chain must have at least one destination"}
	}
	for _, p := range processors {
		if p.ID == "" {
			return nil, &ConfigurationError{Message: "every processor must have a non-empty id"}
		}
	}
	for _, d := range destinations {
		if d.ID == "" {
			return nil, &ConfigurationError{Message: "every destination must have a non-empty id"}
		}
	}

	c := &HandlerChain{
		name:         name,
		processors:   append([]handler.Processor(nil), processors...),
		destinations: append([]handler.Destination(nil), destinations...),
		failureStore: failureStore,
		logger:       log.Nop{},
		clock:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(log.ChainName(name))

	if c.listenerStarter != nil {
		listener, err := c.listenerStarter(c)
		if err != nil {
			return nil, &ConfigurationError{Message: "failed to start replay listener", Cause: err}
		}
		c.listener = listener
	}

	return c, nil
}

func (c *HandlerChain) Name() string                      { return c.name }
func (c *HandlerChain) FailureStore() replaystore.Store    { return c.failureStore }

// Close stops the replay listener, if one was started.
func (c *HandlerChain) Close(ctx context.Context) error {
	if c.listener == nil {
		return nil
	}
	return c.listener.Close(ctx)
}

// Execute runs content through a freshly allocated message id.
func (c *HandlerChain) Execute(ctx context.Context, content any) (*ExecutionSuccess, error) {
	id := uuid.NewString()
	mctx := message.NewContext(id, c.name, content)
	mctx.SetCreatedAt(c.clock())
	return c.run(ctx, mctx, "execute", true)
}

// Replay runs msg through the pipeline from the first processor,
// honoring msg's skip list, without writing to the failure store on
// failure - the caller (typically a ReplayListener) owns that decision.
func (c *HandlerChain) Replay(ctx context.Context, msg *message.Message) (*ExecutionSuccess, error) {
	mctx := message.NewContextFromMessage(msg)
	mctx.CleanForReplay()
	return c.run(ctx, mctx, "replay", false)
}

func (c *HandlerChain) run(ctx context.Context, mctx *message.Context, op string, persistOnFailure bool) (*ExecutionSuccess, error) {
	spanCtx, span := c.startSpan(ctx, op)
	defer span.end()
	logger := c.logger.WithContext(spanCtx)

	snapshot := mctx.Clone()

	procStart := time.Now()
	procOutcome := runProcessors(mctx, snapshot, c.processors)
	c.observeStageDuration("processor", time.Since(procStart))
	if procOutcome.err != nil {
		c.recordOutcome(op, "processor_error", span)
		return c.fail(spanCtx, snapshot, procOutcome.err, persistOnFailure, op)
	}
	if procOutcome.dropped {
		c.recordOutcome(op, "dropped", span)
		logger.Info("message dropped by filter", log.MessageID(mctx.ID()))
		return &ExecutionSuccess{Message: snapshot.ToMessage(), DestinationResults: map[string]any{}}, nil
	}

	hook := c.retryHook(spanCtx, op)
	destStart := time.Now()
	destOutcome := runDestinations(mctx, snapshot, c.destinations, hook)
	c.observeStageDuration("destination", time.Since(destStart))
	if destOutcome.err != nil {
		c.recordOutcome(op, "destination_error", span)
		return c.fail(spanCtx, snapshot, destOutcome.err, persistOnFailure, op)
	}

	c.recordOutcome(op, "success", span)
	logger.Info("message processed successfully",
		log.MessageID(mctx.ID()), log.DestinationCount(len(c.destinations)))
	return &ExecutionSuccess{Message: snapshot.ToMessage(), DestinationResults: destOutcome.results}, nil
}

func (c *HandlerChain) fail(ctx context.Context, snapshot *message.Context, cause error, persist bool, op string) (*ExecutionSuccess, error) {
	snapshotMsg := snapshot.ToMessage()
	c.logger.WithContext(ctx).Error("handler chain "+op+" failed",
		log.MessageID(snapshotMsg.ID), log.Error(cause))

	if persist {
		c.persistFailure(ctx, snapshotMsg)
	}
	return nil, &ExecutionError{Message: snapshotMsg, Err: cause}
}

func (c *HandlerChain) persistFailure(ctx context.Context, msg *message.Message) {
	logger := c.logger.WithContext(ctx)
	raw, err := MarshalMessage(msg)
	if err != nil {
		logger.Error("failed to marshal failure snapshot", log.Error(err))
		return
	}

	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	if _, err := c.failureStore.Store(ctx, raw); err != nil {
		storeErr := &StoreError{Op: "Store", Cause: err}
		logger.Error("failed to persist failure snapshot", log.Error(storeErr))
	}
}

func (c *HandlerChain) retryHook(ctx context.Context, op string) RetryHook {
	logger := c.logger.WithContext(ctx)
	return func(destinationID string, attempt int) {
		logger.Debug("retrying destination",
			log.DestinationID(destinationID), log.Attempt(attempt))
		if c.metrics != nil {
			c.metrics.DestinationRetry.WithLabelValues(c.name, destinationID).Inc()
		}
	}
}

func (c *HandlerChain) observeStageDuration(stage string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.StageDuration.WithLabelValues(c.name, stage).Observe(d.Seconds())
	}
}

func (c *HandlerChain) recordOutcome(op, outcome string, sp span) {
	sp.setOutcome(outcome)
	if c.metrics != nil {
		c.metrics.Executions.WithLabelValues(c.name, outcome).Inc()
		if outcome == "dropped" {
			c.metrics.Drops.WithLabelValues(c.name).Inc()
		}
		if outcome == "processor_error" {
			c.metrics.Failures.WithLabelValues(c.name, "processor").Inc()
		}
		if outcome == "destination_error" {
			c.metrics.Failures.WithLabelValues(c.name, "destination").Inc()
		}
	}
}

type span struct {
	s trace.Span
}

func (s span) end() {
	if s.s != nil {
		s.s.End()
	}
}

// setOutcome records the execute/replay outcome as a span attribute and,
// for failures, marks the span's status so trace backends surface it
// without needing to inspect attributes.
func (s span) setOutcome(outcome string) {
	if s.s == nil {
		return
	}
	s.s.SetAttributes(attribute.String("outcome", outcome))
	if outcome == "processor_error" || outcome == "destination_error" {
		s.s.SetStatus(codes.Error, outcome)
	}
}

func (c *HandlerChain) startSpan(ctx context.Context, op string) (context.Context, span) {
	if c.tracer == nil {
		return ctx, span{}
	}
	spanCtx, s := c.tracer.Start(ctx, fmt.Sprintf("handlerchain.%s", op))
	return spanCtx, span{s: s}
}
