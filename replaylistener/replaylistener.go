// Package replaylistener drives the redelivery loop: polling a
// replaystore.Store, replaying envelopes through a chain.HandlerChain,
// and dead-lettering messages whose retry budget is exhausted or whose
// envelope could not be parsed.
package replaylistener

import (
	"context"
	"sync"
	"time"

	"github.com/songzhibin97/handlerchain/chain"
	"github.com/songzhibin97/handlerchain/log"
	"github.com/songzhibin97/handlerchain/message"
	"github.com/songzhibin97/handlerchain/replaystore"
)

// Replayer is the subset of *chain.HandlerChain the listener needs,
// kept as an interface so tests can substitute a stub chain.
type Replayer interface {
	Name() string
	Replay(ctx context.Context, msg *message.Message) (*chain.ExecutionSuccess, error)
}

// Config configures a ReplayListener.
type Config struct {
	PollingInterval time.Duration
	MaxRetries      int
	RetryInterval   time.Duration
	DeadLetterStore replaystore.Store
	// ReplayStore overrides the store to poll. When nil the listener
	// polls the chain's own failure store.
	ReplayStore replaystore.Store

	Logger log.Logger
}

// ReplayListener polls a store on a single dedicated goroutine for the
// lifetime of the chain it is bound to.
type ReplayListener struct {
	cfg      Config
	chain    Replayer
	source   replaystore.Store
	logger   log.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start builds and starts a ReplayListener bound to c, polling
// cfg.ReplayStore if set, otherwise failureStore.
func Start(c Replayer, failureStore replaystore.Store, cfg Config) (*ReplayListener, error) {
	source := cfg.ReplayStore
	if source == nil {
		source = failureStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop{}
	}
	logger = logger.With(log.ChainName(c.Name()))

	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &ReplayListener{
		cfg:    cfg,
		chain:  c,
		source: source,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.run(ctx)
	return l, nil
}

// Close stops the poll loop, waiting either for it to exit or for ctx
// to be done, whichever happens first.
func (l *ReplayListener) Close(ctx context.Context) error {
	l.once.Do(func() { l.cancel() })
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *ReplayListener) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.pollOnce(ctx)
		}
	}
}

func (l *ReplayListener) pollOnce(ctx context.Context) {
	env, err := l.source.Retrieve(ctx)
	if err != nil {
		l.logger.Error("failed to retrieve envelope", log.Error(err))
		return
	}
	if env == nil {
		return
	}
	l.logger.Debug("polled envelope", log.EnvelopeID(env.ID))

	msg, err := chain.UnmarshalMessage(env.Payload)
	if err != nil {
		l.logger.Error("poisoned envelope, dead-lettering", log.EnvelopeID(env.ID), log.Error(err))
		l.deadLetterRaw(ctx, env.ID, env.Payload)
		return
	}

	l.replayWithRetry(ctx, env.ID, msg)
}

func (l *ReplayListener) replayWithRetry(ctx context.Context, envelopeID string, msg *message.Message) {
	attempts := 1 + l.cfg.MaxRetries
	current := msg

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			l.logger.Debug("retrying replay", log.EnvelopeID(envelopeID), log.Attempt(attempt))
			time.Sleep(l.cfg.RetryInterval)
		}

		success, err := l.chain.Replay(ctx, current)
		if err == nil {
			l.logger.Info("replay succeeded", log.EnvelopeID(envelopeID), log.MessageID(success.Message.ID))
			if ackErr := l.source.Acknowledge(ctx, envelopeID, true); ackErr != nil {
				l.logger.Error("failed to acknowledge replayed envelope", log.EnvelopeID(envelopeID), log.Error(ackErr))
			}
			return
		}

		var execErr *chain.ExecutionError
		if as, ok := err.(*chain.ExecutionError); ok {
			execErr = as
			current = execErr.Message
		}
		l.logger.Warn("replay attempt failed", log.EnvelopeID(envelopeID), log.Attempt(attempt), log.Error(err))
	}

	l.logger.Error("replay retries exhausted, dead-lettering", log.EnvelopeID(envelopeID))
	l.deadLetter(ctx, envelopeID, current)
}

func (l *ReplayListener) deadLetter(ctx context.Context, envelopeID string, msg *message.Message) {
	raw, err := chain.MarshalMessage(msg)
	if err != nil {
		l.logger.Error("failed to marshal message for dead-letter", log.EnvelopeID(envelopeID), log.Error(err))
		return
	}
	l.deadLetterRaw(ctx, envelopeID, raw)
}

func (l *ReplayListener) deadLetterRaw(ctx context.Context, envelopeID string, raw []byte) {
	if _, err := l.cfg.DeadLetterStore.Store(ctx, raw); err != nil {
		l.logger.Error("failed to write dead-letter, refusing to acknowledge source envelope",
			log.EnvelopeID(envelopeID), log.Error(err))
		return
	}
	if err := l.source.Acknowledge(ctx, envelopeID, true); err != nil {
		l.logger.Error("failed to acknowledge dead-lettered envelope", log.EnvelopeID(envelopeID), log.Error(err))
	}
}
