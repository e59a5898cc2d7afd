package replaylistener

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/songzhibin97/handlerchain/chain"
	"github.com/songzhibin97/handlerchain/message"
	"github.com/songzhibin97/handlerchain/replaystore/memstore"
)

type fakeReplayer struct {
	name string
	mu   sync.Mutex
	fn   func(msg *message.Message) (*chain.ExecutionSuccess, error)
	calls int32
}

func (f *fakeReplayer) Name() string { return f.name }

func (f *fakeReplayer) Replay(_ context.Context, msg *message.Message) (*chain.ExecutionSuccess, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fn(msg)
}

func storeEnvelope(t *testing.T, store *memstore.Store, msg *message.Message) string {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, err := store.Store(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return id
}

func TestListenerReplaySuccessAcknowledges(t *testing.T) {
	source := memstore.New()
	dlq := memstore.New()

	msg := &message.Message{ID: "id-1", Content: "payload"}
	storeEnvelope(t, source, msg)

	replayer := &fakeReplayer{name: "orders", fn: func(msg *message.Message) (*chain.ExecutionSuccess, error) {
		return &chain.ExecutionSuccess{Message: msg, DestinationResults: map[string]any{}}, nil
	}}

	listener, err := Start(replayer, source, Config{
		PollingInterval: 5 * time.Millisecond,
		DeadLetterStore: dlq,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer listener.Close(context.Background())

	waitFor(t, func() bool { return atomic.LoadInt32(&replayer.calls) >= 1 })

	if env, _ := source.Retrieve(context.Background()); env != nil {
		t.Fatalf("expected source envelope acknowledged and removed, got %v", env)
	}
}

func TestListenerDeadLettersAfterRetryExhaustion(t *testing.T) {
	source := memstore.New()
	dlq := memstore.New()

	msg := &message.Message{ID: "id-1", Content: "payload"}
	storeEnvelope(t, source, msg)

	replayer := &fakeReplayer{name: "orders", fn: func(msg *message.Message) (*chain.ExecutionSuccess, error) {
		return nil, &chain.ExecutionError{Message: msg, Err: errors.New("destination down")}
	}}

	listener, err := Start(replayer, source, Config{
		PollingInterval: 5 * time.Millisecond,
		MaxRetries:      2,
		RetryInterval:   time.Millisecond,
		DeadLetterStore: dlq,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer listener.Close(context.Background())

	waitFor(t, func() bool {
		env, _ := dlq.Retrieve(context.Background())
		return env != nil
	})

	if atomic.LoadInt32(&replayer.calls) != 3 {
		t.Fatalf("expected 3 replay attempts (1+maxRetries), got %d", replayer.calls)
	}
}

func TestListenerDeadLettersPoisonedEnvelope(t *testing.T) {
	source := memstore.New()
	dlq := memstore.New()

	if _, err := source.Store(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	replayer := &fakeReplayer{name: "orders", fn: func(msg *message.Message) (*chain.ExecutionSuccess, error) {
		t.Fatal("replay should not be invoked for a poisoned envelope")
		return nil, nil
	}}

	listener, err := Start(replayer, source, Config{
		PollingInterval: 5 * time.Millisecond,
		DeadLetterStore: dlq,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer listener.Close(context.Background())

	waitFor(t, func() bool {
		env, _ := dlq.Retrieve(context.Background())
		return env != nil
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
