package chain

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/songzhibin97/handlerchain/handler"
	"github.com/songzhibin97/handlerchain/message"
	"github.com/songzhibin97/handlerchain/replaystore/memstore"
)

func passthroughFilter(id string) handler.Processor {
	return handler.NewFilter(id, func(ctx *message.Context) (bool, error) { return true, nil })
}

func recordingDestination(id string, calls *[]string) handler.Destination {
	return handler.NewDestination(id, func(ctx *message.Context) (any, error) {
		*calls = append(*calls, id)
		return id + "-result", nil
	}, nil)
}

func TestExecuteDestinationResultsMatchConfiguredSet(t *testing.T) {
	var calls []string
	c, err := New("orders", []handler.Processor{passthroughFilter("gate")},
		[]handler.Destination{recordingDestination("d1", &calls), recordingDestination("d2", &calls)},
		memstore.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	success, err := c.Execute(context.Background(), map[string]any{"x": float64(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(success.DestinationResults) != 2 {
		t.Fatalf("expected 2 destination results, got %v", success.DestinationResults)
	}
	if success.DestinationResults["d1"] != "d1-result" || success.DestinationResults["d2"] != "d2-result" {
		t.Fatalf("unexpected destination results: %v", success.DestinationResults)
	}
}

func TestFilterDropsBeforeDestinations(t *testing.T) {
	var calls []string
	gate := handler.NewFilter("gate", func(ctx *message.Context) (bool, error) { return false, nil })
	c, err := New("orders", []handler.Processor{gate},
		[]handler.Destination{recordingDestination("d1", &calls)}, memstore.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	success, err := c.Execute(context.Background(), "payload")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(success.DestinationResults) != 0 {
		t.Fatalf("expected no destination results on drop, got %v", success.DestinationResults)
	}
	if len(calls) != 0 {
		t.Fatalf("expected no destination invocations on drop, got %v", calls)
	}
}

func TestFilterErrorFailsWithoutRunningDestinations(t *testing.T) {
	var calls []string
	gate := handler.NewFilter("gate", func(ctx *message.Context) (bool, error) {
		return true, errors.New("bad input")
	})
	store := memstore.New()
	c, err := New("orders", []handler.Processor{gate},
		[]handler.Destination{recordingDestination("d1", &calls)}, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = c.Execute(context.Background(), "payload")
	if err == nil {
		t.Fatal("expected error")
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ExecutionError, got %T", err)
	}
	if len(calls) != 0 {
		t.Fatalf("expected no destination invocations after processor error, got %v", calls)
	}

	env, rerr := store.Retrieve(context.Background())
	if rerr != nil || env == nil {
		t.Fatalf("expected failure snapshot persisted, got env=%v err=%v", env, rerr)
	}
}

func TestRetryRecordsSuccessAfterKFailures(t *testing.T) {
	attempts := 0
	d := handler.NewDestination("flaky", func(ctx *message.Context) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}, &handler.RetryConfig{MaxRetries: 5, RetryInterval: time.Millisecond})

	c, err := New("orders", []handler.Processor{passthroughFilter("gate")},
		[]handler.Destination{d}, memstore.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	success, err := c.Execute(context.Background(), "payload")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if success.DestinationResults["flaky"] != "ok" {
		t.Fatalf("expected eventual success recorded, got %v", success.DestinationResults)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts (2 retries), got %d", attempts)
	}
}

func TestSkipListPreventsReplayedDestinationFromRerunning(t *testing.T) {
	var calls []string
	c, err := New("orders", []handler.Processor{passthroughFilter("gate")},
		[]handler.Destination{recordingDestination("d1", &calls), recordingDestination("d2", &calls)},
		memstore.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := &message.Message{
		ID:       "id-1",
		Content:  "payload",
		Metadata: message.Metadata{DestinationsToSkip: []string{"d1"}},
	}

	success, err := c.Replay(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := success.DestinationResults["d1"]; ok {
		t.Fatalf("expected d1 to be skipped, got results %v", success.DestinationResults)
	}
	if success.DestinationResults["d2"] != "d2-result" {
		t.Fatalf("expected d2 to run, got %v", success.DestinationResults)
	}
	sort.Strings(calls)
	if len(calls) != 1 || calls[0] != "d2" {
		t.Fatalf("expected only d2 invoked, got %v", calls)
	}
}

func TestReplayAllDestinationsSkippedIsNoOp(t *testing.T) {
	var calls []string
	c, err := New("orders", []handler.Processor{passthroughFilter("gate")},
		[]handler.Destination{recordingDestination("d1", &calls)}, memstore.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := &message.Message{
		ID:       "id-1",
		Content:  "payload",
		Metadata: message.Metadata{DestinationsToSkip: []string{"d1"}},
	}

	success, err := c.Replay(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(success.DestinationResults) != 0 {
		t.Fatalf("expected empty destination results, got %v", success.DestinationResults)
	}
	if len(calls) != 0 {
		t.Fatalf("expected no destination calls, got %v", calls)
	}
}

func TestMultipleDestinationFailuresAggregateDeterministically(t *testing.T) {
	failA := handler.NewDestination("b-dest", func(ctx *message.Context) (any, error) {
		return nil, errors.New("fail b")
	}, nil)
	failB := handler.NewDestination("a-dest", func(ctx *message.Context) (any, error) {
		return nil, errors.New("fail a")
	}, nil)

	store := memstore.New()
	c, err := New("orders", []handler.Processor{passthroughFilter("gate")},
		[]handler.Destination{failA, failB}, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = c.Execute(context.Background(), "payload")
	if err == nil {
		t.Fatal("expected error")
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ExecutionError, got %T", err)
	}
	var destErr *DestinationError
	if !errors.As(execErr.Err, &destErr) {
		t.Fatalf("expected *DestinationError cause, got %T", execErr.Err)
	}
	if destErr.FailedIDs[0] != "a-dest" || destErr.FailedIDs[1] != "b-dest" {
		t.Fatalf("expected lexically sorted failed ids, got %v", destErr.FailedIDs)
	}
}

func TestConstructionRejectsEmptyProcessorsOrDestinations(t *testing.T) {
	store := memstore.New()
	if _, err := New("orders", nil, []handler.Destination{recordingDestination("d1", &[]string{})}, store); err == nil {
		t.Fatal("expected ConfigurationError for empty processors")
	}
	if _, err := New("orders", []handler.Processor{passthroughFilter("gate")}, nil, store); err == nil {
		t.Fatal("expected ConfigurationError for empty destinations")
	}
}
