package chain

import (
	"sort"
	"sync"

	"github.com/songzhibin97/handlerchain/handler"
	"github.com/songzhibin97/handlerchain/message"
)

// processorOutcome is the result of running the processor stage.
type processorOutcome struct {
	dropped  bool
	snapshot *message.Context
	err      error
}

// runProcessors executes processors in declaration order against ctx.
// snapshot is a private clone the orchestrator owns; only it is
// annotated with the error on failure, per the "snapshot is the
// authoritative failure payload" invariant.
func runProcessors(ctx *message.Context, snapshot *message.Context, processors []handler.Processor) processorOutcome {
	for _, p := range processors {
		drop, err := p.Invoke(ctx)
		if err != nil {
			procErr := &ProcessorError{ProcessorID: p.ID, Cause: err}
			snapshot.SetErrorSnapshot(procErr.Error(), "", err.Error())
			return processorOutcome{snapshot: snapshot, err: procErr}
		}
		if drop {
			return processorOutcome{dropped: true, snapshot: snapshot}
		}
		// Keep snapshot's content in sync with any transformer mutation so
		// a later failure persists the post-transform payload.
		snapshot.SetContent(ctx.Content())
	}
	return processorOutcome{snapshot: snapshot}
}

// destinationOutcome is the result of running the destination stage.
type destinationOutcome struct {
	results map[string]any
	err     error
}

// RetryHook is notified on each destination retry attempt; used to wire
// logging/metrics without handler depending on either package.
type RetryHook func(destinationID string, attempt int)

// runDestinations fans out over the effective destination list (those
// not already present in ctx's skip list), one goroutine each with its
// own deep-cloned context, and aggregates the outcome onto snapshot.
func runDestinations(ctx *message.Context, snapshot *message.Context, destinations []handler.Destination, hook RetryHook) destinationOutcome {
	effective := make([]handler.Destination, 0, len(destinations))
	for _, d := range destinations {
		if !ctx.ShouldSkip(d.ID) {
			effective = append(effective, d)
		}
	}

	type result struct {
		id    string
		value any
		err   error
	}

	results := make([]result, len(effective))
	var wg sync.WaitGroup
	wg.Add(len(effective))
	for i, d := range effective {
		go func(i int, d handler.Destination) {
			defer wg.Done()
			cloned := ctx.Clone()
			var value any
			var err error
			if hook != nil {
				value, err = d.InvokeObserved(cloned, handler.RetryObserver(hook))
			} else {
				value, err = d.Invoke(cloned)
			}
			results[i] = result{id: d.ID, value: value, err: err}
		}(i, d)
	}
	wg.Wait()

	successes := make(map[string]any)
	failCauses := make(map[string]error)
	var failedIDs []string

	for _, r := range results {
		if r.err != nil {
			failCauses[r.id] = r.err
			failedIDs = append(failedIDs, r.id)
			continue
		}
		successes[r.id] = r.value
		snapshot.MarkDestinationSucceeded(r.id, r.value)
	}

	if len(failedIDs) == 0 {
		return destinationOutcome{results: successes}
	}

	sort.Strings(failedIDs)
	destErr := &DestinationError{FailedIDs: failedIDs, Causes: failCauses}

	for _, id := range failedIDs {
		cause := failCauses[id]
		snapshot.SetDestinationError(id, message.ErrorInfo{Message: cause.Error()})
	}
	firstCause := failCauses[failedIDs[0]]
	snapshot.SetErrorSnapshot(destErr.Error(), "", firstCause.Error())

	return destinationOutcome{results: successes, err: destErr}
}
