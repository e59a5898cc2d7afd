// Package memstore is an in-process replaystore.Store backed by a
// mutex-guarded map, grounded in the teacher's
// internal/store/driver/memory implementation. It is the default store
// for tests and examples.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/songzhibin97/handlerchain/replaystore"
)

type record struct {
	payload   []byte
	inFlight  bool
}

// Store implements replaystore.Store entirely in memory.
type Store struct {
	mu      sync.Mutex
	records map[string]*record
	order   []string
	seq     uint64
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[string]*record)}
}

func (s *Store) Store(_ context.Context, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("env-%d", atomic.AddUint64(&s.seq, 1))
	cp := append([]byte(nil), payload...)
	s.records[id] = &record{payload: cp}
	s.order = append(s.order, id)
	return id, nil
}

func (s *Store) Retrieve(_ context.Context) (*replaystore.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		rec, ok := s.records[id]
		if !ok || rec.inFlight {
			continue
		}
		rec.inFlight = true
		return &replaystore.Envelope{ID: id, Payload: append([]byte(nil), rec.payload...)}, nil
	}
	return nil, nil
}

func (s *Store) Acknowledge(_ context.Context, envelopeID string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[envelopeID]
	if !ok {
		return fmt.Errorf("memstore: unknown envelope %q", envelopeID)
	}
	if success {
		delete(s.records, envelopeID)
		s.removeFromOrder(envelopeID)
		return nil
	}
	rec.inFlight = false
	return nil
}

func (s *Store) removeFromOrder(id string) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *Store) Close() error { return nil }
