package memstore

import (
	"context"
	"testing"
)

func TestStoreRetrieveAcknowledge(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Store(ctx, []byte("payload-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env, err := s.Retrieve(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env == nil || env.ID != id {
		t.Fatalf("expected envelope %q, got %v", id, env)
	}

	if env2, _ := s.Retrieve(ctx); env2 != nil {
		t.Fatalf("expected in-flight envelope to be hidden from further retrieval, got %v", env2)
	}

	if err := s.Acknowledge(ctx, id, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env3, _ := s.Retrieve(ctx); env3 != nil {
		t.Fatalf("expected acknowledged envelope to be gone, got %v", env3)
	}
}

func TestAcknowledgeFailureRedelivers(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, _ := s.Store(ctx, []byte("payload-1"))
	if _, err := s.Retrieve(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Acknowledge(ctx, id, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env, err := s.Retrieve(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env == nil || env.ID != id {
		t.Fatalf("expected envelope redelivered after nack, got %v", env)
	}
}

func TestRetrieveEmptyReturnsNilNil(t *testing.T) {
	s := New()
	env, err := s.Retrieve(context.Background())
	if env != nil || err != nil {
		t.Fatalf("expected (nil, nil) on empty store, got (%v, %v)", env, err)
	}
}
