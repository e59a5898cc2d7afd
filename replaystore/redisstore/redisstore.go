// Package redisstore implements replaystore.Store over Redis lists,
// grounded in the teacher's internal/store/driver/redis client-setup
// conventions (options, dial timeout, startup Ping).
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/songzhibin97/handlerchain/replaystore"
)

// Config configures the Redis connection and key namespace.
type Config struct {
	Address   string
	Password  string
	Database  int
	Timeout   time.Duration
	KeyPrefix string
}

// Store implements replaystore.Store against a Redis list acting as a
// FIFO queue, with a companion string key per payload and a set
// tracking in-flight envelope ids.
type Store struct {
	client *redis.Client
	prefix string
}

// New dials Redis per cfg and verifies connectivity with Ping.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redisstore: address is required")
	}

	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.Database,
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisstore: failed to connect: %w", err)
	}

	return &Store{client: client, prefix: cfg.KeyPrefix}, nil
}

func (s *Store) key(suffix string) string {
	if s.prefix == "" {
		return suffix
	}
	return s.prefix + ":" + suffix
}

func (s *Store) queueKey() string       { return s.key("queue") }
func (s *Store) inflightKey() string    { return s.key("inflight") }
func (s *Store) payloadKey(id string) string { return s.key("payload:" + id) }

func (s *Store) Store(ctx context.Context, payload []byte) (string, error) {
	id, err := s.client.Incr(ctx, s.key("seq")).Result()
	if err != nil {
		return "", fmt.Errorf("redisstore: failed to allocate envelope id: %w", err)
	}
	envelopeID := strconv.FormatInt(id, 10)

	if err := s.client.Set(ctx, s.payloadKey(envelopeID), payload, 0).Err(); err != nil {
		return "", fmt.Errorf("redisstore: failed to store payload: %w", err)
	}
	if err := s.client.RPush(ctx, s.queueKey(), envelopeID).Err(); err != nil {
		return "", fmt.Errorf("redisstore: failed to enqueue envelope: %w", err)
	}
	return envelopeID, nil
}

func (s *Store) Retrieve(ctx context.Context) (*replaystore.Envelope, error) {
	id, err := s.client.LPop(ctx, s.queueKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: failed to pop envelope: %w", err)
	}

	payload, err := s.client.Get(ctx, s.payloadKey(id)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("redisstore: failed to load payload for envelope %s: %w", id, err)
	}
	if err := s.client.SAdd(ctx, s.inflightKey(), id).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: failed to mark envelope in-flight: %w", err)
	}

	return &replaystore.Envelope{ID: id, Payload: payload}, nil
}

func (s *Store) Acknowledge(ctx context.Context, envelopeID string, success bool) error {
	if err := s.client.SRem(ctx, s.inflightKey(), envelopeID).Err(); err != nil {
		return fmt.Errorf("redisstore: failed to clear in-flight flag: %w", err)
	}
	if success {
		if err := s.client.Del(ctx, s.payloadKey(envelopeID)).Err(); err != nil {
			return fmt.Errorf("redisstore: failed to remove payload: %w", err)
		}
		return nil
	}
	if err := s.client.RPush(ctx, s.queueKey(), envelopeID).Err(); err != nil {
		return fmt.Errorf("redisstore: failed to redeliver envelope: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
