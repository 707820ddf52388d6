package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore keeps checkout metadata for a payment session until the
// buyer comes back from the gateway.
type SessionStore interface {
	Save(ctx context.Context, sessionID string, metadata map[string]string) error
	// Load returns nil, nil for an unknown or expired session.
	Load(ctx context.Context, sessionID string) (map[string]string, error)
}

type redisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) SessionStore {
	return &redisSessionStore{
		rdb: rdb,
		ttl: ttl,
	}
}

func (s *redisSessionStore) key(sessionID string) string {
	return "checkout:session:" + sessionID
}

func (s *redisSessionStore) Save(ctx context.Context, sessionID string, metadata map[string]string) error {
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode session metadata: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(sessionID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session metadata: %w", err)
	}
	return nil
}

func (s *redisSessionStore) Load(ctx context.Context, sessionID string) (map[string]string, error) {
	payload, err := s.rdb.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session metadata: %w", err)
	}

	var metadata map[string]string
	if err := json.Unmarshal(payload, &metadata); err != nil {
		return nil, fmt.Errorf("decode session metadata: %w", err)
	}
	return metadata, nil
}
