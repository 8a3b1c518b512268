package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"noddymix/core/session"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// redisSessionStore keeps anonymous-visitor sessions in Redis, one JSON
// value per session with a sliding expiry. Losing a session loses nothing
// durable; ephemeral playlists are ephemeral by contract.
type redisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore creates a Redis-backed session store with the given
// time-to-live.
func NewSessionStore(client *redis.Client, ttl time.Duration) session.Store {
	return &redisSessionStore{client: client, ttl: ttl}
}

// NewSessionID mints a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

func sessionKey(id string) string {
	return "session:" + id
}

// Get retrieves a session, or nil if it doesn't exist or has expired.
func (s *redisSessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

// Save writes the session back and restarts its expiry clock.
func (s *redisSessionStore) Save(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}
