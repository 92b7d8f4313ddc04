// internal/engine/session/store.go

// Package session keeps per-conversation state in Redis so follow-up
// queries can reuse last-referenced entities. Only the request owning a
// session id writes to that entry; last write wins.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"scm-assistant/internal/common/logger"
	"scm-assistant/internal/models"
)

const keyPrefix = "session:"

// Store is the Redis-backed session store.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewStore(client *redis.Client, ttl time.Duration, log logger.Logger) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "session"}),
	}
}

// GetOrCreate loads the session for id, or creates a fresh one. An empty id
// always creates. A corrupt or expired entry is replaced rather than
// failing the request.
func (s *Store) GetOrCreate(ctx context.Context, id string) *models.QuerySession {
	if id == "" {
		return s.newSession()
	}

	raw, err := s.client.Get(ctx, keyPrefix+id).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("session load failed", map[string]interface{}{
				"sessionId": id,
				"error":     err.Error(),
			})
		}
		sess := s.newSession()
		sess.ID = id
		return sess
	}

	var sess models.QuerySession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		s.logger.Warn("session entry corrupt, recreating", map[string]interface{}{
			"sessionId": id,
		})
		fresh := s.newSession()
		fresh.ID = id
		return fresh
	}
	return &sess
}

// Save persists the session with the configured TTL. Failures are logged
// and swallowed: losing follow-up context must not fail the response.
func (s *Store) Save(ctx context.Context, sess *models.QuerySession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+sess.ID, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("session save failed", map[string]interface{}{
			"sessionId": sess.ID,
			"error":     err.Error(),
		})
		return err
	}
	return nil
}

// Delete removes a session entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, keyPrefix+id).Err()
}

func (s *Store) newSession() *models.QuerySession {
	now := time.Now().UTC()
	return &models.QuerySession{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
