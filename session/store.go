package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// ErrBackend indicates the session backend is unreachable.
var ErrBackend = errors.New("session backend unavailable")

// Store keeps sessions in Redis keyed by session ID with the session
// lifetime as TTL. Expiry is additionally checked on read so a lagging TTL
// never extends a session.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "sls"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	encoded, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sess.SessionID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID

	if time.Now().UnixMilli() > sess.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(sessionID)).Result()
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete removes a session. Idempotent: deleting a missing session reports
// existed=false without error.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return n > 0, nil
}
