package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attemptRecordVersion1 = 1
)

var (
	ErrAttemptNotFound = errors.New("login attempt not found")
	ErrAttemptExpired  = errors.New("login attempt expired")
	ErrAttemptStep     = errors.New("login attempt step mismatch")
	ErrAttemptBackend  = errors.New("attempt backend unavailable")
)

// AttemptRecord is the persisted state of one login sequence between steps.
// ChallengeID is non-empty exactly while the sequence awaits a code.
// ExpiresAt is Unix milliseconds.
type AttemptRecord struct {
	AccountID   string
	Username    string
	Step        uint8
	ChallengeID string
	ExpiresAt   int64
}

// AttemptStore keeps attempt records in Redis keyed by attempt token. The
// key TTL mirrors ExpiresAt so abandoned attempts age out on their own;
// Get additionally checks ExpiresAt so a lagging TTL can never resurrect an
// expired sequence.
type AttemptStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewAttemptStore(redisClient redis.UniversalClient, prefix string) *AttemptStore {
	if prefix == "" {
		prefix = "sla"
	}
	return &AttemptStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *AttemptStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *AttemptStore) Save(
	ctx context.Context,
	token string,
	record *AttemptRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeAttemptRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(token), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptBackend, err)
	}
	return nil
}

// Get loads a live attempt. On lazy expiry the stale record is deleted and
// returned alongside ErrAttemptExpired so the caller can still audit the
// timeout with account context.
func (s *AttemptStore) Get(ctx context.Context, token string) (*AttemptRecord, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrAttemptBackend, err)
	}

	record, err := decodeAttemptRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().UnixMilli() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(token)).Result()
		return record, ErrAttemptExpired
	}
	return record, nil
}

// Delete removes an attempt record on a terminal transition. Returns whether
// the record still existed.
func (s *AttemptStore) Delete(ctx context.Context, token string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrAttemptBackend, err)
	}
	return n > 0, nil
}

// Advance applies a step transition under a WATCH transaction: the record
// must currently sit at fromStep, mutate rewrites it, and the idle window
// restarts from now. Concurrent submissions for the same token serialize
// here; the loser retries and observes the step mismatch.
func (s *AttemptStore) Advance(
	ctx context.Context,
	token string,
	fromStep uint8,
	window time.Duration,
	mutate func(*AttemptRecord),
) (*AttemptRecord, error) {
	const maxRetries = 4
	key := s.key(token)

	for i := 0; i < maxRetries; i++ {
		var updated *AttemptRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeAttemptRecord(data)
			if err != nil {
				return err
			}
			if time.Now().UnixMilli() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrAttemptExpired
			}
			if record.Step != fromStep {
				return ErrAttemptStep
			}

			mutate(record)
			record.ExpiresAt = time.Now().Add(window).UnixMilli()

			encoded, err := encodeAttemptRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, window)
				return nil
			})
			if err != nil {
				return err
			}
			updated = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrAttemptNotFound
			}
			if errors.Is(err, ErrAttemptExpired) || errors.Is(err, ErrAttemptStep) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrAttemptBackend, err)
		}
		return updated, nil
	}

	return nil, ErrAttemptNotFound
}

func encodeAttemptRecord(record *AttemptRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(attemptRecordVersion1)
	buf.WriteByte(record.Step)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []string{record.AccountID, record.Username, record.ChallengeID} {
		if len(field) > 65535 {
			return nil, errors.New("attempt record field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeAttemptRecord(data []byte) (*AttemptRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != attemptRecordVersion1 {
		return nil, errors.New("invalid attempt record version")
	}

	record := &AttemptRecord{}
	if record.Step, err = reader.ReadByte(); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []*string{&record.AccountID, &record.Username, &record.ChallengeID} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	return record, nil
}
