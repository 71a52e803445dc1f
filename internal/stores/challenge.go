package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeRecordVersion1 = 1
)

var (
	ErrChallengeNotFound = errors.New("code challenge not found")
	ErrChallengeExpired  = errors.New("code challenge expired")
	ErrChallengeMismatch = errors.New("code mismatch")
	ErrChallengeExceeded = errors.New("code challenge attempts exceeded")
	ErrChallengeBackend  = errors.New("code challenge backend unavailable")
)

// ChallengeRecord is one issued one-time code, keyed by its correlation
// token. Only the code digest is stored. ExpiresAt is Unix milliseconds.
type ChallengeRecord struct {
	AccountID string
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

// ChallengeStore keeps code challenges in Redis.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "slc"
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChallengeStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

func (s *ChallengeStore) Save(
	ctx context.Context,
	challengeID string,
	record *ChallengeRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

// Delete removes a challenge, e.g. when a resend replaces it. Returns whether
// it still existed.
func (s *ChallengeStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return n > 0, nil
}

// Consume verifies a submitted code digest against the stored challenge under
// a WATCH transaction. A match deletes the challenge in the same transaction,
// so a token verifies Valid at most once; a replay observes NotFound. A
// mismatch increments the attempt counter, deleting the challenge once the
// budget is exhausted. Comparison is constant time.
func (s *ChallengeStore) Consume(
	ctx context.Context,
	challengeID string,
	providedHash [32]byte,
	maxAttempts int,
) (*ChallengeRecord, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var matched *ChallengeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeRecord(data)
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
				return ErrChallengeExpired
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrChallengeExceeded
				}

				ttl := time.Until(time.UnixMilli(record.ExpiresAt))
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrChallengeExpired
				}

				encoded, err := encodeChallengeRecord(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, encoded, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}
			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrChallengeNotFound
			}
			if errors.Is(err, ErrChallengeExpired) ||
				errors.Is(err, ErrChallengeMismatch) ||
				errors.Is(err, ErrChallengeExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
		return matched, nil
	}

	return nil, ErrChallengeNotFound
}

func encodeChallengeRecord(record *ChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	if len(record.AccountID) > 65535 {
		return nil, errors.New("challenge account id length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*ChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &ChallengeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	var accountLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountLen); err != nil {
		return nil, err
	}
	account := make([]byte, accountLen)
	if _, err := io.ReadFull(reader, account); err != nil {
		return nil, err
	}
	record.AccountID = string(account)

	return record, nil
}
