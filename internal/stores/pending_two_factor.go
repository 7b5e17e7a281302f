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
	pendingTwoFactorRecordVersion1 = 1
	maxRetries                     = 4
)

var (
	ErrPendingTwoFactorNotFound = errors.New("pending two-factor session not found")
	ErrPendingTwoFactorExpired  = errors.New("pending two-factor session expired")
	ErrPendingTwoFactorBackend  = errors.New("pending two-factor backend unavailable")
)

// PendingTwoFactor is the state between a verified password and a verified
// second factor.
type PendingTwoFactor struct {
	UserID     string
	CreatedAt  int64
	ExpiresAt  int64
	Attempts   uint16
	RememberMe bool
}

type PendingTwoFactorStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPendingTwoFactorStore(redisClient redis.UniversalClient, prefix string) *PendingTwoFactorStore {
	if prefix == "" {
		prefix = "a2p"
	}
	return &PendingTwoFactorStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PendingTwoFactorStore) key(pendingID string) string {
	return s.prefix + ":" + pendingID
}

func (s *PendingTwoFactorStore) Save(
	ctx context.Context,
	pendingID string,
	record *PendingTwoFactor,
	ttl time.Duration,
) error {
	encoded, err := encodePendingTwoFactor(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(pendingID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingTwoFactorBackend, err)
	}
	return nil
}

func (s *PendingTwoFactorStore) Get(ctx context.Context, pendingID string, now time.Time) (*PendingTwoFactor, error) {
	data, err := s.redis.Get(ctx, s.key(pendingID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingTwoFactorNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingTwoFactorBackend, err)
	}

	record, err := decodePendingTwoFactor(data)
	if err != nil {
		return nil, err
	}
	if now.Unix() >= record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(pendingID)).Result()
		return nil, ErrPendingTwoFactorExpired
	}
	return record, nil
}

// Delete removes the pending session and reports whether this call removed it.
// Only the caller that sees true may mint tokens.
func (s *PendingTwoFactorStore) Delete(ctx context.Context, pendingID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(pendingID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPendingTwoFactorBackend, err)
	}
	return n > 0, nil
}

// RecordFailure atomically counts one rejected code. When the count reaches
// maxAttempts the pending session is destroyed and exceeded is true.
func (s *PendingTwoFactorStore) RecordFailure(
	ctx context.Context,
	pendingID string,
	maxAttempts int,
	now time.Time,
) (int, bool, error) {
	key := s.key(pendingID)

	for i := 0; i < maxRetries; i++ {
		var (
			attempts int
			exceeded bool
		)
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodePendingTwoFactor(data)
			if err != nil {
				return err
			}
			ttl := time.Unix(record.ExpiresAt, 0).Sub(now)
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrPendingTwoFactorExpired
			}

			record.Attempts++
			attempts = int(record.Attempts)
			if attempts >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodePendingTwoFactor(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return 0, false, ErrPendingTwoFactorNotFound
			}
			if errors.Is(err, ErrPendingTwoFactorExpired) {
				return 0, false, err
			}
			return 0, false, fmt.Errorf("%w: %v", ErrPendingTwoFactorBackend, err)
		}
		return attempts, exceeded, nil
	}

	return 0, false, fmt.Errorf("%w: attempt counter contention", ErrPendingTwoFactorBackend)
}

func encodePendingTwoFactor(record *PendingTwoFactor) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(pendingTwoFactorRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if record.RememberMe {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("pending two-factor user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)

	return buf.Bytes(), nil
}

func decodePendingTwoFactor(data []byte) (*PendingTwoFactor, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingTwoFactorRecordVersion1 {
		return nil, errors.New("invalid pending two-factor version")
	}

	record := &PendingTwoFactor{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	flag, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.RememberMe = flag == 1

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, err
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, err
	}
	record.UserID = string(user)

	return record, nil
}
