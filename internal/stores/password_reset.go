package stores

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	resetRecordVersionV1 = 1
)

var (
	ErrResetNotFound         = errors.New("reset token not found")
	ErrResetMismatch         = errors.New("reset token owner mismatch")
	ErrResetAlreadyUsed      = errors.New("reset token already used")
	ErrResetExpired          = errors.New("reset token expired")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// PasswordResetRecord is the single reset token a user may hold. The token
// value is kept so a repeated request can resend it.
type PasswordResetRecord struct {
	Token     string
	UserID    string
	CreatedAt int64
	ExpiresAt int64
	Used      bool
	UsedAt    int64
}

// PasswordResetStore keeps at most one reset record per user. Records outlive
// their expiry by a retention window so used and expired tokens are still
// told apart from unknown ones.
type PasswordResetStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *PasswordResetStore {
	if prefix == "" {
		prefix = "apr"
	}
	if retention < 0 {
		retention = 0
	}
	return &PasswordResetStore{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *PasswordResetStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + "t:" + hex.EncodeToString(sum[:])
}

func (s *PasswordResetStore) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Issue returns the user's reset record valid until now+ttl. An existing
// record (used, expired or live) is reactivated in place: same token, same
// creation time, used cleared, expiry extended. Otherwise newToken mints a
// fresh record. reactivated reports which path was taken.
func (s *PasswordResetStore) Issue(
	ctx context.Context,
	userID string,
	newToken func() (string, error),
	ttl time.Duration,
	now time.Time,
) (*PasswordResetRecord, bool, error) {
	userKey := s.userKey(userID)
	keep := ttl + s.retention

	for i := 0; i < maxRetries; i++ {
		var (
			issued      *PasswordResetRecord
			reactivated bool
		)
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			var record *PasswordResetRecord

			token, err := tx.Get(ctx, userKey).Result()
			switch {
			case err == nil:
				data, getErr := tx.Get(ctx, s.key(token)).Bytes()
				if getErr == nil {
					if decoded, decErr := decodePasswordResetRecord(data); decErr == nil && decoded.UserID == userID {
						record = decoded
						record.Token = token
						reactivated = true
					}
				} else if !errors.Is(getErr, redis.Nil) {
					return getErr
				}
			case errors.Is(err, redis.Nil):
			default:
				return err
			}

			if record == nil {
				token, err := newToken()
				if err != nil {
					return err
				}
				record = &PasswordResetRecord{
					Token:     token,
					UserID:    userID,
					CreatedAt: now.Unix(),
				}
			}
			record.Used = false
			record.UsedAt = 0
			record.ExpiresAt = now.Add(ttl).Unix()

			encoded, err := encodePasswordResetRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.key(record.Token), encoded, keep)
				pipe.Set(ctx, userKey, record.Token, keep)
				return nil
			})
			if err == nil {
				issued = record
			}
			return err
		}, userKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
		return issued, reactivated, nil
	}

	return nil, false, fmt.Errorf("%w: issue contention", ErrResetRedisUnavailable)
}

// Check classifies token for userID without consuming it. Errors follow the
// precedence not found, owner mismatch, already used, expired.
func (s *PasswordResetStore) Check(ctx context.Context, token, userID string, now time.Time) (*PasswordResetRecord, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	record, err := decodePasswordResetRecord(data)
	if err != nil {
		return nil, ErrResetNotFound
	}
	record.Token = token
	if err := classifyReset(record, userID, now); err != nil {
		return nil, err
	}
	return record, nil
}

// Consume marks token used for userID. Exactly one concurrent caller
// succeeds; the others observe ErrResetAlreadyUsed.
func (s *PasswordResetStore) Consume(ctx context.Context, token, userID string, now time.Time) (*PasswordResetRecord, error) {
	key := s.key(token)

	for i := 0; i < maxRetries; i++ {
		var consumed *PasswordResetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodePasswordResetRecord(data)
			if err != nil {
				return ErrResetNotFound
			}
			record.Token = token
			if err := classifyReset(record, userID, now); err != nil {
				return err
			}

			record.Used = true
			record.UsedAt = now.Unix()
			encoded, err := encodePasswordResetRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetArgs(ctx, key, encoded, redis.SetArgs{KeepTTL: true})
				return nil
			})
			if err == nil {
				consumed = record
			}
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrResetNotFound
			case errors.Is(err, ErrResetNotFound),
				errors.Is(err, ErrResetMismatch),
				errors.Is(err, ErrResetAlreadyUsed),
				errors.Is(err, ErrResetExpired):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
			}
		}
		return consumed, nil
	}

	return nil, fmt.Errorf("%w: consume contention", ErrResetRedisUnavailable)
}

// CountForUser reports how many reset records the user holds (0 or 1).
func (s *PasswordResetStore) CountForUser(ctx context.Context, userID string) (int, error) {
	token, err := s.redis.Get(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	n, err := s.redis.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return int(n), nil
}

func classifyReset(record *PasswordResetRecord, userID string, now time.Time) error {
	switch {
	case record.UserID != userID:
		return ErrResetMismatch
	case record.Used:
		return ErrResetAlreadyUsed
	case now.Unix() > record.ExpiresAt:
		return ErrResetExpired
	default:
		return nil
	}
}

func encodePasswordResetRecord(record *PasswordResetRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(resetRecordVersionV1)

	if len(record.UserID) > 255 {
		return nil, errors.New("reset user id too long")
	}
	buf.WriteByte(byte(len(record.UserID)))
	buf.WriteString(record.UserID)

	for _, v := range []int64{record.CreatedAt, record.ExpiresAt, record.UsedAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}
	if record.Used {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes(), nil
}

func decodePasswordResetRecord(data []byte) (*PasswordResetRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersionV1 {
		return nil, errors.New("invalid reset record version")
	}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, err
	}

	record := &PasswordResetRecord{UserID: string(user)}
	for _, dst := range []*int64{&record.CreatedAt, &record.ExpiresAt, &record.UsedAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}
	used, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.Used = used == 1

	return record, nil
}
