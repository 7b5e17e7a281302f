package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis transport failure returned by [Store].
var ErrRedisUnavailable = errors.New("redis unavailable")

const maxRevokeRetries = 4

// Store is a Redis-backed session store. Each session lives under its own key
// with the session's lifetime as TTL; a per-user set indexes active sessions.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace for session records.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "as"
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return "au:" + userID
}

// Save persists a [Session] with the given TTL and adds it to the owner's index.
//
//	Performance: 1 MULTI/EXEC (SET + SADD).
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a session by ID, including revoked ones. A missing session, or
// one whose expiry is not after now, yields redis.Nil.
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, sessionID string, now time.Time) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID
	if now.Unix() >= sess.ExpiresAt {
		return nil, redis.Nil
	}

	return sess, nil
}

// Revoke marks a session revoked with the given reason. The record keeps its
// TTL. The boolean reports whether this call performed the transition; a
// second revocation of the same session returns the stored record and false.
//
//	Performance: WATCH + GET + MULTI/EXEC (SET KEEPTTL + SREM), retried on contention.
//	Security: CAS keeps the first revocation reason and timestamp.
func (s *Store) Revoke(ctx context.Context, sessionID, reason string, now time.Time) (*Session, bool, error) {
	key := s.key(sessionID)

	for i := 0; i < maxRevokeRetries; i++ {
		var (
			sess    *Session
			changed bool
		)
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			current, err := Decode(data)
			if err != nil {
				return err
			}
			current.SessionID = sessionID
			sess = current
			if current.Revoked {
				return nil
			}

			current.Revoked = true
			current.RevokeReason = reason
			current.RevokedAt = now.Unix()
			encoded, err := Encode(current)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetArgs(ctx, key, encoded, redis.SetArgs{KeepTTL: true})
				pipe.SRem(ctx, s.userKey(current.UserID), sessionID)
				return nil
			})
			if err == nil {
				changed = true
			}
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, ErrSessionCorrupt) {
				return nil, false, err
			}
			return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return sess, changed, nil
	}

	return nil, false, fmt.Errorf("%w: revoke contention on %s", ErrRedisUnavailable, sessionID)
}

// RevokeAllForUser revokes every indexed session of userID except the one
// named by keep (empty keeps none) and returns the IDs this call revoked.
//
// ATOMICITY NOTE: each session is revoked with its own CAS. A session created
// while this runs is not captured; callers that need a hard cut follow up with
// a second call.
func (s *Store) RevokeAllForUser(ctx context.Context, userID, keep, reason string, now time.Time) ([]string, error) {
	sessionIDs, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := make([]string, 0, len(sessionIDs))
	var stale []interface{}
	for _, sessionID := range sessionIDs {
		if sessionID == keep {
			continue
		}
		_, changed, err := s.Revoke(ctx, sessionID, reason, now)
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, ErrSessionCorrupt) {
				stale = append(stale, sessionID)
				continue
			}
			return revoked, err
		}
		if changed {
			revoked = append(revoked, sessionID)
		}
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.userKey(userID), stale...).Err(); err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return revoked, nil
}

// ListActive returns the user's sessions that are unrevoked and unexpired at
// now, and prunes index entries whose record is gone.
func (s *Store) ListActive(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, sid := range ids {
		cmds[i] = pipe.Get(ctx, s.key(sid))
	}
	_, err = pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	nowUnix := now.Unix()
	sessions := make([]*Session, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		sess, decErr := Decode(data)
		if decErr != nil {
			stale = append(stale, ids[i])
			continue
		}
		sess.SessionID = ids[i]
		if !sess.Active(nowUnix) {
			continue
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.userKey(userID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return sessions, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
