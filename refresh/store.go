package refresh

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis transport failure returned by [Store].
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	redeemStatusNotFound int64 = 0
	redeemStatusUsed     int64 = 1
	redeemStatusRevoked  int64 = 2
	redeemStatusExpired  int64 = 3
	redeemStatusRotated  int64 = 4
)

const redeemScript = `
local token_key = KEYS[1]
local next_key = KEYS[2]
local provided_hash = ARGV[1]
local now_unix = tonumber(ARGV[2])
local next_id = ARGV[3]
local next_hash = ARGV[4]
local token_id = ARGV[5]
local chain_prefix = ARGV[6]

if redis.call("EXISTS", token_key) == 0 then
  return {0}
end

local f = redis.call("HMGET", token_key, "hash", "used", "revoked", "exp", "sid", "uid")
if f[1] ~= provided_hash then
  return {0}
end
if f[2] == "1" then
  return {1, f[5], f[6], f[4]}
end
if f[3] == "1" then
  return {2, f[5], f[6], f[4]}
end
if tonumber(f[4]) <= now_unix then
  return {3, f[5], f[6], f[4]}
end

redis.call("HSET", token_key, "used", "1", "used_at", ARGV[2], "next", next_id)
redis.call("HSET", next_key,
  "sid", f[5], "uid", f[6], "hash", next_hash,
  "iat", ARGV[2], "exp", f[4],
  "used", "0", "used_at", "0", "revoked", "0",
  "prev", token_id, "next", "")

local ttl = redis.call("PTTL", token_key)
if ttl > 0 then
  redis.call("PEXPIRE", next_key, ttl)
end
local chain_key = chain_prefix .. f[5]
redis.call("SADD", chain_key, next_id)
local chain_ttl = redis.call("PTTL", chain_key)
if ttl > 0 and chain_ttl < ttl then
  redis.call("PEXPIRE", chain_key, ttl)
end

return {4, f[5], f[6], f[4]}
`

var redeemLua = redis.NewScript(redeemScript)

const revokeChainScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local revoked = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  if redis.call("EXISTS", key) == 1 and redis.call("HGET", key, "revoked") ~= "1" then
    redis.call("HSET", key, "revoked", "1")
    revoked = revoked + 1
  end
end
return revoked
`

var revokeChainLua = redis.NewScript(revokeChainScript)

// Store persists refresh tokens as Redis hashes and tracks each session's
// chain in a set.
//
// The redeem and revoke scripts derive successor and chain keys inside Lua,
// so Store needs a single-node or replicated Redis, not Redis Cluster.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a refresh [Store]. prefix namespaces token records.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ar"
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

func (s *Store) chainKey(sessionID string) string {
	return s.prefix + "c:" + sessionID
}

// Issue stores the first token of a chain. ttl is how long the record is
// kept, which should cover the token's lifetime plus any retention window.
//
//	Performance: 1 MULTI/EXEC (HSET + PEXPIRE + SADD + PEXPIRE).
func (s *Store) Issue(ctx context.Context, t *Token, ttl time.Duration) error {
	if t == nil || t.ID == "" || t.SessionID == "" {
		return errors.New("refresh token requires id and session id")
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(t.ID), encodeFields(t))
		pipe.PExpire(ctx, s.key(t.ID), ttl)
		pipe.SAdd(ctx, s.chainKey(t.SessionID), t.ID)
		pipe.PExpire(ctx, s.chainKey(t.SessionID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Redeem atomically consumes the token identified by tokenID when
// secretHash matches and the token is neither used, revoked nor expired. On
// success the successor (nextID, nextHash) is stored in the same chain with
// the same absolute expiry.
//
//	Performance: 1 Lua EVALSHA.
//	Security: exactly one concurrent redeemer observes RedeemRotated.
func (s *Store) Redeem(
	ctx context.Context,
	tokenID string,
	secretHash [32]byte,
	nextID string,
	nextHash [32]byte,
	now time.Time,
) (RedeemResult, error) {
	result, err := redeemLua.Run(
		ctx,
		s.redis,
		[]string{s.key(tokenID), s.key(nextID)},
		hex.EncodeToString(secretHash[:]),
		now.Unix(),
		nextID,
		hex.EncodeToString(nextHash[:]),
		tokenID,
		s.chainKey(""),
	).Result()
	if err != nil {
		return RedeemResult{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return RedeemResult{}, fmt.Errorf("%w: invalid redeem script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return RedeemResult{}, fmt.Errorf("%w: invalid redeem script status", ErrRedisUnavailable)
	}

	var status RedeemStatus
	switch code {
	case redeemStatusNotFound:
		return RedeemResult{Status: RedeemNotFound}, nil
	case redeemStatusUsed:
		status = RedeemUsed
	case redeemStatusRevoked:
		status = RedeemRevoked
	case redeemStatusExpired:
		status = RedeemExpired
	case redeemStatusRotated:
		status = RedeemRotated
	default:
		return RedeemResult{}, fmt.Errorf("%w: unknown redeem script status %d", ErrRedisUnavailable, code)
	}

	if len(parts) < 4 {
		return RedeemResult{}, fmt.Errorf("%w: truncated redeem script response", ErrRedisUnavailable)
	}
	out := RedeemResult{Status: status}
	out.SessionID, _ = parts[1].(string)
	out.UserID, _ = parts[2].(string)
	if exp, ok := parts[3].(string); ok {
		out.ExpiresAt, _ = strconv.ParseInt(exp, 10, 64)
	}
	return out, nil
}

// RevokeChain flags every token of the session's chain as revoked and
// returns how many tokens changed state. Repeating it is harmless.
func (s *Store) RevokeChain(ctx context.Context, sessionID string) (int, error) {
	n, err := revokeChainLua.Run(ctx, s.redis, []string{s.chainKey(sessionID)}, s.prefix+":").Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// Get loads a token record; a missing record yields redis.Nil.
func (s *Store) Get(ctx context.Context, tokenID string) (*Token, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(tokenID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}
	return decodeFields(tokenID, fields)
}

// ChainIDs lists the token IDs recorded for a session's chain.
func (s *Store) ChainIDs(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.chainKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

func encodeFields(t *Token) map[string]interface{} {
	return map[string]interface{}{
		"sid":     t.SessionID,
		"uid":     t.UserID,
		"hash":    hex.EncodeToString(t.SecretHash[:]),
		"iat":     strconv.FormatInt(t.IssuedAt, 10),
		"exp":     strconv.FormatInt(t.ExpiresAt, 10),
		"used":    boolField(t.Used),
		"used_at": strconv.FormatInt(t.UsedAt, 10),
		"revoked": boolField(t.Revoked),
		"prev":    t.Predecessor,
		"next":    t.Successor,
	}
}

func decodeFields(tokenID string, fields map[string]string) (*Token, error) {
	t := &Token{
		ID:          tokenID,
		SessionID:   fields["sid"],
		UserID:      fields["uid"],
		Used:        fields["used"] == "1",
		Revoked:     fields["revoked"] == "1",
		Predecessor: fields["prev"],
		Successor:   fields["next"],
	}

	hash, err := hex.DecodeString(fields["hash"])
	if err != nil || len(hash) != len(t.SecretHash) {
		return nil, errors.New("refresh token record corrupt")
	}
	copy(t.SecretHash[:], hash)

	for name, dst := range map[string]*int64{"iat": &t.IssuedAt, "exp": &t.ExpiresAt, "used_at": &t.UsedAt} {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("refresh token record corrupt: %s", name)
		}
		*dst = v
	}

	return t, nil
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
