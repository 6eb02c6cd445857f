package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkChallengeLua applies EvaluateChallenge to the v1 record in KEYS[1].
// ARGV[1] = candidate hash (32 bytes)
// ARGV[2] = now in unix milliseconds
// ARGV[3] = max attempts
//
// Record layout: version(1) attempts(2) expiresAt(8) createdAt(8) hash(32),
// integers big endian. Returns {status, attemptsLeft} with status values
// matching ChallengeStatus.
var checkChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {1, 0}
end
if string.len(data) ~= 51 or string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {1, 0}
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)
local expiresAt = 0
for i = 4, 11 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end
local now = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

if now > expiresAt then
  return {2, 0}
end
if attempts >= max then
  return {3, 0}
end
if string.sub(data, 20, 51) ~= ARGV[1] then
  local left = max - 1 - attempts
  attempts = attempts + 1
  local updated = string.sub(data, 1, 1) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 4)
  redis.call('SET', KEYS[1], updated, 'KEEPTTL')
  return {4, left}
end

redis.call('DEL', KEYS[1])
return {0, 0}
`)

// RedisChallengeStore keeps one record per challenge key with a physical
// TTL covering the logical lifetime plus retention.
type RedisChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisChallengeStore(redisClient redis.UniversalClient, prefix string) *RedisChallengeStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &RedisChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisChallengeStore) key(id string) string {
	return s.prefix + ":" + id
}

// Put overwrites any record stored under id.
func (s *RedisChallengeStore) Put(ctx context.Context, id string, record *ChallengeRecord, ttl time.Duration) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(id), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}

	return nil
}

// Check evaluates providedHash against the record under id and persists the
// result in one script run: the record is deleted on match and rewritten
// with the incremented counter on mismatch, keeping its remaining TTL.
func (s *RedisChallengeStore) Check(
	ctx context.Context,
	id string,
	providedHash [32]byte,
	maxAttempts int,
	now time.Time,
) (ChallengeStatus, int, error) {
	result, err := checkChallengeLua.Run(ctx, s.redis, []string{s.key(id)},
		string(providedHash[:]), now.UnixMilli(), maxAttempts,
	).Int64Slice()
	if err != nil {
		return StatusNotFound, 0, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	if len(result) != 2 {
		return StatusNotFound, 0, fmt.Errorf("%w: unexpected script result", ErrChallengeRedisUnavailable)
	}

	return ChallengeStatus(result[0]), int(result[1]), nil
}
