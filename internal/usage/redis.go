// Package usage provides the Redis-backed campaign usage counters.
package usage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const redisKeyPrefix = "policy:campaign_usage"

// Counters are stored as integer micros so the script can compare them as plain strings.
var compareAndSwapScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if not current then
		current = '0'
	end
	if current ~= ARGV[1] then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[2])
	return 1
`)

// Micros strings carry no leading zeros, so a longer string is the larger value.
var raiseToScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if current and (#current > #ARGV[1] or (#current == #ARGV[1] and current >= ARGV[1])) then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[1])
	return 1
`)

// RedisStore keeps campaign usage counters in Redis.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Usage returns zero for campaigns without a counter.
func (s *RedisStore) Usage(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, error) {
	val, err := s.client.Get(ctx, redisKey(campaignID)).Result()
	if err == redis.Nil {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("redis get usage: %w", err)
	}
	micros, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse usage %q: %w", val, err)
	}
	return domain.FromMicros(micros), nil
}

func (s *RedisStore) CompareAndSwapUsage(ctx context.Context, campaignID uuid.UUID, old, next decimal.Decimal) (bool, error) {
	oldMicros, err := domain.ToMicros(old)
	if err != nil {
		return false, fmt.Errorf("campaign %s usage: %w", campaignID, err)
	}
	nextMicros, err := domain.ToMicros(next)
	if err != nil {
		return false, fmt.Errorf("campaign %s usage: %w", campaignID, err)
	}
	swapped, err := compareAndSwapScript.Run(ctx, s.client, []string{redisKey(campaignID)},
		strconv.FormatInt(oldMicros, 10),
		strconv.FormatInt(nextMicros, 10),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis swap usage: %w", err)
	}
	return swapped == 1, nil
}

// SeedUsage raises a counter to the persisted usage. A live counter that is
// already higher is left alone, so seeding never moves usage backwards.
func (s *RedisStore) SeedUsage(ctx context.Context, campaignID uuid.UUID, usage decimal.Decimal) error {
	if usage.IsNegative() {
		return fmt.Errorf("campaign %s: negative usage %s", campaignID, usage)
	}
	usageMicros, err := domain.ToMicros(usage)
	if err != nil {
		return fmt.Errorf("campaign %s usage: %w", campaignID, err)
	}
	if err := raiseToScript.Run(ctx, s.client, []string{redisKey(campaignID)}, strconv.FormatInt(usageMicros, 10)).Err(); err != nil {
		return fmt.Errorf("redis seed usage: %w", err)
	}
	return nil
}

func redisKey(campaignID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, campaignID)
}
