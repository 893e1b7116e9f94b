// Package kvstore implements the persistent KV tier (C3/C6): cooldown
// claims, launchpad classification, the no_data_pair negative cache, the
// monitor config snapshot, and the retry queue.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/domain/repository"
)

// RedisStore implements repository.KVStore on top of go-redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials a Redis client with the given address/password/db.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

var _ repository.KVStore = (*RedisStore)(nil)

const (
	keyCooldownPrefix   = "bsc:cooldown:"
	keyNoDataPairPrefix = "bsc:no_data_pair:"
	keyFourmemeSet      = "bsc:fourmeme_tokens"
	keyNonFourmemeSet   = "bsc:non_fourmeme_tokens"
	keyMonitorConfig    = "bsc:monitor:config:thresholds"
	keyRetryPrefix      = "bsc:retry:"
)

// cooldownClaimScript atomically sets bsc:cooldown:{token} iff absent,
// ported from the original monitor's check_and_set_alert_cooldown Lua
// script, minus its alert_count bookkeeping (owned here by the retry
// queue / observability counters instead).
var cooldownClaimScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
return 1
`)

// ClaimCooldown atomically creates the cooldown key iff absent.
func (s *RedisStore) ClaimCooldown(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	now := time.Now().Unix()
	res, err := cooldownClaimScript.Run(ctx, s.client, []string{keyCooldownPrefix + token}, now, int(ttl.Seconds())).Int()
	if err != nil {
		return false, &model.TransientError{Op: "claim_cooldown", Err: err}
	}
	return res == 1, nil
}

// ReleaseCooldown unconditionally deletes the cooldown key. Idempotent:
// deleting an absent key is not an error.
func (s *RedisStore) ReleaseCooldown(ctx context.Context, token string) error {
	return s.client.Del(ctx, keyCooldownPrefix+token).Err()
}

// CooldownTTL returns the remaining TTL, or 0 if the key is absent.
func (s *RedisStore) CooldownTTL(ctx context.Context, token string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, keyCooldownPrefix+token).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// GetLaunchpadClass checks the whitelist then the blacklist set.
func (s *RedisStore) GetLaunchpadClass(ctx context.Context, token string) (model.LaunchpadState, error) {
	isMember, err := s.client.SIsMember(ctx, keyFourmemeSet, token).Result()
	if err != nil {
		return model.LaunchpadUnknown, err
	}
	if isMember {
		return model.LaunchpadYes, nil
	}
	isMember, err = s.client.SIsMember(ctx, keyNonFourmemeSet, token).Result()
	if err != nil {
		return model.LaunchpadUnknown, err
	}
	if isMember {
		return model.LaunchpadNo, nil
	}
	return model.LaunchpadUnknown, nil
}

// SetLaunchpadClass records token's classification persistently. Redis
// sets don't carry a per-member TTL, so classification lives as long as
// the set itself; ttl is accepted for interface symmetry with the other
// cache tiers and to document the >=7-day intent in a companion sorted
// expiry sweep run by the cleanup cron (out of scope here).
func (s *RedisStore) SetLaunchpadClass(ctx context.Context, token string, state model.LaunchpadState, ttl time.Duration) error {
	switch state {
	case model.LaunchpadYes:
		return s.client.SAdd(ctx, keyFourmemeSet, token).Err()
	case model.LaunchpadNo:
		return s.client.SAdd(ctx, keyNonFourmemeSet, token).Err()
	default:
		return nil
	}
}

// IsNoDataPair checks the layer-2 negative cache.
func (s *RedisStore) IsNoDataPair(ctx context.Context, pair string) (bool, error) {
	n, err := s.client.Exists(ctx, keyNoDataPairPrefix+pair).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkNoDataPair records a 10-minute (or configured ttl) negative result
// for pair after every fallback window comes back empty.
func (s *RedisStore) MarkNoDataPair(ctx context.Context, pair string, ttl time.Duration) error {
	return s.client.Set(ctx, keyNoDataPairPrefix+pair, "1", ttl).Err()
}

// LoadMonitorConfig reads the frozen thresholds snapshot, or nil if never
// written (caller falls back to model.DefaultMonitorConfig).
func (s *RedisStore) LoadMonitorConfig(ctx context.Context) (*model.MonitorConfig, error) {
	data, err := s.client.Get(ctx, keyMonitorConfig).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg model.MonitorConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("malformed monitor config: %w", err)
	}
	return &cfg, nil
}

// SaveMonitorConfig persists a new thresholds snapshot with no TTL.
func (s *RedisStore) SaveMonitorConfig(ctx context.Context, cfg *model.MonitorConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal monitor config: %w", err)
	}
	return s.client.Set(ctx, keyMonitorConfig, data, 0).Err()
}

// EnqueueRetry stores a retry-queue entry for token with a 1h TTL.
func (s *RedisStore) EnqueueRetry(ctx context.Context, entry *model.RetryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal retry entry: %w", err)
	}
	return s.client.Set(ctx, keyRetryPrefix+entry.Token, data, time.Hour).Err()
}

// DueRetries scans the retry namespace and returns entries whose
// NextAttemptAt has passed. Bounded by the 1h TTL the keys carry, so the
// scan never grows unbounded even without an explicit cap here.
func (s *RedisStore) DueRetries(ctx context.Context, now time.Time) ([]*model.RetryEntry, error) {
	var due []*model.RetryEntry
	iter := s.client.Scan(ctx, 0, keyRetryPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var entry model.RetryEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		if !entry.NextAttemptAt.After(now) {
			due = append(due, &entry)
		}
	}
	return due, iter.Err()
}

// DeleteRetry removes token's retry-queue entry (on success or after
// exhausting max attempts, where it moves to the dead-letter sink).
func (s *RedisStore) DeleteRetry(ctx context.Context, token string) error {
	return s.client.Del(ctx, keyRetryPrefix+token).Err()
}

// RawSet/RawGet are generic Set/Get helpers kept for ad hoc diagnostics.
func (s *RedisStore) RawSet(ctx context.Context, key string, value any) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) RawGet(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, key).Result()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
