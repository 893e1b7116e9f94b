package service

import (
	"context"
	"math/rand"
	"time"

	"github.com/andreirk/bscwatch/internal/domain/repository"
)

// CooldownService is C6's cooldown half: per-token suppression backed by
// the KV store's atomic set-if-absent. The random jitter is computed here
// so the store only ever sees a plain TTL, keeping ClaimCooldown a single
// atomic operation.
type CooldownService struct {
	kv     repository.KVStore
	base   time.Duration
	jitter time.Duration
}

// NewCooldownService builds a cooldown gate with the given base duration
// and maximum jitter, matching MonitorConfig.CooldownSeconds/JitterSeconds.
func NewCooldownService(kv repository.KVStore, base, jitter time.Duration) *CooldownService {
	return &CooldownService{kv: kv, base: base, jitter: jitter}
}

// Claim attempts to start a cooldown for token, returning true iff this
// call won the race (i.e., no cooldown was already active).
func (c *CooldownService) Claim(ctx context.Context, token string) (bool, error) {
	ttl := c.base
	if c.jitter > 0 {
		ttl += time.Duration(rand.Int63n(int64(c.jitter) + 1))
	}
	return c.kv.ClaimCooldown(ctx, token, ttl)
}

// Release unconditionally clears token's cooldown. Must be called on
// every post-claim failure path; safe to call redundantly.
func (c *CooldownService) Release(ctx context.Context, token string) error {
	return c.kv.ReleaseCooldown(ctx, token)
}

// TTL reports the remaining cooldown duration for token, for test
// assertions and diagnostics.
func (c *CooldownService) TTL(ctx context.Context, token string) (time.Duration, error) {
	return c.kv.CooldownTTL(ctx, token)
}
