package kvstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/andreirk/bscwatch/config"
	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/infrastructure/kvstore"
)

// TestRedisStore exercises the KVStore contract against a live Redis
// instance. It needs REDIS_ADDR (or the localhost:6379 default) reachable
// to pass.
func TestRedisStore(t *testing.T) {
	cfg := config.LoadConfig()
	store := kvstore.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer store.Close()

	ctx := context.Background()
	token := "0xredistesttoken"
	defer store.ReleaseCooldown(ctx, token)

	claimed, err := store.ClaimCooldown(ctx, token, time.Minute)
	if err != nil {
		t.Fatalf("ClaimCooldown: %v", err)
	}
	if !claimed {
		t.Fatal("expected the first claim to succeed")
	}

	claimed, err = store.ClaimCooldown(ctx, token, time.Minute)
	if err != nil {
		t.Fatalf("ClaimCooldown (second): %v", err)
	}
	if claimed {
		t.Fatal("expected a claim on an active cooldown to fail")
	}

	ttl, err := store.CooldownTTL(ctx, token)
	if err != nil {
		t.Fatalf("CooldownTTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected a remaining TTL within (0, 1m], got %v", ttl)
	}

	if err := store.ReleaseCooldown(ctx, token); err != nil {
		t.Fatalf("ReleaseCooldown: %v", err)
	}
	claimed, err = store.ClaimCooldown(ctx, token, time.Minute)
	if err != nil {
		t.Fatalf("ClaimCooldown (post-release): %v", err)
	}
	if !claimed {
		t.Fatal("expected a claim to succeed again after release")
	}
	store.ReleaseCooldown(ctx, token)

	if err := store.SetLaunchpadClass(ctx, token, model.LaunchpadYes, 7*24*time.Hour); err != nil {
		t.Fatalf("SetLaunchpadClass: %v", err)
	}
	state, err := store.GetLaunchpadClass(ctx, token)
	if err != nil {
		t.Fatalf("GetLaunchpadClass: %v", err)
	}
	if state != model.LaunchpadYes {
		t.Fatalf("expected LaunchpadYes, got %v", state)
	}

	pair := "0xredistestpair"
	defer store.MarkNoDataPair(ctx, pair, 0)
	noData, err := store.IsNoDataPair(ctx, pair)
	if err != nil {
		t.Fatalf("IsNoDataPair: %v", err)
	}
	if noData {
		t.Fatal("pair should not be marked no-data yet")
	}
	if err := store.MarkNoDataPair(ctx, pair, 10*time.Minute); err != nil {
		t.Fatalf("MarkNoDataPair: %v", err)
	}
	noData, err = store.IsNoDataPair(ctx, pair)
	if err != nil {
		t.Fatalf("IsNoDataPair (after mark): %v", err)
	}
	if !noData {
		t.Fatal("pair should be marked no-data")
	}

	cfgSnapshot := model.DefaultMonitorConfig()
	if err := store.SaveMonitorConfig(ctx, cfgSnapshot); err != nil {
		t.Fatalf("SaveMonitorConfig: %v", err)
	}
	loaded, err := store.LoadMonitorConfig(ctx)
	if err != nil {
		t.Fatalf("LoadMonitorConfig: %v", err)
	}
	if loaded == nil || loaded.MinUSDInternal != cfgSnapshot.MinUSDInternal {
		t.Fatalf("expected the loaded config to round-trip MinUSDInternal, got %+v", loaded)
	}

	entry := &model.RetryEntry{Token: token, Attempt: 1, NextAttemptAt: time.Now().Add(-time.Minute)}
	defer store.DeleteRetry(ctx, token)
	if err := store.EnqueueRetry(ctx, entry); err != nil {
		t.Fatalf("EnqueueRetry: %v", err)
	}
	due, err := store.DueRetries(ctx, time.Now())
	if err != nil {
		t.Fatalf("DueRetries: %v", err)
	}
	found := false
	for _, e := range due {
		if e.Token == token {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the enqueued entry to show up as due")
	}
	if err := store.DeleteRetry(ctx, token); err != nil {
		t.Fatalf("DeleteRetry: %v", err)
	}
}
