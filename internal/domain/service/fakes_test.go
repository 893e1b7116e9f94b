package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/andreirk/bscwatch/internal/domain/model"
)

// fakeKV is an in-memory repository.KVStore double shared by this
// package's tests.
type fakeKV struct {
	mu         sync.Mutex
	cooldowns  map[string]time.Time
	launchpad  map[string]model.LaunchpadState
	noData     map[string]bool
	cfg        *model.MonitorConfig
	retries    map[string]*model.RetryEntry
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		cooldowns: make(map[string]time.Time),
		launchpad: make(map[string]model.LaunchpadState),
		noData:    make(map[string]bool),
		retries:   make(map[string]*model.RetryEntry),
	}
}

func (f *fakeKV) ClaimCooldown(_ context.Context, token string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if exp, ok := f.cooldowns[token]; ok && time.Now().Before(exp) {
		return false, nil
	}
	f.cooldowns[token] = time.Now().Add(ttl)
	return true, nil
}

func (f *fakeKV) ReleaseCooldown(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cooldowns, token)
	return nil
}

func (f *fakeKV) CooldownTTL(_ context.Context, token string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.cooldowns[token]
	if !ok || time.Now().After(exp) {
		return 0, nil
	}
	return time.Until(exp), nil
}

func (f *fakeKV) GetLaunchpadClass(_ context.Context, token string) (model.LaunchpadState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.launchpad[token]; ok {
		return s, nil
	}
	return model.LaunchpadUnknown, nil
}

func (f *fakeKV) SetLaunchpadClass(_ context.Context, token string, state model.LaunchpadState, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launchpad[token] = state
	return nil
}

func (f *fakeKV) IsNoDataPair(_ context.Context, pair string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.noData[pair], nil
}

func (f *fakeKV) MarkNoDataPair(_ context.Context, pair string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noData[pair] = true
	return nil
}

func (f *fakeKV) LoadMonitorConfig(_ context.Context) (*model.MonitorConfig, error) {
	return f.cfg, nil
}

func (f *fakeKV) SaveMonitorConfig(_ context.Context, cfg *model.MonitorConfig) error {
	f.cfg = cfg
	return nil
}

func (f *fakeKV) EnqueueRetry(_ context.Context, entry *model.RetryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries[entry.Token] = entry
	return nil
}

func (f *fakeKV) DueRetries(_ context.Context, now time.Time) ([]*model.RetryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*model.RetryEntry
	for _, e := range f.retries {
		if !e.NextAttemptAt.After(now) {
			due = append(due, e)
		}
	}
	return due, nil
}

func (f *fakeKV) DeleteRetry(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.retries, token)
	return nil
}

// fakeStatsAPI returns a scripted PriceStat per window, or a transient error.
type fakeStatsAPI struct {
	byWindow map[model.Window]*model.PriceStat
	calls    int
}

func (f *fakeStatsAPI) GetStat(_ context.Context, _ string, w model.Window) (*model.PriceStat, error) {
	f.calls++
	if stat, ok := f.byWindow[w]; ok {
		return stat, nil
	}
	return &model.PriceStat{Window: w, Completeness: model.CompletenessEmpty}, nil
}

// fakeLaunchpadAPI classifies tokens from a fixed set.
type fakeLaunchpadAPI struct {
	fourmeme map[string]bool
}

func (f *fakeLaunchpadAPI) IsFourmeme(_ context.Context, token string) (bool, error) {
	return f.fourmeme[token], nil
}

// fakePairMetaCache is an in-memory repository.PairMetaCache double.
type fakePairMetaCache struct {
	mu    sync.Mutex
	byKey map[string]*model.PairMeta
}

func newFakePairMetaCache() *fakePairMetaCache {
	return &fakePairMetaCache{byKey: make(map[string]*model.PairMeta)}
}

func (f *fakePairMetaCache) GetPairMeta(_ context.Context, pair string) (*model.PairMeta, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byKey[pair]
	return m, ok
}

func (f *fakePairMetaCache) PutPairMeta(_ context.Context, m *model.PairMeta, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byKey[m.Pair] = m
}

// fakeRPCClient answers eth_call with scripted per-selector responses.
type fakeRPCClient struct {
	responses map[string]string // key: to+"|"+data
}

func (f *fakeRPCClient) GetReceipt(_ context.Context, _ string) (*model.ReceiptRecord, error) {
	return nil, model.ErrNotFound
}

func (f *fakeRPCClient) GetTransactionValue(_ context.Context, _ string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeRPCClient) EthCall(_ context.Context, to, data, _ string) (string, error) {
	return f.responses[to+"|"+data], nil
}

func (f *fakeRPCClient) BlockNumber(_ context.Context) (uint64, error) {
	return 0, nil
}
