package app

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/andreirk/bscwatch/internal/domain/model"
)

// fakeKV is a minimal in-memory repository.KVStore double for this
// package's tests.
type fakeKV struct {
	mu        sync.Mutex
	cooldowns map[string]time.Time
	launchpad map[string]model.LaunchpadState
	noData    map[string]bool
	cfg       *model.MonitorConfig
	retries   map[string]*model.RetryEntry
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

// fakeRPCClient answers eth_call with scripted per-(to,data) responses and
// receipts/native values with scripted per-tx-hash responses.
type fakeRPCClient struct {
	responses map[string]string
	receipts  map[string]*model.ReceiptRecord
	txValues  map[string]*big.Int
}

func (f *fakeRPCClient) GetReceipt(_ context.Context, txHash string) (*model.ReceiptRecord, error) {
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, model.ErrNotFound
}

func (f *fakeRPCClient) GetTransactionValue(_ context.Context, txHash string) (*big.Int, error) {
	if v, ok := f.txValues[txHash]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeRPCClient) EthCall(_ context.Context, to, data, _ string) (string, error) {
	return f.responses[to+"|"+data], nil
}

func (f *fakeRPCClient) BlockNumber(_ context.Context) (uint64, error) {
	return 0, nil
}

// fakeStatsAPI returns a scripted PriceStat per window.
type fakeStatsAPI struct {
	byWindow map[model.Window]*model.PriceStat
}

func (f *fakeStatsAPI) GetStat(_ context.Context, _ string, w model.Window) (*model.PriceStat, error) {
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

// fakeNotifier records every alert it's sent and can be told to fail.
type fakeNotifier struct {
	mu      sync.Mutex
	sent    []*model.Alert
	sentCh  chan *model.Alert
	failing bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sentCh: make(chan *model.Alert, 16)}
}

func (f *fakeNotifier) Send(_ context.Context, a *model.Alert) error {
	if f.failing {
		return context.DeadlineExceeded
	}
	f.mu.Lock()
	f.sent = append(f.sent, a)
	f.mu.Unlock()
	f.sentCh <- a
	return nil
}

// fakeSink records saved alerts and dead letters.
type fakeSink struct {
	mu          sync.Mutex
	saved       []string // status per call
	deadLetters int
}

func (f *fakeSink) SaveAlert(_ context.Context, _ *model.Alert, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, status)
	return nil
}

func (f *fakeSink) SaveDeadLetter(_ context.Context, _ *model.Alert, _ string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLetters++
	return nil
}

// fakeMirror records published alerts.
type fakeMirror struct {
	mu        sync.Mutex
	published int
}

func (f *fakeMirror) Publish(_ context.Context, _ *model.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published++
	return nil
}

func (f *fakeMirror) Close() error { return nil }

// fakeBroadcaster records broadcast alerts.
type fakeBroadcaster struct {
	mu        sync.Mutex
	broadcast []*model.Alert
}

func (f *fakeBroadcaster) BroadcastAlert(a *model.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, a)
}

// fakeCooldown is a standalone cooldownReleaser double for dispatcher-only
// tests that don't need a real CooldownService.
type fakeCooldown struct {
	mu       sync.Mutex
	released []string
}

func (f *fakeCooldown) Release(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, token)
	return nil
}
