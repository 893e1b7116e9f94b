// Package repository defines the interfaces the domain services depend on.
// Infrastructure packages (cache, kvstore, rpcclient, httpapi, storage,
// queue) provide concrete implementations; domain/service never imports
// them directly, keeping dependency inversion between internal/domain and
// internal/infrastructure.
package repository

import (
	"context"
	"math/big"
	"time"

	"github.com/andreirk/bscwatch/internal/domain/model"
)

// ReceiptCache is the C3 warm-tier cache for transaction receipts.
type ReceiptCache interface {
	GetReceipt(ctx context.Context, txHash string) (*model.ReceiptRecord, bool)
	PutReceipt(ctx context.Context, r *model.ReceiptRecord, ttl time.Duration)
}

// PairMetaCache is the C3 hot+warm tier cache for pair metadata.
type PairMetaCache interface {
	GetPairMeta(ctx context.Context, pair string) (*model.PairMeta, bool)
	PutPairMeta(ctx context.Context, m *model.PairMeta, ttl time.Duration)
}

// PriceStatCache caches PriceStat responses, including the negative
// "no_data_pair" sentinel.
type PriceStatCache interface {
	GetPriceStat(ctx context.Context, token string, w model.Window) (*model.PriceStat, bool)
	PutPriceStat(ctx context.Context, stat *model.PriceStat, ttl time.Duration)
}

// WBNBPriceCache caches the live WBNB spot price.
type WBNBPriceCache interface {
	GetWBNBPrice(ctx context.Context) (float64, bool)
	PutWBNBPrice(ctx context.Context, price float64, ttl time.Duration)
}

// KVStore is the persistent tier (C3/C6): fourmeme allow/deny sets,
// cooldown claims, the no_data_pair negative cache, monitor config, and the
// retry queue. Implementations must make ClaimCooldown a single atomic
// operation - never read-then-write.
type KVStore interface {
	// ClaimCooldown atomically creates bsc:cooldown:{token} with the given
	// TTL iff absent. Returns true iff this call created the key.
	ClaimCooldown(ctx context.Context, token string, ttl time.Duration) (bool, error)
	// ReleaseCooldown unconditionally deletes the cooldown key. Idempotent.
	ReleaseCooldown(ctx context.Context, token string) error
	// CooldownTTL returns the remaining TTL for a token's cooldown key, or
	// 0 if absent.
	CooldownTTL(ctx context.Context, token string) (time.Duration, error)

	// Launchpad classification, persisted for >=7 days.
	GetLaunchpadClass(ctx context.Context, token string) (model.LaunchpadState, error)
	SetLaunchpadClass(ctx context.Context, token string, state model.LaunchpadState, ttl time.Duration) error

	// NoDataPair is the persistent negative cache for Layer-2 fallback
	// exhaustion (bsc:no_data_pair:{pair}, 10 min TTL).
	IsNoDataPair(ctx context.Context, pair string) (bool, error)
	MarkNoDataPair(ctx context.Context, pair string, ttl time.Duration) error

	// Monitor config snapshot, stored as JSON with no TTL.
	LoadMonitorConfig(ctx context.Context) (*model.MonitorConfig, error)
	SaveMonitorConfig(ctx context.Context, cfg *model.MonitorConfig) error

	// Retry queue, KV-backed (bsc:retry:{token}, 1h TTL).
	EnqueueRetry(ctx context.Context, entry *model.RetryEntry) error
	DueRetries(ctx context.Context, now time.Time) ([]*model.RetryEntry, error)
	DeleteRetry(ctx context.Context, token string) error
}

// RPCClient is the C2 JSON-RPC client contract.
type RPCClient interface {
	GetReceipt(ctx context.Context, txHash string) (*model.ReceiptRecord, error)
	GetTransactionValue(ctx context.Context, txHash string) (*big.Int, error)
	EthCall(ctx context.Context, to string, data string, block string) (string, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// StatsAPI is the external token-statistics HTTP API (C5 Layer-2 input).
type StatsAPI interface {
	GetStat(ctx context.Context, pair string, w model.Window) (*model.PriceStat, error)
}

// LaunchpadAPI is the external Fourmeme classifier.
type LaunchpadAPI interface {
	IsFourmeme(ctx context.Context, token string) (bool, error)
}

// SpotPriceAPI fetches the live WBNB/USDT spot price.
type SpotPriceAPI interface {
	WBNBPrice(ctx context.Context) (float64, error)
}

// Notifier delivers the final alert payload to the downstream channel.
type Notifier interface {
	Send(ctx context.Context, alert *model.Alert) error
}

// AlertSink persists accepted alerts and dead-lettered alerts durably (the
// relational-sink adapter, backed by ClickHouse in this implementation).
type AlertSink interface {
	SaveAlert(ctx context.Context, a *model.Alert, status string) error
	SaveDeadLetter(ctx context.Context, a *model.Alert, reason string, retries int) error
}

// AlertMirror publishes admitted alerts to a side channel (Kafka) for
// secondary analytics consumers. Failures here must never block the
// primary dispatch path.
type AlertMirror interface {
	Publish(ctx context.Context, a *model.Alert) error
	Close() error
}
