package service

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/domain/repository"
	"github.com/andreirk/bscwatch/internal/observability"
)

// ABI selectors for the read-only calls MetadataResolver issues: the first
// 4 bytes of the Keccak256 hash of each canonical function signature,
// written out as hex literals.
const (
	selectorToken0    = "0x0dfe1681" // token0()
	selectorToken1    = "0xd21220a7" // token1()
	selectorDecimals  = "0x313ce567" // decimals()
)

// MetadataResolver implements C4: resolving a pair's token0/token1,
// decimals, and launchpad classification, with at-most-one concurrent
// resolution in flight per pair via singleflight.
type MetadataResolver struct {
	cache     repository.PairMetaCache
	rpc       repository.RPCClient
	kv        repository.KVStore
	launchpad repository.LaunchpadAPI
	quote     *quoteClassifier
	metrics   *observability.Registry
	flight    singleflight.Group
}

// quoteClassifier answers whether an address is a known quote asset
// (WBNB/USDT/USDC), injected so the resolver doesn't need decode.Registry.
type quoteClassifier struct {
	addrs map[string]struct{}
}

func newQuoteClassifier(addrs []string) *quoteClassifier {
	q := &quoteClassifier{addrs: make(map[string]struct{}, len(addrs))}
	for _, a := range addrs {
		q.addrs[strings.ToLower(a)] = struct{}{}
	}
	return q
}

func (q *quoteClassifier) isQuote(addr string) bool {
	_, ok := q.addrs[strings.ToLower(addr)]
	return ok
}

// NewMetadataResolver builds a resolver. quoteAssets lists the known
// WBNB/USDT/USDC token addresses on this chain.
func NewMetadataResolver(cache repository.PairMetaCache, rpc repository.RPCClient, kv repository.KVStore, launchpad repository.LaunchpadAPI, quoteAssets []string, metrics *observability.Registry) *MetadataResolver {
	return &MetadataResolver{
		cache:     cache,
		rpc:       rpc,
		kv:        kv,
		launchpad: launchpad,
		quote:     newQuoteClassifier(quoteAssets),
		metrics:   metrics,
	}
}

// Resolve returns the PairMeta for pair, resolving via cache, then RPC +
// launchpad classification on miss. Concurrent callers for the same pair
// share one resolution and its result.
func (r *MetadataResolver) Resolve(ctx context.Context, pair string) (*model.PairMeta, error) {
	if r.cache != nil {
		if meta, ok := r.cache.GetPairMeta(ctx, pair); ok {
			if r.metrics != nil {
				r.metrics.CacheHits.WithLabelValues("pairmeta").Inc()
			}
			return meta, nil
		}
	}

	v, err, _ := r.flight.Do(pair, func() (any, error) {
		return r.resolveUncached(ctx, pair)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.PairMeta), nil
}

func (r *MetadataResolver) resolveUncached(ctx context.Context, pair string) (*model.PairMeta, error) {
	token0, err := r.rpc.EthCall(ctx, pair, selectorToken0, "")
	if err != nil {
		return nil, &model.ResolveError{Pair: pair, Err: err}
	}
	token1, err := r.rpc.EthCall(ctx, pair, selectorToken1, "")
	if err != nil {
		return nil, &model.ResolveError{Pair: pair, Err: err}
	}
	token0 = decodeAddressWord(token0)
	token1 = decodeAddressWord(token1)

	dec0, err := r.resolveDecimals(ctx, token0)
	if err != nil {
		return nil, &model.ResolveError{Pair: pair, Err: err}
	}
	dec1, err := r.resolveDecimals(ctx, token1)
	if err != nil {
		return nil, &model.ResolveError{Pair: pair, Err: err}
	}

	launchpadState, err := r.classifyLaunchpad(ctx, targetOf(token0, token1, r.quote))
	if err != nil {
		return nil, &model.ResolveError{Pair: pair, Err: err}
	}

	meta := &model.PairMeta{
		Pair:          strings.ToLower(pair),
		Token0:        strings.ToLower(token0),
		Token1:        strings.ToLower(token1),
		Decimals0:     dec0,
		Decimals1:     dec1,
		IsFourmeme:    launchpadState,
		LastResolvedAt: time.Now(),
	}
	if r.cache != nil {
		r.cache.PutPairMeta(ctx, meta, time.Hour)
	}
	return meta, nil
}

// ResolveTokenPair builds a synthetic PairMeta for a Fourmeme internal
// swap, where the quote and target legs are already known from the
// transaction receipt rather than from an AMM pair's token0()/token1().
// Decimals are resolved and cached the same way as a real pair's legs,
// keyed by the target token address.
func (r *MetadataResolver) ResolveTokenPair(ctx context.Context, quote, target string) (*model.PairMeta, error) {
	quote, target = strings.ToLower(quote), strings.ToLower(target)
	if r.cache != nil {
		if meta, ok := r.cache.GetPairMeta(ctx, target); ok {
			if r.metrics != nil {
				r.metrics.CacheHits.WithLabelValues("pairmeta").Inc()
			}
			return meta, nil
		}
	}

	v, err, _ := r.flight.Do(target, func() (any, error) {
		return r.resolveTokenPairUncached(ctx, quote, target)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.PairMeta), nil
}

func (r *MetadataResolver) resolveTokenPairUncached(ctx context.Context, quote, target string) (*model.PairMeta, error) {
	decQuote, err := r.resolveDecimals(ctx, quote)
	if err != nil {
		return nil, &model.ResolveError{Pair: target, Err: err}
	}
	decTarget, err := r.resolveDecimals(ctx, target)
	if err != nil {
		return nil, &model.ResolveError{Pair: target, Err: err}
	}
	meta := &model.PairMeta{
		Pair:           target,
		Token0:         quote,
		Token1:         target,
		Decimals0:      decQuote,
		Decimals1:      decTarget,
		LastResolvedAt: time.Now(),
	}
	if r.cache != nil {
		r.cache.PutPairMeta(ctx, meta, time.Hour)
	}
	return meta, nil
}

func (r *MetadataResolver) resolveDecimals(ctx context.Context, token string) (int, error) {
	raw, err := r.rpc.EthCall(ctx, token, selectorDecimals, "")
	if err != nil {
		return 0, err
	}
	d := decodeUintWord(raw)
	if !model.ValidDecimals(d) {
		return 0, &model.DecodeError{Reason: "decimals out of range for " + token}
	}
	return d, nil
}

// classifyLaunchpad checks the persistent whitelist/blacklist before
// falling back to the external classifier API, caching the boolean
// outcome persistently for >=7 days either way.
func (r *MetadataResolver) classifyLaunchpad(ctx context.Context, token string) (model.LaunchpadState, error) {
	if r.kv != nil {
		state, err := r.kv.GetLaunchpadClass(ctx, token)
		if err == nil && state != model.LaunchpadUnknown {
			return state, nil
		}
	}
	if r.launchpad == nil {
		return model.LaunchpadUnknown, nil
	}
	isFourmeme, err := r.launchpad.IsFourmeme(ctx, token)
	if err != nil {
		return model.LaunchpadUnknown, err
	}
	state := model.LaunchpadNo
	if isFourmeme {
		state = model.LaunchpadYes
	}
	if r.kv != nil {
		_ = r.kv.SetLaunchpadClass(ctx, token, state, 7*24*time.Hour)
	}
	return state, nil
}

func targetOf(token0, token1 string, q *quoteClassifier) string {
	if q.isQuote(token0) {
		return token1
	}
	return token0
}

// decodeAddressWord extracts the low 20 bytes from a 32-byte ABI word
// returned by a function call that returns address.
func decodeAddressWord(hexWord string) string {
	trimmed := strings.TrimPrefix(hexWord, "0x")
	if len(trimmed) < 40 {
		return "0x" + trimmed
	}
	return "0x" + trimmed[len(trimmed)-40:]
}

// decodeUintWord reads a small uint256 ABI word (e.g., decimals()) as an int.
func decodeUintWord(hexWord string) int {
	trimmed := strings.TrimPrefix(hexWord, "0x")
	trimmed = strings.TrimLeft(trimmed, "0")
	if trimmed == "" {
		return 0
	}
	var v int
	for _, c := range trimmed {
		v = v*16 + hexDigit(c)
	}
	return v
}

func hexDigit(c rune) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return 0
	}
}
