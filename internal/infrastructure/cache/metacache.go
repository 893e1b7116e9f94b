package cache

import (
	"context"
	"time"

	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/domain/repository"
)

// MetaCache is the C3 in-process cache facade: a capacity-bounded LRU for
// pair metadata and receipts (they don't go stale once resolved) layered
// with TTL maps for price statistics and the WBNB spot price (which do).
type MetaCache struct {
	receipts  *LRU
	pairMetas *LRU
	priceStat map[model.Window]*TTLMap
	wbnb      *TTLMap
}

// NewMetaCache builds the facade. priceStatTTL supplies one TTL per
// window granularity (1m/5m/1h entries age out at different rates).
func NewMetaCache(receiptCap, pairMetaCap int, priceStatTTL map[model.Window]time.Duration, wbnbTTL time.Duration) *MetaCache {
	m := &MetaCache{
		receipts:  NewLRU(receiptCap),
		pairMetas: NewLRU(pairMetaCap),
		priceStat: make(map[model.Window]*TTLMap, len(priceStatTTL)),
		wbnb:      NewTTLMap(wbnbTTL),
	}
	for w, ttl := range priceStatTTL {
		m.priceStat[w] = NewTTLMap(ttl)
	}
	return m
}

var (
	_ repository.ReceiptCache   = (*MetaCache)(nil)
	_ repository.PairMetaCache  = (*MetaCache)(nil)
	_ repository.PriceStatCache = (*MetaCache)(nil)
	_ repository.WBNBPriceCache = (*MetaCache)(nil)
)

func (m *MetaCache) GetReceipt(_ context.Context, txHash string) (*model.ReceiptRecord, bool) {
	v, ok := m.receipts.Get(txHash)
	if !ok {
		return nil, false
	}
	return v.(*model.ReceiptRecord), true
}

func (m *MetaCache) PutReceipt(_ context.Context, r *model.ReceiptRecord, _ time.Duration) {
	m.receipts.Set(r.TxHash, r)
}

func (m *MetaCache) GetPairMeta(_ context.Context, pair string) (*model.PairMeta, bool) {
	v, ok := m.pairMetas.Get(pair)
	if !ok {
		return nil, false
	}
	return v.(*model.PairMeta), true
}

func (m *MetaCache) PutPairMeta(_ context.Context, pm *model.PairMeta, _ time.Duration) {
	m.pairMetas.Set(pm.Pair, pm)
}

func (m *MetaCache) GetPriceStat(_ context.Context, token string, w model.Window) (*model.PriceStat, bool) {
	tm, ok := m.priceStat[w]
	if !ok {
		return nil, false
	}
	v, ok := tm.Get(token)
	if !ok {
		return nil, false
	}
	return v.(*model.PriceStat), true
}

func (m *MetaCache) PutPriceStat(_ context.Context, stat *model.PriceStat, ttl time.Duration) {
	tm, ok := m.priceStat[stat.Window]
	if !ok {
		tm = NewTTLMap(ttl)
		m.priceStat[stat.Window] = tm
	}
	tm.Set(stat.Token, stat)
}

func (m *MetaCache) GetWBNBPrice(_ context.Context) (float64, bool) {
	v, ok := m.wbnb.Get("wbnb")
	if !ok {
		return 0, false
	}
	return v.(float64), true
}

func (m *MetaCache) PutWBNBPrice(_ context.Context, price float64, _ time.Duration) {
	m.wbnb.Set("wbnb", price)
}

// Sizes reports current tier occupancy for the cache_size gauge.
func (m *MetaCache) Sizes() map[string]int {
	sizes := map[string]int{
		"receipt":  m.receipts.Len(),
		"pairmeta": m.pairMetas.Len(),
		"wbnb":     m.wbnb.Len(),
	}
	for w, tm := range m.priceStat {
		sizes["pricestat_"+string(w)] = tm.Len()
	}
	return sizes
}
