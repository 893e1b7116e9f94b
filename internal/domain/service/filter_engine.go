package service

import (
	"context"
	"time"

	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/domain/repository"
	"github.com/andreirk/bscwatch/internal/observability"
)

// FilterEngine implements C5: the layer-1 USD-notional gate and the
// layer-2 statistics-window gate, including fallback widening and the
// any/all trigger evaluator ported from the original monitor's
// trigger_logic module.
type FilterEngine struct {
	cumulative map[model.Origin]*CumulativeWindow
	stats      repository.StatsAPI
	launchpad  repository.LaunchpadAPI
	priceCache repository.PriceStatCache
	kv         repository.KVStore
	metrics    *observability.Registry
}

// noDataPairTTL is how long a token stays in the no_data_pair negative
// cache after every fallback window comes back empty.
const noDataPairTTL = 10 * time.Minute

// NewFilterEngine builds a filter engine. cumulativeWindow sizes the
// rolling-sum trackers for both origins identically, per MonitorConfig.
// kv backs the no_data_pair negative cache consulted before, and
// populated after, a fallback-exhausted Layer2 probe.
func NewFilterEngine(cumulativeWindow time.Duration, stats repository.StatsAPI, launchpad repository.LaunchpadAPI, priceCache repository.PriceStatCache, kv repository.KVStore, metrics *observability.Registry) *FilterEngine {
	return &FilterEngine{
		cumulative: map[model.Origin]*CumulativeWindow{
			model.OriginInternal: NewCumulativeWindow(cumulativeWindow),
			model.OriginExternal: NewCumulativeWindow(cumulativeWindow),
		},
		stats:      stats,
		launchpad:  launchpad,
		priceCache: priceCache,
		kv:         kv,
		metrics:    metrics,
	}
}

// Layer1 decides whether an event's USD notional clears the per-origin
// threshold outright, or via the cumulative rolling window. cfg is a
// frozen MonitorConfig snapshot for this event.
func (f *FilterEngine) Layer1(pair string, origin model.Origin, usdValue float64, cfg *model.MonitorConfig, now time.Time) bool {
	threshold := cfg.MinUSDFor(origin)
	if usdValue >= threshold {
		if f.metrics != nil {
			f.metrics.FirstLayerPass.WithLabelValues(string(origin)).Inc()
		}
		return true
	}

	window := f.cumulative[origin]
	sum := window.Add(pair, usdValue, now)
	if sum >= cfg.CumulativeMinUSD {
		window.Reset(pair)
		if f.metrics != nil {
			f.metrics.FirstLayerPass.WithLabelValues(string(origin)).Inc()
		}
		return true
	}
	return false
}

// Layer2Result carries the outcome of the statistics-window check,
// including which rules fired for the alert payload's Reasons field.
type Layer2Result struct {
	Pass    bool
	Reasons []string
	Window  model.Window
}

// Layer2 fetches PriceStat for the target token, widening the window per
// the fallback table on empty data, then evaluates the configured
// any/all trigger logic. External-origin events must already have a
// positive launchpad classification before this is called.
func (f *FilterEngine) Layer2(ctx context.Context, token string, origin model.Origin, cfg *model.MonitorConfig) (Layer2Result, error) {
	if f.metrics != nil {
		f.metrics.SecondLayerCheck.Inc()
	}

	if f.kv != nil {
		if noData, err := f.kv.IsNoDataPair(ctx, token); err == nil && noData {
			return Layer2Result{Window: cfg.RulesFor(origin).Window}, nil
		}
	}

	rules := cfg.RulesFor(origin)
	window := rules.Window
	stat, err := f.resolveStat(ctx, token, window)
	if err != nil {
		return Layer2Result{}, err
	}

	for !stat.IsUsable() {
		next, ok := model.FallbackWindow(window)
		if !ok {
			if f.kv != nil {
				_ = f.kv.MarkNoDataPair(ctx, token, noDataPairTTL)
			}
			return Layer2Result{Window: window}, nil
		}
		if f.metrics != nil {
			f.metrics.FallbackTotal.WithLabelValues(string(window) + "->" + string(next)).Inc()
		}
		window = next
		stat, err = f.resolveStat(ctx, token, window)
		if err != nil {
			return Layer2Result{}, err
		}
	}

	pass, reasons := evaluateTrigger(rules, stat)
	if pass && f.metrics != nil {
		f.metrics.SecondLayerPass.Inc()
	}
	return Layer2Result{Pass: pass, Reasons: reasons, Window: window}, nil
}

func (f *FilterEngine) resolveStat(ctx context.Context, token string, window model.Window) (*model.PriceStat, error) {
	if f.priceCache != nil {
		if cached, ok := f.priceCache.GetPriceStat(ctx, token, window); ok {
			if f.metrics != nil {
				f.metrics.CacheHits.WithLabelValues("pricestat").Inc()
			}
			return cached, nil
		}
	}
	stat, err := f.stats.GetStat(ctx, token, window)
	if err != nil {
		return nil, err
	}
	if f.priceCache != nil {
		ttl := 5 * time.Minute
		if stat.Completeness == model.CompletenessEmpty {
			ttl = 10 * time.Minute
		}
		f.priceCache.PutPriceStat(ctx, stat, ttl)
	}
	return stat, nil
}

// evaluateTrigger applies the any/all trigger logic over the enabled
// rules, ported from the original monitor's TriggerLogic.evaluate_trigger.
// Rise and fall are combined disjunctively within priceChange: either
// clearing its threshold satisfies that rule. Zero-valued percentages
// pass only when the configured threshold is itself <= 0.
func evaluateTrigger(cfg model.EventsConfig, stat *model.PriceStat) (bool, []string) {
	var fired []string
	categoriesFired := 0
	categoriesEnabled := 0

	if cfg.PriceChange.Enabled {
		categoriesEnabled++
		priceFired := false
		if cfg.PriceChange.RisePercent != nil && stat.PriceChange >= *cfg.PriceChange.RisePercent {
			fired = append(fired, "price_rise")
			priceFired = true
		}
		if cfg.PriceChange.FallPercent != nil && -stat.PriceChange >= *cfg.PriceChange.FallPercent {
			fired = append(fired, "price_fall")
			priceFired = true
		}
		if priceFired {
			categoriesFired++
		}
	}
	if cfg.Volume.Enabled {
		categoriesEnabled++
		if cfg.Volume.VolumeThreshold != nil && stat.Volume >= *cfg.Volume.VolumeThreshold {
			fired = append(fired, "volume")
			categoriesFired++
		}
	}
	if cfg.Holders.Enabled {
		categoriesEnabled++
		if cfg.Holders.Top10MaxPercent != nil && stat.Top10Pct <= *cfg.Holders.Top10MaxPercent {
			fired = append(fired, "holder_concentration")
			categoriesFired++
		}
	}

	switch cfg.Logic {
	case "all":
		return categoriesFired >= categoriesEnabled && categoriesEnabled > 0, fired
	default: // "any"
		return categoriesFired > 0, fired
	}
}
