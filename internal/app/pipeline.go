package app

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/andreirk/bscwatch/internal/decode"
	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/domain/repository"
	"github.com/andreirk/bscwatch/internal/domain/service"
	"github.com/andreirk/bscwatch/internal/observability"
)

// Pipeline is the end-to-end per-frame flow: decode -> dedup -> metadata
// -> layer1 -> layer2 -> cooldown claim -> dispatch, releasing the
// cooldown on any post-claim failure.
type Pipeline struct {
	decoder      *decode.Decoder
	dedup        *service.SeenTxSet
	resolver     *service.MetadataResolver
	filter       *service.FilterEngine
	cooldown     *service.CooldownService
	dispatcher   *Dispatcher
	rpc          repository.RPCClient
	receiptCache repository.ReceiptCache
	wbnbCache    repository.WBNBPriceCache
	spotPrice    repository.SpotPriceAPI
	wbnbAddress  string
	quoteAssets  map[string]bool
	configFn     func() *model.MonitorConfig
	metrics      *observability.Registry
	log          *slog.Logger
}

// NewPipeline wires every stage together. configFn returns the current
// frozen MonitorConfig snapshot. quoteAssets is the configured
// WBNB/USDT/USDC address set used to classify which side of a pair is
// the quote leg. rpc and receiptCache back the receipt-based decode of
// Fourmeme router/proxy frames.
func NewPipeline(
	decoder *decode.Decoder,
	dedup *service.SeenTxSet,
	resolver *service.MetadataResolver,
	filter *service.FilterEngine,
	cooldown *service.CooldownService,
	dispatcher *Dispatcher,
	rpc repository.RPCClient,
	receiptCache repository.ReceiptCache,
	wbnbCache repository.WBNBPriceCache,
	spotPrice repository.SpotPriceAPI,
	wbnbAddress string,
	quoteAssets []string,
	configFn func() *model.MonitorConfig,
	metrics *observability.Registry,
	log *slog.Logger,
) *Pipeline {
	quoteSet := make(map[string]bool, len(quoteAssets))
	for _, a := range quoteAssets {
		quoteSet[strings.ToLower(a)] = true
	}
	return &Pipeline{
		decoder:      decoder,
		dedup:        dedup,
		resolver:     resolver,
		filter:       filter,
		cooldown:     cooldown,
		dispatcher:   dispatcher,
		rpc:          rpc,
		receiptCache: receiptCache,
		wbnbCache:    wbnbCache,
		spotPrice:    spotPrice,
		wbnbAddress:  strings.ToLower(wbnbAddress),
		quoteAssets:  quoteSet,
		configFn:     configFn,
		metrics:      metrics,
		log:          log,
	}
}

// HandleFrame is called by the WS reader for every inbound frame. It runs
// every stage on the caller's goroutine: the receipt and metadata RPC
// calls, the Layer-2 stats fetch and the KV cooldown claim all complete
// before it returns, as does Dispatcher.Submit, which blocks when the
// dispatch queue is full.
func (p *Pipeline) HandleFrame(raw []byte) {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.MessagesTotal.WithLabelValues("log_event").Inc()
	}

	rl, _, err := p.decoder.PeekLog(raw)
	if err != nil {
		p.log.Debug("dropping frame: decode error", "err", err)
		return
	}

	ctx := context.Background()

	var event *model.SwapEvent
	if p.decoder.IsFourmemeAddress(rl.Address) {
		event, err = p.decodeFourmemeFrame(ctx, rl)
	} else {
		event, _, err = p.decoder.DecodeLogEvent(raw)
	}
	if err != nil {
		p.log.Debug("dropping frame: decode error", "err", err)
		return
	}
	if event == nil {
		return // recognized-but-irrelevant log, already counted by MessagesTotal
	}

	p.process(ctx, event)

	if p.metrics != nil {
		p.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}
}

// decodeFourmemeFrame resolves the transaction receipt for a log emitted
// by a configured Fourmeme router/proxy address, checking the warm
// receipt cache before falling back to the RPC client, then decodes the
// swap from the receipt's Transfer legs (plus the transaction's native
// BNB value, fetched unconditionally as the fallback quote leg).
func (p *Pipeline) decodeFourmemeFrame(ctx context.Context, rl *decode.RawLog) (*model.SwapEvent, error) {
	var receipt *model.ReceiptRecord
	if p.receiptCache != nil {
		receipt, _ = p.receiptCache.GetReceipt(ctx, rl.TransactionHash)
	}
	if receipt == nil {
		var err error
		receipt, err = p.rpc.GetReceipt(ctx, rl.TransactionHash)
		if err != nil {
			return nil, err
		}
		if p.receiptCache != nil {
			p.receiptCache.PutReceipt(ctx, receipt, 5*time.Minute)
		}
	}

	var nativeValue *big.Int
	if v, err := p.rpc.GetTransactionValue(ctx, rl.TransactionHash); err == nil {
		nativeValue = v
	}

	return p.decoder.DecodeFourmemeEvent(rl, receipt, nativeValue)
}

func (p *Pipeline) process(ctx context.Context, event *model.SwapEvent) {
	if p.dedup.Seen(event.TxHash, event.LogIndex) {
		if p.metrics != nil {
			p.metrics.DedupRejections.Inc()
		}
		return
	}

	var meta *model.PairMeta
	var err error
	if event.Origin == model.OriginInternal {
		meta, err = p.resolver.ResolveTokenPair(ctx, event.Token0, event.Token1)
	} else {
		meta, err = p.resolver.Resolve(ctx, event.Pair)
		if err == nil {
			event.Token0, event.Token1 = meta.Token0, meta.Token1
		}
	}
	if err != nil {
		p.log.Info("dropping event: metadata unresolvable", "pair", event.Pair, "err", err)
		return
	}

	quote := meta.QuoteToken(p.quoteAssets)
	if quote == "" {
		return
	}
	usdValue := p.usdValue(ctx, event, meta, quote)

	cfg := p.configFn()
	if !p.filter.Layer1(event.Pair, event.Origin, usdValue, cfg, event.Timestamp) {
		return
	}

	if event.Origin == model.OriginExternal && meta.IsFourmeme != model.LaunchpadYes {
		return
	}

	target := meta.TargetToken(quote)
	result, err := p.filter.Layer2(ctx, target, event.Origin, cfg)
	if err != nil {
		p.log.Info("layer-2 check failed", "token", target, "err", err)
		return
	}
	if !result.Pass {
		return
	}

	claimed, err := p.cooldown.Claim(ctx, target)
	if err != nil {
		p.log.Error("cooldown claim failed", "token", target, "err", err)
		return
	}
	if !claimed {
		if p.metrics != nil {
			p.metrics.CooldownRejections.Inc()
		}
		return
	}

	alert := &model.Alert{
		Token:          target,
		Pair:           event.Pair,
		TxHash:         event.TxHash,
		LogIndex:       event.LogIndex,
		USDValue:       usdValue,
		Origin:         event.Origin,
		TriggeredRules: result.Reasons,
		Reasons:        result.Reasons,
		CreatedAt:      time.Now(),
	}
	p.dispatcher.Submit(alert)
}

// usdValue normalizes the event's quote-side amount to a USD notional,
// using a live WBNB quote when the quote asset isn't already a
// stablecoin.
func (p *Pipeline) usdValue(ctx context.Context, event *model.SwapEvent, meta *model.PairMeta, quote string) float64 {
	quoteAmount := event.QuoteAmount(quote)
	decimals := meta.DecimalsOf(quote)
	normalized := decode.NormalizeAmount(quoteAmount, decimals)

	if strings.ToLower(quote) != p.wbnbAddress {
		return normalized // stablecoin quote: already 1 USD per unit
	}

	price := p.wbnbPrice(ctx)
	return normalized * price
}

func (p *Pipeline) wbnbPrice(ctx context.Context) float64 {
	cfg := p.configFn()
	if p.wbnbCache != nil {
		if price, ok := p.wbnbCache.GetWBNBPrice(ctx); ok {
			return price
		}
	}
	if p.spotPrice != nil {
		price, err := p.spotPrice.WBNBPrice(ctx)
		if err == nil && price > 0 {
			if p.wbnbCache != nil {
				p.wbnbCache.PutWBNBPrice(ctx, price, 5*time.Minute)
			}
			return price
		}
	}
	if cfg.WBNBDefaultEnabled {
		return cfg.WBNBDefaultPrice
	}
	return 0
}
