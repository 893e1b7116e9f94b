package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/andreirk/bscwatch/config"
	"github.com/andreirk/bscwatch/internal/decode"
	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/domain/repository"
	"github.com/andreirk/bscwatch/internal/domain/service"
	httpapi "github.com/andreirk/bscwatch/internal/handlers/http"
	wsbroadcast "github.com/andreirk/bscwatch/internal/handlers/websocket"
	"github.com/andreirk/bscwatch/internal/infrastructure/cache"
	extapi "github.com/andreirk/bscwatch/internal/infrastructure/httpapi"
	"github.com/andreirk/bscwatch/internal/infrastructure/kvstore"
	"github.com/andreirk/bscwatch/internal/infrastructure/queue"
	"github.com/andreirk/bscwatch/internal/infrastructure/rpcclient"
	"github.com/andreirk/bscwatch/internal/infrastructure/storage"
	"github.com/andreirk/bscwatch/internal/infrastructure/wsclient"
	"github.com/andreirk/bscwatch/internal/observability"
)

// AppContext holds every wired component for the process's lifetime. One
// instance is built in main and torn down on shutdown.
type AppContext struct {
	Config *config.Config

	Metrics      *observability.Registry
	KV           *kvstore.RedisStore
	Sink         *storage.ClickHouseSink
	Mirror       *queue.KafkaMirror
	Broadcaster  *wsbroadcast.AlertBroadcaster
	HTTPServer   *httpapi.Server
	WSManager    *wsclient.Manager
	Dispatcher   *Dispatcher
	RetrySweeper *RetrySweeper
	Pipeline     *Pipeline

	monitorConfig *model.MonitorConfig
}

// NewApp wires every component of the architecture: config -> KV/cache/
// external clients -> domain services -> dispatcher -> pipeline -> WS
// subscription manager, fronted by an HTTP server exposing /metrics,
// /health, and the dashboard /ws endpoint.
func NewApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*AppContext, error) {
	app := &AppContext{Config: cfg}

	metrics, promReg := observability.NewRegistry()
	app.Metrics = metrics

	kv := kvstore.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	app.KV = kv

	monitorCfg, err := kv.LoadMonitorConfig(ctx)
	if err != nil {
		log.Warn("failed to load monitor config from redis, using defaults", "err", err)
	}
	if monitorCfg == nil {
		monitorCfg = model.DefaultMonitorConfig()
		if err := kv.SaveMonitorConfig(ctx, monitorCfg); err != nil {
			log.Warn("failed to persist default monitor config", "err", err)
		}
	}
	app.monitorConfig = monitorCfg

	// sinkIface stays a genuinely nil interface when ClickHouse is
	// unavailable - assigning a nil *ClickHouseSink into it directly would
	// produce a non-nil interface wrapping a nil pointer, tripping every
	// downstream "sink != nil" guard in Dispatcher/RetrySweeper.
	var sinkIface repository.AlertSink
	sink, err := storage.NewClickHouseSink(storage.Config{
		Addr:     cfg.ClickhouseAddr,
		Username: cfg.ClickhouseUsername,
		Password: cfg.ClickhousePassword,
		Timeout:  cfg.ClickhouseTimeout,
	})
	if err != nil {
		log.Warn("clickhouse unavailable, alerts will not be durably sunk", "err", err)
	} else {
		app.Sink = sink
		sinkIface = sink
	}

	mirror := queue.NewKafkaMirror(queue.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
	app.Mirror = mirror

	broadcaster := wsbroadcast.NewAlertBroadcaster(log)
	app.Broadcaster = broadcaster

	priceStatTTL := map[model.Window]time.Duration{
		model.Window1m: 5 * time.Minute,
		model.Window5m: 5 * time.Minute,
		model.Window1h: 5 * time.Minute,
	}
	metaCache := cache.NewMetaCache(cfg.ReceiptCacheCap, cfg.PairMetaCacheCap, priceStatTTL, 30*time.Second)

	rpc := rpcclient.NewClient(cfg.RPCEndpoint, cfg.RPCRateLimit, metrics)
	ext := extapi.New(cfg.StatsAPIBase, cfg.LaunchpadAPIBase, cfg.SpotPriceAPIBase, cfg.NotifierURL)

	resolver := service.NewMetadataResolver(metaCache, rpc, kv, ext, cfg.QuoteAssets, metrics)
	filter := service.NewFilterEngine(time.Duration(monitorCfg.CumulativeWindowSecs)*time.Second, ext, ext, metaCache, kv, metrics)
	cooldown := service.NewCooldownService(kv, time.Duration(monitorCfg.CooldownSeconds)*time.Second, time.Duration(monitorCfg.JitterSeconds)*time.Second)
	dedup := service.NewSeenTxSet(time.Duration(monitorCfg.DedupTTLSeconds) * time.Second)

	dispatcher := NewDispatcher(cfg.WorkerCount, cfg.EventBufferSize, cooldown, ext, sinkIface, mirror, broadcaster, kv, metrics, log)
	app.Dispatcher = dispatcher

	retrySweeper := NewRetrySweeper(kv, dispatcher, sinkIface, time.Minute, log)
	app.RetrySweeper = retrySweeper

	decoder := decode.New(decode.NewRegistry(cfg.FourmemeAddresses, cfg.QuoteAssets, wbnbAddress(cfg.QuoteAssets)))

	configFn := func() *model.MonitorConfig { return app.monitorConfig }

	pipeline := NewPipeline(decoder, dedup, resolver, filter, cooldown, dispatcher, rpc, metaCache, metaCache, ext, wbnbAddress(cfg.QuoteAssets), cfg.QuoteAssets, configFn, metrics, log)
	app.Pipeline = pipeline

	groups := []wsclient.TopicGroup{
		{Addresses: nil, Topics: [][]string{{decode.TopicV2Swap.Hex()}}},
		{Addresses: cfg.FourmemeAddresses},
	}
	app.WSManager = wsclient.NewManager(cfg.WSEndpoint, groups, metrics)

	app.HTTPServer = httpapi.NewServer(":"+cfg.HTTPPort, observability.Handler(promReg), broadcaster)

	return app, nil
}

// wbnbAddress returns the first configured quote asset, which is always
// WBNB by QUOTE_ASSETS ordering convention (see config.LoadConfig).
func wbnbAddress(quoteAssets []string) string {
	if len(quoteAssets) == 0 {
		return ""
	}
	return quoteAssets[0]
}

// Run starts the WebSocket subscription manager, the retry sweeper, and the
// HTTP server, blocking until ctx is cancelled or the WS manager exits.
func (a *AppContext) Run(ctx context.Context) error {
	go a.RetrySweeper.Run(ctx)

	go func() {
		if err := a.HTTPServer.Start(); err != nil {
			fmt.Printf("http server exited: %v\n", err)
		}
	}()

	return a.WSManager.Run(ctx, a.Pipeline.HandleFrame)
}

// Shutdown stops accepting new frames (the caller must have already
// cancelled the context passed to Run), waits for the dispatcher to drain
// in-flight alerts, then releases every pooled connection.
func (a *AppContext) Shutdown(ctx context.Context) {
	if a.Dispatcher != nil {
		a.Dispatcher.Shutdown(ctx)
	}
	if a.HTTPServer != nil {
		_ = a.HTTPServer.Shutdown(ctx)
	}
	if a.Mirror != nil {
		_ = a.Mirror.Close()
	}
	if a.Sink != nil {
		_ = a.Sink.Close()
	}
	if a.KV != nil {
		_ = a.KV.Close()
	}
}
