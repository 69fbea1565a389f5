// quoter is the pipeline's entry point: loads configuration, wires one
// feed adapter and order router per exchange, builds the per-instrument
// order gateways, starts the distributor and instance manager, and
// deploys every configured quoting instance.
//
// Grounded on the teacher's cmd/bot/main.go: config load, logger setup,
// engine construction, start, signal wait, stop. Generalized from one
// hard-coded Polymarket engine into the exchange-agnostic pipeline
// assembled here, and from a dashboard HTTP server into a Prometheus
// /metrics endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"hftcore/internal/app"
	"hftcore/internal/book"
	"hftcore/internal/config"
	"hftcore/internal/distributor"
	"hftcore/internal/events"
	"hftcore/internal/feed"
	"hftcore/internal/fx"
	"hftcore/internal/gateway"
	"hftcore/internal/idgen"
	"hftcore/internal/instance"
	"hftcore/internal/instrument"
	"hftcore/internal/obs"
	"hftcore/internal/order"
	"hftcore/internal/quote"
	"hftcore/internal/ring"
	"hftcore/internal/router"
	"hftcore/pkg/fixedpoint"
)

const ringCapacity = 4096

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("HFT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	repo, err := loadInstruments(cfg.Instruments.CSVPath)
	if err != nil {
		logger.Error("failed to load instrument table", "error", err)
		os.Exit(1)
	}

	fxConv := buildFXConverter(cfg.FX)

	reg := prometheus.NewRegistry()
	observability := obs.New(reg, logger)

	dist := distributor.New(logger, 0)
	dist.SetBookUpdateHandler(func(instrumentID string, b *book.OrderBook) {
		inst, ok := repo.ByID(instrumentID)
		if !ok {
			return
		}
		bid, ask, ok := b.BestBidAskDecimal(inst.MinimumPriceVariation)
		if !ok {
			return
		}
		bidF, _ := bid.Float64()
		askF, _ := ask.Float64()
		observability.SetBestQuotes(instrumentID, bidF, askF)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	routers := make(map[string]*router.Router, len(cfg.Exchanges))
	adapters := make(map[string]*feed.Adapter, len(cfg.Exchanges))
	rings := make(map[string]*ring.SPSC[events.MarketDataEvent], len(cfg.Exchanges))

	instanceMgr := &managerHolder{}

	for name, ex := range cfg.Exchanges {
		idGen, err := idgen.New(idgen.SourceQuoter)
		if err != nil {
			logger.Error("failed to construct id generator", "exchange", name, "error", err)
			os.Exit(1)
		}
		rtr := router.New(idGen, order.NewFactory(), router.DefaultFIFOCapacity, logger)
		rtr.AddFillHandler(func(f events.Fill) {
			observability.ObserveFill(f.InstrumentID, f.Side == events.Buy)
		})
		routers[name] = rtr

		r := ring.NewSPSC[events.MarketDataEvent](ringCapacity)
		rings[name] = r

		decoder := feed.NewJSONDecoder(name, tickResolver(repo))
		adapter := feed.New(name, ex.WSURL, decoder,
			func(md events.MarketDataEvent) {
				observability.ObserveEvent(md.InstrumentID)
				if !r.TryWrite(md) {
					observability.ObserveDropped(md.InstrumentID)
				}
			},
			rtr.Route,
			func(evt events.AdapterConnectionStateChanged) {
				instanceMgr.onAdapterState(ctx, evt)
			},
			logger,
		)
		adapters[name] = adapter
	}

	gateways := buildGateways(cfg, repo, logger)

	builder := app.New(repo, routers, gateways, dist, fxConv, logger)
	mgr := instance.New(builder, logger, nil)
	instanceMgr.set(mgr)

	for _, r := range rings {
		wg.Add(1)
		go func(r *ring.SPSC[events.MarketDataEvent]) {
			defer wg.Done()
			dist.Run(ctx, r)
		}(r)
	}

	for name, adapter := range adapters {
		symbols := symbolsForExchange(cfg, name)
		wg.Add(1)
		go func(name string, adapter *feed.Adapter, symbols []string) {
			defer wg.Done()
			if err := adapter.Start(ctx, symbols); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("feed adapter stopped", "exchange", name, "error", err)
			}
		}(name, adapter, symbols)
	}

	for _, instCfg := range cfg.Instances {
		p, err := instCfg.QuotingParameters()
		if err != nil {
			logger.Error("failed to translate instance config", "instrument_id", instCfg.InstrumentID, "error", err)
			os.Exit(1)
		}
		// Deploy twice: the first call constructs the instance inactive,
		// the second toggles it active (§4.7's deploy-then-activate rule).
		if err := mgr.UpdateInstanceParameters(ctx, p); err != nil {
			logger.Error("failed to deploy instance", "instrument_id", p.InstrumentID, "error", err)
			os.Exit(1)
		}
		if err := mgr.UpdateInstanceParameters(ctx, p); err != nil {
			logger.Error("failed to activate instance", "instrument_id", p.InstrumentID, "error", err)
			os.Exit(1)
		}
	}

	snapshotInterval := cfg.Obs.SnapshotInterval
	if snapshotInterval <= 0 {
		snapshotInterval = 10 * time.Second
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		observability.RunSnapshotLoop(ctx, mgr, snapshotInterval)
	}()

	var metricsSrv *http.Server
	if cfg.Obs.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Obs.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics server listening", "addr", cfg.Obs.MetricsAddr)
	}

	logger.Info("quoter started", "exchanges", len(cfg.Exchanges), "instances", len(cfg.Instances), "dry_run", cfg.DryRun)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}
	for name, adapter := range adapters {
		if err := adapter.Stop(); err != nil {
			logger.Warn("feed adapter stop failed", "exchange", name, "error", err)
		}
	}

	cancel()
	wg.Wait()
	logger.Info("quoter stopped")
}

// managerHolder breaks the construction cycle between the feed adapters
// (built before the instance manager exists) and the instance manager's
// connection-state callback (which the adapters must be able to invoke
// from the moment they start connecting).
type managerHolder struct {
	mu sync.RWMutex
	m  *instance.Manager
}

func (h *managerHolder) set(m *instance.Manager) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.m = m
}

func (h *managerHolder) onAdapterState(ctx context.Context, evt events.AdapterConnectionStateChanged) {
	h.mu.RLock()
	m := h.m
	h.mu.RUnlock()
	if m != nil {
		m.OnAdapterConnectionStateChanged(ctx, evt)
	}
}

func tickResolver(repo *instrument.Repository) func(string) (fixedpoint.TickSize, bool) {
	return func(instrumentID string) (fixedpoint.TickSize, bool) {
		inst, ok := repo.ByID(instrumentID)
		if !ok {
			return fixedpoint.TickSize{}, false
		}
		return inst.MinimumPriceVariation, true
	}
}

func loadInstruments(path string) (*instrument.Repository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open instrument table: %w", err)
	}
	defer f.Close()
	return instrument.Load(f)
}

// buildFXConverter constructs the shared FX rate graph from config,
// falling back to fx.DefaultIdentityPairs when none are configured.
func buildFXConverter(cfg config.FXConfig) *fx.Converter {
	identityPairs := cfg.IdentityPairs
	if len(identityPairs) == 0 {
		identityPairs = fx.DefaultIdentityPairs()
	}
	conv := fx.New(identityPairs...)
	for _, r := range cfg.Rates {
		conv.AddRate(r.From, r.To, decimal.NewFromFloat(r.Rate))
	}
	return conv
}

func buildGateways(cfg *config.Config, repo *instrument.Repository, logger *slog.Logger) map[string]quote.Gateway {
	gateways := make(map[string]quote.Gateway)
	seen := make(map[string]struct{})

	addInstrument := func(instrumentID string) {
		if instrumentID == "" {
			return
		}
		if _, ok := seen[instrumentID]; ok {
			return
		}
		seen[instrumentID] = struct{}{}

		inst, ok := repo.ByID(instrumentID)
		if !ok {
			return
		}
		ex, ok := cfg.Exchanges[inst.Market]
		if !ok {
			return
		}
		auth := gateway.NewAuth(gateway.Credentials{APIKey: ex.ApiKey, Secret: ex.Secret, Passphrase: ex.Passphrase})
		dryRun := cfg.DryRun || ex.ApiKey == ""
		gateways[instrumentID] = gateway.New(ex.RESTBaseURL, auth, gateway.DefaultRateLimiter(), inst.MinimumPriceVariation, dryRun, logger)
	}

	for _, instCfg := range cfg.Instances {
		addInstrument(instCfg.InstrumentID)
	}
	return gateways
}

// symbolsForExchange returns the distinct instrument ids on exchange that
// need a live market-data subscription: every configured instance's
// quoted and FV instrument that resolves to this venue.
func symbolsForExchange(cfg *config.Config, exchangeName string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, instCfg := range cfg.Instances {
		if instCfg.QuotedExchange == exchangeName {
			add(instCfg.InstrumentID)
		}
		if instCfg.FVExchange == exchangeName || (instCfg.FVExchange == "" && instCfg.QuotedExchange == exchangeName) {
			add(instCfg.FVInstrumentID)
		}
	}
	return out
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
