// Package obs is the observability surface (§6/§9): per-instrument
// Prometheus counters/gauges plus a periodic structured-logging snapshot,
// covering events/s, dropped-event count, sequence-gap count, best/spread,
// buy/sell fill totals, and active-instance count.
//
// Grounded on the pack's bbgo xmaker strategy, which registers
// prometheus.GaugeVec/CounterVec metrics labeled by strategy/symbol and
// sets them inline as quotes are recomputed; generalized here from one
// strategy's ad hoc metric variables into a single Registry type labeled
// by instrument_id. The periodic snapshot log is grounded on the
// teacher's risk.Manager.GetRiskSnapshot/Run ticker pattern, adapted from
// risk metrics to pipeline metrics.
package obs

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the Prometheus collectors for the pipeline and the
// in-memory counters a periodic snapshot logger reads back.
type Registry struct {
	logger *slog.Logger

	eventsTotal     *prometheus.CounterVec
	droppedTotal    *prometheus.CounterVec
	sequenceGaps    *prometheus.CounterVec
	bestBid         *prometheus.GaugeVec
	bestAsk         *prometheus.GaugeVec
	spread          *prometheus.GaugeVec
	buyFillsTotal   *prometheus.CounterVec
	sellFillsTotal  *prometheus.CounterVec
	activeInstances prometheus.Gauge
}

// New constructs a Registry and registers its collectors with reg.
func New(reg prometheus.Registerer, logger *slog.Logger) *Registry {
	r := &Registry{
		logger: logger.With("component", "obs"),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hftcore",
			Name:      "events_total",
			Help:      "Market data and order report events processed, by instrument.",
		}, []string{"instrument_id"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hftcore",
			Name:      "dropped_events_total",
			Help:      "Events dropped (e.g. ring buffer overflow), by instrument.",
		}, []string{"instrument_id"}),
		sequenceGaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hftcore",
			Name:      "sequence_gaps_total",
			Help:      "Detected sequence-number gaps in the book feed, by instrument.",
		}, []string{"instrument_id"}),
		bestBid: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hftcore",
			Name:      "best_bid",
			Help:      "Current best bid price, by instrument.",
		}, []string{"instrument_id"}),
		bestAsk: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hftcore",
			Name:      "best_ask",
			Help:      "Current best ask price, by instrument.",
		}, []string{"instrument_id"}),
		spread: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hftcore",
			Name:      "spread",
			Help:      "Current best ask minus best bid, by instrument.",
		}, []string{"instrument_id"}),
		buyFillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hftcore",
			Name:      "buy_fills_total",
			Help:      "Total buy-side fills, by instrument.",
		}, []string{"instrument_id"}),
		sellFillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hftcore",
			Name:      "sell_fills_total",
			Help:      "Total sell-side fills, by instrument.",
		}, []string{"instrument_id"}),
		activeInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hftcore",
			Name:      "active_instances",
			Help:      "Number of quoting instances currently active.",
		}),
	}

	reg.MustRegister(
		r.eventsTotal, r.droppedTotal, r.sequenceGaps,
		r.bestBid, r.bestAsk, r.spread,
		r.buyFillsTotal, r.sellFillsTotal, r.activeInstances,
	)
	return r
}

// ObserveEvent records one processed market-data or order-report event.
func (r *Registry) ObserveEvent(instrumentID string) {
	r.eventsTotal.WithLabelValues(instrumentID).Inc()
}

// ObserveDropped records one dropped event (e.g. a full ring buffer).
func (r *Registry) ObserveDropped(instrumentID string) {
	r.droppedTotal.WithLabelValues(instrumentID).Inc()
}

// ObserveSequenceGap records one detected sequence-number gap.
func (r *Registry) ObserveSequenceGap(instrumentID string) {
	r.sequenceGaps.WithLabelValues(instrumentID).Inc()
}

// SetBestQuotes updates the best bid/ask/spread gauges for an instrument.
func (r *Registry) SetBestQuotes(instrumentID string, bid, ask float64) {
	r.bestBid.WithLabelValues(instrumentID).Set(bid)
	r.bestAsk.WithLabelValues(instrumentID).Set(ask)
	r.spread.WithLabelValues(instrumentID).Set(ask - bid)
}

// ObserveFill records one fill on the given side ("buy" or "sell").
func (r *Registry) ObserveFill(instrumentID string, buy bool) {
	if buy {
		r.buyFillsTotal.WithLabelValues(instrumentID).Inc()
		return
	}
	r.sellFillsTotal.WithLabelValues(instrumentID).Inc()
}

// SetActiveInstances updates the active-instance-count gauge.
func (r *Registry) SetActiveInstances(n int) {
	r.activeInstances.Set(float64(n))
}

// ActiveInstanceCounter is satisfied by the instance manager for periodic
// snapshot logging.
type ActiveInstanceCounter interface {
	ActiveCount() int
}

// RunSnapshotLoop logs an active-instance-count snapshot at the given
// interval until ctx is cancelled, mirroring the teacher's periodic
// risk-snapshot ticker. The same count is pushed to the Prometheus gauge
// on each tick.
func (r *Registry) RunSnapshotLoop(ctx context.Context, counter ActiveInstanceCounter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := counter.ActiveCount()
			r.SetActiveInstances(n)
			r.logger.Info("snapshot", "active_instances", n)
		}
	}
}
