package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the bot's Prometheus instruments. A nil *Metrics is
// valid everywhere one is accepted; recording is simply skipped.
type Metrics struct {
	TicksTotal         prometheus.Counter
	TickErrorsTotal    *prometheus.CounterVec
	TradesOpenedTotal  prometheus.Counter
	TradesClosedTotal  *prometheus.CounterVec
	OrderTimeoutsTotal *prometheus.CounterVec
	OpenTrades         prometheus.Gauge
	BotState           prometheus.Gauge
	RealizedProfit     prometheus.Gauge
}

// New registers the bot instruments with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "Completed trading loop iterations.",
		}),
		TickErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_tick_errors_total",
			Help: "Trading loop iterations aborted by an error, by category.",
		}, []string{"category"}),
		TradesOpenedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bot_trades_opened_total",
			Help: "Buy orders placed.",
		}),
		TradesClosedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_trades_closed_total",
			Help: "Sell orders placed, by trigger.",
		}, []string{"reason"}),
		OrderTimeoutsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_order_timeouts_total",
			Help: "Unfilled orders cancelled by the timeout sweep, by side.",
		}, []string{"side"}),
		OpenTrades: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bot_open_trades",
			Help: "Currently open trades.",
		}),
		BotState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bot_state",
			Help: "Run state of the trader (1 running, 0 stopped).",
		}),
		RealizedProfit: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bot_realized_profit",
			Help: "Aggregate realized profit of closed trades, in stake currency.",
		}),
	}
}

// TradeOpened records a placed buy order.
func (m *Metrics) TradeOpened() {
	if m == nil {
		return
	}
	m.TradesOpenedTotal.Inc()
}

// TradeClosed records a placed sell order and its trigger.
func (m *Metrics) TradeClosed(reason string) {
	if m == nil {
		return
	}
	m.TradesClosedTotal.WithLabelValues(reason).Inc()
}

// TickCompleted records one finished loop iteration and the resulting number
// of open trades.
func (m *Metrics) TickCompleted(openTrades int) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.OpenTrades.Set(float64(openTrades))
}

// TickFailed records an aborted loop iteration by error category.
func (m *Metrics) TickFailed(category string) {
	if m == nil {
		return
	}
	m.TickErrorsTotal.WithLabelValues(category).Inc()
}

// OrderTimedOut records a cancelled stale order by side ("buy" or "sell").
func (m *Metrics) OrderTimedOut(side string) {
	if m == nil {
		return
	}
	m.OrderTimeoutsTotal.WithLabelValues(side).Inc()
}

// SetRunning publishes the run state.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.BotState.Set(1)
	} else {
		m.BotState.Set(0)
	}
}

// SetRealizedProfit publishes the aggregate realized profit.
func (m *Metrics) SetRealizedProfit(profit float64) {
	if m == nil {
		return
	}
	m.RealizedProfit.Set(profit)
}

// Handler returns the scrape endpoint for the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
