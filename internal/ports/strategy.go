package ports

import (
	"context"

	"coinpilot/internal/domain"
)

// Strategy defines the advice surface of a trading strategy. A single
// implementation is resolved at startup and injected wherever signals or
// strategy parameters are needed.
type Strategy interface {
	// TickerInterval returns the candle interval the strategy works on ("5m").
	TickerInterval() string

	// Stoploss returns the stop-loss fraction below the reference price.
	Stoploss() float64

	// MinimalROI returns the return-on-investment table in definition order.
	// The table is walked top to bottom; it must not be reordered.
	MinimalROI() []domain.ROIEntry

	// RequiredDataPoints returns the minimum number of klines needed for the
	// strategy calculations.
	RequiredDataPoints() int

	// AdviseBuy reports whether the latest closed candle carries a buy signal.
	AdviseBuy(ctx context.Context, klines []*domain.Kline, pair string) bool

	// AdviseSell reports whether the latest closed candle carries a sell signal.
	AdviseSell(ctx context.Context, klines []*domain.Kline, pair string) bool
}
