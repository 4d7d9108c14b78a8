package signal

import (
	"context"
	"fmt"
	"time"

	"coinpilot/internal/domain"
	"coinpilot/internal/ports"
)

// Analyzer evaluates strategy advice against fresh candle history fetched from
// the exchange. It implements ports.SignalProvider.
//
// The analyzer owns data quality: a missing, stale or panicking evaluation
// yields no signal rather than an error, so a flaky feed can never take the
// trading loop down.
type Analyzer struct {
	exchange ports.ExchangeClient
	strategy ports.Strategy
	logger   ports.Logger
	now      func() time.Time
}

// Config holds the dependencies for the Analyzer.
type Config struct {
	Exchange ports.ExchangeClient
	Strategy ports.Strategy
	Logger   ports.Logger
	Now      func() time.Time // Clock override for tests; defaults to time.Now
}

// New creates a new Analyzer instance.
func New(cfg Config) (*Analyzer, error) {
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("exchange client is required for signal analyzer")
	}
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("strategy is required for signal analyzer")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for signal analyzer")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Analyzer{
		exchange: cfg.Exchange,
		strategy: cfg.Strategy,
		logger:   cfg.Logger,
		now:      now,
	}, nil
}

// staleAfter returns how old the open time of the latest closed candle may be
// before the history counts as outdated: two full candle intervals plus five
// minutes of grace.
func staleAfter(interval string) time.Duration {
	minutes := domain.TickerIntervalMinutes[interval]
	return time.Duration(2*minutes+5) * time.Minute
}

// GetSignal returns the strategy's buy/sell advice for the pair on the given
// candle interval.
func (a *Analyzer) GetSignal(ctx context.Context, pair, interval string) (buy, sell bool) {
	op := "GetSignal"

	// One extra candle so the forming one can be dropped below.
	klines, err := a.exchange.GetKlines(ctx, pair, interval, a.strategy.RequiredDataPoints()+1)
	if err != nil {
		a.logger.Warn(ctx, op+": empty ticker history for pair", map[string]interface{}{"pair": pair, "error": err.Error()})
		return false, false
	}
	if len(klines) == 0 {
		a.logger.Warn(ctx, op+": empty ticker history for pair", map[string]interface{}{"pair": pair})
		return false, false
	}

	// The exchange returns the forming candle last; the strategy only ever
	// sees closed candles.
	klines = klines[:len(klines)-1]
	if len(klines) == 0 {
		a.logger.Warn(ctx, op+": no closed candles for pair", map[string]interface{}{"pair": pair})
		return false, false
	}

	latest := klines[len(klines)-1]
	age := a.now().UTC().Sub(latest.OpenTime)
	if age > staleAfter(interval) {
		a.logger.Warn(ctx, op+": outdated history for pair", map[string]interface{}{
			"pair":       pair,
			"ageMinutes": int(age.Minutes()),
		})
		return false, false
	}

	// The strategy is arbitrary injected code; contain anything it throws so
	// one bad pair cannot stop the bot.
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error(ctx, fmt.Errorf("strategy panicked: %v", r),
				op+": unexpected error when analyzing ticker", map[string]interface{}{"pair": pair})
			buy, sell = false, false
		}
	}()

	buy = a.strategy.AdviseBuy(ctx, klines, pair)
	sell = a.strategy.AdviseSell(ctx, klines, pair)

	a.logger.Debug(ctx, op+": signal evaluated", map[string]interface{}{
		"pair":       pair,
		"candleOpen": latest.OpenTime,
		"buy":        buy,
		"sell":       sell,
	})
	return buy, sell
}
