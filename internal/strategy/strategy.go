package strategy

import (
	"context"
	"fmt"

	"coinpilot/internal/domain"
	"coinpilot/internal/ports"
)

// Config holds parameters for the trading strategy.
type Config struct {
	TickerInterval string            // Candle interval the strategy works on, e.g. "5m"
	Stoploss       float64           // Stop-loss fraction below the reference price
	MinimalROI     []domain.ROIEntry // ROI table in definition order

	ShortTermMAPeriod int     // e.g., 20
	LongTermMAPeriod  int     // e.g., 50
	EMAPeriod         int     // e.g., 20
	RSIPeriod         int     // e.g., 14
	RSIOverbought     float64 // e.g., 70.0
	RSIOversold       float64 // e.g., 30.0 (reserved for oversold entries)
}

// Strategy advises buys and sells from moving-average trend and RSI momentum
// on closed candles. It implements ports.Strategy.
type Strategy struct {
	cfg    Config
	logger ports.Logger
}

// New creates a new Strategy instance.
func New(cfg Config, logger ports.Logger) (*Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if _, ok := domain.TickerIntervalMinutes[cfg.TickerInterval]; !ok {
		return nil, fmt.Errorf("unsupported ticker interval %q", cfg.TickerInterval)
	}
	if cfg.Stoploss == 0 {
		return nil, fmt.Errorf("stoploss must be non-zero")
	}
	if len(cfg.MinimalROI) == 0 {
		return nil, fmt.Errorf("minimal ROI table must not be empty")
	}
	if cfg.ShortTermMAPeriod <= 0 || cfg.LongTermMAPeriod <= 0 || cfg.EMAPeriod <= 0 || cfg.RSIPeriod <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if cfg.ShortTermMAPeriod >= cfg.LongTermMAPeriod {
		return nil, fmt.Errorf("short term MA period must be less than long term MA period")
	}
	return &Strategy{cfg: cfg, logger: logger}, nil
}

// TickerInterval returns the candle interval the strategy works on.
func (s *Strategy) TickerInterval() string { return s.cfg.TickerInterval }

// Stoploss returns the stop-loss fraction below the reference price.
func (s *Strategy) Stoploss() float64 { return s.cfg.Stoploss }

// MinimalROI returns the ROI table in definition order. The sell check walks
// it top to bottom; callers must not reorder it.
func (s *Strategy) MinimalROI() []domain.ROIEntry { return s.cfg.MinimalROI }

// RequiredDataPoints returns the minimum number of klines needed for the strategy calculations.
// It's the max of all indicator periods + 1 (for RSI lookback).
func (s *Strategy) RequiredDataPoints() int {
	maxPeriod := s.cfg.LongTermMAPeriod // Start with LongTermMA
	if s.cfg.EMAPeriod > maxPeriod {
		maxPeriod = s.cfg.EMAPeriod
	}
	if s.cfg.RSIPeriod > maxPeriod {
		maxPeriod = s.cfg.RSIPeriod
	}
	// RSI calculation looks one step further back than its period
	return maxPeriod + 1
}

// indicators carries one evaluation of every configured indicator against the
// close of the latest candle in the window.
type indicators struct {
	price   float64
	shortMA float64
	longMA  float64
	ema     float64
	rsi     float64
}

func (s *Strategy) compute(ctx context.Context, klines []*domain.Kline, pair string) (*indicators, bool) {
	requiredPoints := s.RequiredDataPoints()
	if len(klines) < requiredPoints {
		s.logger.Debug(ctx, "Not enough kline data for strategy evaluation",
			map[string]interface{}{"pair": pair, "available": len(klines), "required": requiredPoints})
		return nil, false
	}

	shortTermMA, err := calculateMovingAverage(klines, s.cfg.ShortTermMAPeriod)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to calculate short term MA", map[string]interface{}{"pair": pair})
		return nil, false
	}

	longTermMA, err := calculateMovingAverage(klines, s.cfg.LongTermMAPeriod)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to calculate long term MA", map[string]interface{}{"pair": pair})
		return nil, false
	}

	ema, err := calculateEMA(klines, s.cfg.EMAPeriod)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to calculate EMA", map[string]interface{}{"pair": pair})
		return nil, false
	}

	rsi, err := calculateRSI(klines, s.cfg.RSIPeriod)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to calculate RSI", map[string]interface{}{"pair": pair})
		return nil, false
	}

	return &indicators{
		price:   klines[len(klines)-1].Close,
		shortMA: shortTermMA,
		longMA:  longTermMA,
		ema:     ema,
		rsi:     rsi,
	}, true
}

// AdviseBuy reports whether the latest closed candle carries a buy signal:
// price above both moving averages with the short above the long, above the
// EMA, and RSI below the overbought threshold.
func (s *Strategy) AdviseBuy(ctx context.Context, klines []*domain.Kline, pair string) bool {
	ind, ok := s.compute(ctx, klines, pair)
	if !ok {
		return false
	}

	isTrendingUp := ind.price > ind.shortMA && ind.price > ind.longMA && ind.shortMA > ind.longMA
	isNotOverbought := ind.rsi < s.cfg.RSIOverbought
	isAboveEMA := ind.price > ind.ema

	if isTrendingUp && isNotOverbought && isAboveEMA {
		s.logger.Info(ctx, "Buy conditions met", map[string]interface{}{
			"pair":     pair,
			"price":    ind.price,
			"shortMA":  ind.shortMA,
			"longMA":   ind.longMA,
			"ema":      ind.ema,
			"rsi":      ind.rsi,
			"rsiLimit": s.cfg.RSIOverbought,
		})
		return true
	}

	s.logger.Debug(ctx, "Buy conditions not met", map[string]interface{}{
		"pair":            pair,
		"price":           ind.price,
		"shortMA":         ind.shortMA,
		"longMA":          ind.longMA,
		"ema":             ind.ema,
		"rsi":             ind.rsi,
		"isTrendingUp":    isTrendingUp,
		"isNotOverbought": isNotOverbought,
		"isAboveEMA":      isAboveEMA,
	})
	return false
}

// AdviseSell reports whether the latest closed candle carries a sell signal:
// RSI past the overbought threshold, or the uptrend broken with the price
// below both moving averages and the EMA.
func (s *Strategy) AdviseSell(ctx context.Context, klines []*domain.Kline, pair string) bool {
	ind, ok := s.compute(ctx, klines, pair)
	if !ok {
		return false
	}

	isOverbought := ind.rsi > s.cfg.RSIOverbought
	isTrendingDown := ind.price < ind.shortMA && ind.shortMA < ind.longMA
	isBelowEMA := ind.price < ind.ema

	if isOverbought || (isTrendingDown && isBelowEMA) {
		s.logger.Info(ctx, "Sell conditions met", map[string]interface{}{
			"pair":           pair,
			"price":          ind.price,
			"rsi":            ind.rsi,
			"isOverbought":   isOverbought,
			"isTrendingDown": isTrendingDown,
			"isBelowEMA":     isBelowEMA,
		})
		return true
	}

	s.logger.Debug(ctx, "Sell conditions not met", map[string]interface{}{
		"pair":           pair,
		"price":          ind.price,
		"rsi":            ind.rsi,
		"isOverbought":   isOverbought,
		"isTrendingDown": isTrendingDown,
		"isBelowEMA":     isBelowEMA,
	})
	return false
}

// calculateRSI calculates the Relative Strength Index (RSI) using Wilder's smoothing method.
func calculateRSI(klines []*domain.Kline, period int) (float64, error) {
	if len(klines) <= period {
		return 0, fmt.Errorf("not enough data (%d) to calculate RSI for period %d", len(klines), period)
	}

	// Calculate price changes
	changes := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		changes = append(changes, change)
	}

	// Calculate initial average gain and loss
	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		if changes[i] > 0 {
			avgGain += changes[i]
		} else {
			avgLoss -= changes[i]
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Calculate smoothed average gain and loss using Wilder's smoothing
	for i := period; i < len(changes); i++ {
		if changes[i] > 0 {
			avgGain = (avgGain*float64(period-1) + changes[i]) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) - changes[i]) / float64(period)
		}
	}

	// Handle edge cases
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil // Neutral if no change
		}
		return 100, nil // Max RSI if only gains
	}

	// Calculate RSI
	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))

	// Ensure RSI is within bounds
	if rsi > 100 {
		rsi = 100
	} else if rsi < 0 {
		rsi = 0
	}

	return rsi, nil
}

// calculateMovingAverage calculates the Simple Moving Average (SMA) over the
// last period klines.
func calculateMovingAverage(klines []*domain.Kline, period int) (float64, error) {
	if len(klines) < period {
		return 0, fmt.Errorf("not enough data (%d) to calculate MA for period %d", len(klines), period)
	}

	total := 0.0
	// Sum the closing prices for the specified period
	for i := len(klines) - period; i < len(klines); i++ {
		total += klines[i].Close
	}
	return total / float64(period), nil
}

// calculateEMA calculates the Exponential Moving Average (EMA), seeded with
// the SMA of the first period klines.
func calculateEMA(klines []*domain.Kline, period int) (float64, error) {
	if len(klines) < period {
		return 0, fmt.Errorf("not enough data (%d) to calculate EMA for period %d", len(klines), period)
	}

	multiplier := 2.0 / float64(period+1)

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += klines[i].Close
	}
	ema := seed / float64(period)

	for i := period; i < len(klines); i++ {
		ema = (klines[i].Close-ema)*multiplier + ema
	}

	return ema, nil
}
