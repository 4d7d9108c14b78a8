package pricing

import (
	"context"
	"fmt"
	"time"

	"coinpilot/internal/domain"
	"coinpilot/internal/ports"
	"coinpilot/internal/utils"
)

// satoshi is the epsilon added above the chosen bid level when pricing a buy
// from the order book, one tick on 8-decimal markets.
const satoshi = 0.00000001

// Config holds the bid-strategy knobs for the Targeter.
type Config struct {
	AskLastBalance float64 // 0.0 = bid at the ask, 1.0 = bid at the last price
	UseBookOrder   bool    // Price buys from the live order book
	BookOrderTop   int     // 1-based bid level used for book pricing
	PercentFromTop float64 // Discount subtracted from the final rate
}

// Targeter computes entry and exit price targets from live market data.
type Targeter struct {
	cfg      Config
	exchange ports.ExchangeClient
	logger   ports.Logger
}

// New creates a new Targeter instance.
func New(cfg Config, exchange ports.ExchangeClient, logger ports.Logger) (*Targeter, error) {
	if exchange == nil {
		return nil, fmt.Errorf("exchange client is required for price targeter")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for price targeter")
	}
	if cfg.UseBookOrder && cfg.BookOrderTop < 1 {
		return nil, fmt.Errorf("book order top must be at least 1")
	}
	return &Targeter{cfg: cfg, exchange: exchange, logger: logger}, nil
}

// BuyRate computes the limit price for entering pair, truncated to 8 decimal
// places. When the ask sits below the last traded price the ask is used as is;
// otherwise the rate is pulled from the ask toward the last price by the
// configured balance, so the bid never crosses above the ask. With book
// pricing enabled the configured bid level plus one satoshi caps the rate from
// below, never raises it above the ticker-derived rate.
func (t *Targeter) BuyRate(ctx context.Context, pair string) (float64, error) {
	op := "BuyRate"

	ticker, err := t.exchange.GetTicker(ctx, pair)
	if err != nil {
		return 0, fmt.Errorf("%s failed for %s: %w", op, pair, err)
	}

	rate := ticker.Ask
	if ticker.Ask >= ticker.Last {
		rate += t.cfg.AskLastBalance * (ticker.Last - rate)
	}

	if t.cfg.UseBookOrder {
		t.logger.Info(ctx, op+": getting buy price from order book", map[string]interface{}{
			"pair": pair, "level": t.cfg.BookOrderTop,
		})
		book, err := t.exchange.GetOrderBook(ctx, pair, t.cfg.BookOrderTop)
		if err != nil {
			return 0, fmt.Errorf("%s failed for %s: %w", op, pair, err)
		}
		if len(book.Bids) < t.cfg.BookOrderTop {
			return 0, fmt.Errorf("%s: order book for %s has %d bid levels, need %d: %w",
				op, pair, len(book.Bids), t.cfg.BookOrderTop, ports.ErrTemporary)
		}
		bookRate := book.Bids[t.cfg.BookOrderTop-1].Price + satoshi
		// Outbid the book but never cross the ticker-derived ceiling.
		if bookRate < rate {
			rate = bookRate
		}
	}

	if t.cfg.PercentFromTop > 0 {
		rate -= rate * t.cfg.PercentFromTop
	}

	rate = utils.Trunc(rate, 8)
	t.logger.Debug(ctx, op+": computed entry rate", map[string]interface{}{
		"pair": pair, "rate": rate, "ask": ticker.Ask, "last": ticker.Last,
	})
	return rate, nil
}

// ROIRate computes the sell price that locks in the first expired entry of
// the ROI table: open rate grown by the entry's threshold and by 2.1x the
// taker fee, covering the round trip with margin, truncated to 8 decimals.
// When no entry has expired yet the fallback rate is returned unchanged.
func (t *Targeter) ROIRate(ctx context.Context, trade *domain.Trade, table []domain.ROIEntry, fallback float64, now time.Time) (float64, error) {
	op := "ROIRate"

	elapsed := trade.DurationSince(now).Minutes()
	for _, entry := range table {
		if elapsed > float64(entry.Minutes) {
			fee, err := t.exchange.GetFee(ctx, trade.Pair, ports.FeeTaker)
			if err != nil {
				return 0, fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
			}
			rate := utils.Trunc(trade.OpenRate*(1+entry.Threshold)*(1+2.1*fee), 8)
			t.logger.Debug(ctx, op+": targeting ROI exit rate", map[string]interface{}{
				"pair": trade.Pair, "rate": rate, "threshold": entry.Threshold,
			})
			return rate, nil
		}
	}
	return fallback, nil
}
