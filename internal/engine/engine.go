// Package engine implements one iteration of the trading loop: refreshing the
// tradable pair list, reconciling and exiting open trades, entering new ones
// and sweeping stale orders. It is driven by the application worker and talks
// to the outside world exclusively through ports.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coinpilot/internal/metrics"
	"coinpilot/internal/ports"
	"coinpilot/internal/pricing"
	"coinpilot/internal/stake"
	"coinpilot/internal/whitelist"
)

// Config holds the collaborators and the trading behaviour of the Engine.
type Config struct {
	Exchange  ports.ExchangeClient
	Repo      ports.TradeRepository
	Signals   ports.SignalProvider
	Strategy  ports.Strategy
	Targeter  *pricing.Targeter
	Sizer     *stake.Sizer
	Whitelist *whitelist.Generator
	Notifier  ports.Notifier
	Fiat      ports.FiatConverter
	Logger    ports.Logger
	Metrics   *metrics.Metrics // optional
	Now       func() time.Time // defaults to time.Now

	BotID         int
	StakeCurrency string
	FiatCurrency  string // empty disables fiat conversion in notifications
	MaxOpenTrades int
	DryRun        bool
	DisableBuy    bool

	// Pair list source: a fixed whitelist, or the top DynamicWhitelist pairs
	// by quote volume when DynamicWhitelist > 0.
	PairWhitelist    []string
	DynamicWhitelist int

	// Buy admission filters.
	CheckDepthOfMarket      bool
	DOMBidsAsksDelta        float64
	BuyPriceBelow24hHighLow bool

	// Sell behaviour.
	UseSellSignal       bool
	SellProfitOnly      bool
	SellFullfilledAtROI bool
	SellUseBookOrder    bool
	SellBookOrderMin    int
	SellBookOrderMax    int

	// Stoploss trailing.
	TrailingStop         bool
	TrailingStopPositive float64

	// Unfilled order timeouts; zero disables the respective side.
	UnfilledTimeoutBuy  time.Duration
	UnfilledTimeoutSell time.Duration
}

// Engine runs the per-tick trading logic.
type Engine struct {
	cfg Config
	now func() time.Time
}

// New creates a new Engine instance.
func New(cfg Config) (*Engine, error) {
	if cfg.Exchange == nil {
		return nil, errors.New("exchange client is required for engine")
	}
	if cfg.Repo == nil {
		return nil, errors.New("trade repository is required for engine")
	}
	if cfg.Signals == nil {
		return nil, errors.New("signal provider is required for engine")
	}
	if cfg.Strategy == nil {
		return nil, errors.New("strategy is required for engine")
	}
	if cfg.Targeter == nil {
		return nil, errors.New("price targeter is required for engine")
	}
	if cfg.Sizer == nil {
		return nil, errors.New("stake sizer is required for engine")
	}
	if cfg.Whitelist == nil {
		return nil, errors.New("whitelist generator is required for engine")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("notifier is required for engine")
	}
	if cfg.Fiat == nil {
		return nil, errors.New("fiat converter is required for engine")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required for engine")
	}
	if cfg.MaxOpenTrades < 1 {
		return nil, errors.New("max open trades must be at least 1")
	}
	if cfg.SellUseBookOrder && (cfg.SellBookOrderMin < 1 || cfg.SellBookOrderMax < cfg.SellBookOrderMin) {
		return nil, errors.New("sell book order range is invalid")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{cfg: cfg, now: now}, nil
}

// Tick runs one full trading iteration: refresh the pair list, manage open
// trades, enter a new trade when a slot is free, then sweep unfilled orders
// past their timeout. It returns the number of open trades at the end of the
// iteration.
//
// Dependency failures on a single trade or on trade creation are logged and
// absorbed; any other failure aborts the iteration and is returned to the
// caller for classification.
func (e *Engine) Tick(ctx context.Context) (int, error) {
	op := "Tick"

	pairs, err := e.cfg.Whitelist.Refresh(ctx, e.cfg.PairWhitelist, e.cfg.DynamicWhitelist)
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w", op, err)
	}

	trades, err := e.cfg.Repo.FindOpen(ctx, e.cfg.BotID)
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w", op, err)
	}

	for _, trade := range trades {
		if err := e.processOpenTrade(ctx, trade); err != nil {
			if errors.Is(err, ports.ErrDependency) {
				e.cfg.Logger.Warn(ctx, op+": unable to sell trade", map[string]interface{}{
					"trade": trade.String(), "error": err.Error(),
				})
				continue
			}
			return 0, err
		}
	}

	open := len(trades)
	if open < e.cfg.MaxOpenTrades {
		if e.cfg.DisableBuy {
			e.cfg.Logger.Info(ctx, op+": buy disabled, skipping trade creation")
		} else {
			bought, err := e.createTrade(ctx, pairs, trades)
			switch {
			case err == nil:
				if bought {
					open++
				}
			case errors.Is(err, ports.ErrDependency):
				e.cfg.Logger.Warn(ctx, op+": unable to create trade", map[string]interface{}{
					"error": err.Error(),
				})
			default:
				return 0, err
			}
		}
	}

	if !e.cfg.DryRun && (e.cfg.UnfilledTimeoutBuy > 0 || e.cfg.UnfilledTimeoutSell > 0) {
		if err := e.sweepTimeouts(ctx); err != nil {
			return 0, err
		}
	}

	return open, nil
}
