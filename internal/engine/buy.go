package engine

import (
	"context"
	"fmt"

	"coinpilot/internal/domain"
	"coinpilot/internal/ports"
)

// domDepth is the order book depth inspected by the depth-of-market filter.
const domDepth = 1000

// createTrade looks for a buyable pair and opens a position on the first one
// that passes signal evaluation and the admission filters. Returns whether a
// trade was opened.
func (e *Engine) createTrade(ctx context.Context, pairs []string, openTrades []*domain.Trade) (bool, error) {
	op := "CreateTrade"

	stakeAmount, err := e.cfg.Sizer.Stake(ctx, len(openTrades))
	if err != nil {
		return false, fmt.Errorf("%s failed: %w", op, err)
	}
	e.cfg.Logger.Info(ctx, op+": checking buy signals to create a new trade", map[string]interface{}{
		"stake_amount": stakeAmount, "stake_currency": e.cfg.StakeCurrency,
	})

	balance, err := e.cfg.Exchange.GetBalance(ctx, e.cfg.StakeCurrency)
	if err != nil {
		return false, fmt.Errorf("%s failed: %w", op, err)
	}
	if balance < stakeAmount {
		return false, fmt.Errorf("%s: %w (currency=%s)", op, ports.ErrInsufficientBalance, e.cfg.StakeCurrency)
	}

	// Pairs already holding a position are not bought again.
	held := make(map[string]bool, len(openTrades))
	for _, t := range openTrades {
		held[t.Pair] = true
	}
	candidates := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if held[pair] {
			e.cfg.Logger.Debug(ctx, op+": ignoring pair with open trade", map[string]interface{}{"pair": pair})
			continue
		}
		candidates = append(candidates, pair)
	}
	if len(candidates) == 0 {
		return false, fmt.Errorf("%s: %w", op, ports.ErrEmptyWhitelist)
	}

	interval := e.cfg.Strategy.TickerInterval()
	for _, pair := range candidates {
		buy, sell := e.cfg.Signals.GetSignal(ctx, pair, interval)
		if !buy || sell {
			continue
		}
		ok, err := e.admitBuy(ctx, pair)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		if err := e.executeBuy(ctx, pair, stakeAmount); err != nil {
			return false, err
		}
		return true, nil
	}

	e.cfg.Logger.Info(ctx, op+": found no buy signals for whitelisted currencies, trying again later")
	return false, nil
}

// admitBuy applies the optional market-condition filters that gate a buy
// signal before any order is placed.
func (e *Engine) admitBuy(ctx context.Context, pair string) (bool, error) {
	op := "AdmitBuy"

	if e.cfg.CheckDepthOfMarket && e.cfg.DOMBidsAsksDelta > 0 {
		book, err := e.cfg.Exchange.GetOrderBook(ctx, pair, domDepth)
		if err != nil {
			return false, fmt.Errorf("%s failed for %s: %w", op, pair, err)
		}
		bids, asks := book.BidVolume(), book.AskVolume()
		if asks == 0 {
			e.cfg.Logger.Info(ctx, op+": empty ask side, skipping pair", map[string]interface{}{"pair": pair})
			return false, nil
		}
		delta := bids / asks
		e.cfg.Logger.Info(ctx, op+": checked depth of market", map[string]interface{}{
			"pair": pair, "bids": bids, "asks": asks, "delta": delta,
		})
		if delta < e.cfg.DOMBidsAsksDelta {
			return false, nil
		}
	}

	if e.cfg.BuyPriceBelow24hHighLow {
		ticker, err := e.cfg.Exchange.GetTicker(ctx, pair)
		if err != nil {
			return false, fmt.Errorf("%s failed for %s: %w", op, pair, err)
		}
		// The ask must sit in the upper half of the daily range.
		mid := (ticker.High + ticker.Low) / 2
		if ticker.Ask <= mid {
			e.cfg.Logger.Info(ctx, op+": ask below 24h midpoint, skipping pair", map[string]interface{}{
				"pair": pair, "ask": ticker.Ask, "midpoint": mid,
			})
			return false, nil
		}
	}

	return true, nil
}

// executeBuy prices the entry, places a limit buy and persists the new trade.
func (e *Engine) executeBuy(ctx context.Context, pair string, stakeAmount float64) error {
	op := "ExecuteBuy"

	buyLimit, err := e.cfg.Targeter.BuyRate(ctx, pair)
	if err != nil {
		return err
	}
	if buyLimit <= 0 {
		return fmt.Errorf("%s: computed non-positive entry rate for %s: %w", op, pair, ports.ErrTemporary)
	}
	amount := stakeAmount / buyLimit

	// Charged on both legs of the round trip.
	fee, err := e.cfg.Exchange.GetFee(ctx, pair, ports.FeeMaker)
	if err != nil {
		return fmt.Errorf("%s failed for %s: %w", op, pair, err)
	}

	orderID, err := e.cfg.Exchange.Buy(ctx, pair, buyLimit, amount)
	if err != nil {
		return fmt.Errorf("%s failed for %s: %w", op, pair, err)
	}

	trade := &domain.Trade{
		BotID:             e.cfg.BotID,
		Exchange:          e.cfg.Exchange.Name(),
		Pair:              pair,
		IsOpen:            true,
		FeeOpen:           fee,
		FeeClose:          fee,
		OpenRate:          buyLimit,
		OpenRateRequested: buyLimit,
		StakeAmount:       stakeAmount,
		Amount:            amount,
		OpenDate:          e.now().UTC(),
		OpenOrderID:       &orderID,
	}
	id, err := e.cfg.Repo.Create(ctx, trade)
	if err != nil {
		return fmt.Errorf("%s failed for %s: %w", op, pair, err)
	}
	trade.ID = id

	e.cfg.Logger.Info(ctx, op+": buying pair", map[string]interface{}{
		"trade": trade.String(), "limit": buyLimit, "amount": amount, "stake_amount": stakeAmount,
	})
	e.cfg.Metrics.TradeOpened()

	message := fmt.Sprintf("*%s:* Buying %s with limit `%.8f (%.6f %s)`",
		e.cfg.Exchange.Name(), pair, buyLimit, stakeAmount, e.cfg.StakeCurrency)
	if e.cfg.FiatCurrency != "" {
		stakeFiat := e.cfg.Fiat.ConvertAmount(ctx, stakeAmount, e.cfg.StakeCurrency, e.cfg.FiatCurrency)
		message = fmt.Sprintf("*%s:* Buying %s with limit `%.8f (%.6f %s, %.3f %s)`",
			e.cfg.Exchange.Name(), pair, buyLimit, stakeAmount, e.cfg.StakeCurrency, stakeFiat, e.cfg.FiatCurrency)
	}
	e.cfg.Notifier.Send(ctx, message)
	return nil
}
