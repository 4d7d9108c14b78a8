package engine

import (
	"context"
	"fmt"
	"time"

	"coinpilot/internal/domain"
	"coinpilot/internal/ports"
)

// processOpenTrade reconciles an outstanding order against the exchange and,
// once the trade holds no pending order, evaluates the sell rules for it.
func (e *Engine) processOpenTrade(ctx context.Context, trade *domain.Trade) error {
	op := "ProcessOpenTrade"

	if trade.HasOpenOrder() {
		e.cfg.Logger.Info(ctx, op+": found pending order for trade", map[string]interface{}{
			"trade": trade.String(), "order_id": *trade.OpenOrderID,
		})
		order, err := e.cfg.Exchange.GetOrder(ctx, *trade.OpenOrderID, trade.Pair)
		if err != nil {
			return fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
		}

		realAmount, err := e.realAmount(ctx, trade, order)
		if err != nil {
			return err
		}
		if order.Amount != realAmount {
			order.Amount = realAmount
			// The fee was already taken out of the amount, don't charge it twice.
			trade.FeeOpen = 0
		}

		if err := trade.ApplyOrder(order); err != nil {
			return fmt.Errorf("%s failed for %s: %w: %w", op, trade.Pair, ports.ErrOperational, err)
		}
		if err := e.cfg.Repo.Update(ctx, trade); err != nil {
			return fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
		}
	}

	if trade.IsOpen && !trade.HasOpenOrder() {
		return e.handleTrade(ctx, trade)
	}
	return nil
}

// realAmount returns the base-currency amount actually acquired by order,
// accounting for exchanges that take the fee out of the bought asset. Runs
// only once per trade: a zeroed open fee marks the correction as applied.
func (e *Engine) realAmount(ctx context.Context, trade *domain.Trade, order *domain.Order) (float64, error) {
	op := "realAmount"

	if trade.FeeOpen == 0 || order.Status == domain.OrderStatusOpen {
		return order.Amount, nil
	}

	base := domain.PairBase(trade.Pair)
	if order.HasFee() && order.FeeCurrency == base {
		amount := order.Amount - order.FeeCost
		e.cfg.Logger.Info(ctx, op+": applying fee on amount from order", map[string]interface{}{
			"trade": trade.String(), "from": order.Amount, "to": amount,
		})
		return amount, nil
	}

	fills, err := e.cfg.Exchange.GetTradesForOrder(ctx, order.ID, trade.Pair, trade.OpenDate)
	if err != nil {
		return 0, fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
	}
	if len(fills) == 0 {
		e.cfg.Logger.Info(ctx, op+": no fills reported for order, keeping nominal amount", map[string]interface{}{
			"trade": trade.String(), "order_id": order.ID,
		})
		return order.Amount, nil
	}

	var amount, feeAbs float64
	for _, fill := range fills {
		amount += fill.Amount
		if fill.FeeCurrency == base {
			feeAbs += fill.FeeCost
		}
	}
	if amount != order.Amount {
		return 0, fmt.Errorf("%s: half bought? order %s fill amounts don't match (%v != %v): %w",
			op, order.ID, amount, order.Amount, ports.ErrOperational)
	}
	if feeAbs != 0 {
		e.cfg.Logger.Info(ctx, op+": applying fee on amount from fills", map[string]interface{}{
			"trade": trade.String(), "fee": feeAbs,
		})
	}
	return amount - feeAbs, nil
}

// handleTrade evaluates the sell rules for an open trade and places a sell
// order when one of them triggers. With book-order exits enabled the rules are
// re-evaluated against each configured ask level, taking the level's price as
// the candidate rate whenever it runs above the current one.
func (e *Engine) handleTrade(ctx context.Context, trade *domain.Trade) error {
	op := "HandleTrade"

	if !trade.IsOpen {
		return fmt.Errorf("%s: attempt to handle closed trade %s: %w", op, trade.String(), ports.ErrOperational)
	}
	e.cfg.Logger.Debug(ctx, op+": handling open trade", map[string]interface{}{"trade": trade.String()})

	ticker, err := e.cfg.Exchange.GetTicker(ctx, trade.Pair)
	if err != nil {
		return fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
	}
	sellRate := ticker.Bid

	buy, sell := false, false
	if e.cfg.UseSellSignal {
		buy, sell = e.cfg.Signals.GetSignal(ctx, trade.Pair, e.cfg.Strategy.TickerInterval())
	}

	if e.cfg.SellFullfilledAtROI {
		sellRate, err = e.cfg.Targeter.ROIRate(ctx, trade, e.cfg.Strategy.MinimalROI(), sellRate, e.now())
		if err != nil {
			return fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
		}
	}

	// The decision walk may move the stoploss without selling; keep such
	// ratchet movements durable.
	stopBefore := trade.StopLoss

	sold := false
	if e.cfg.SellUseBookOrder {
		sold, err = e.checkSellBook(ctx, trade, sellRate, buy, sell)
	} else {
		sold, err = e.checkSell(ctx, trade, sellRate, buy, sell)
	}
	if err != nil {
		return err
	}

	if !sold {
		if trade.StopLoss != stopBefore {
			if err := e.cfg.Repo.Update(ctx, trade); err != nil {
				return fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
			}
		}
		e.cfg.Logger.Debug(ctx, op+": found no sell signal, trying again later", map[string]interface{}{
			"pair": trade.Pair,
		})
	}
	return nil
}

// checkSellBook walks the configured ask levels of the order book and runs the
// sell rules at each, adopting a level's price as the candidate rate when it
// exceeds the running one. The first triggering level wins. A book too shallow
// for the configured range degrades to a single evaluation at the base rate so
// the stoploss check never skips a tick.
func (e *Engine) checkSellBook(ctx context.Context, trade *domain.Trade, sellRate float64, buy, sell bool) (bool, error) {
	op := "CheckSellBook"

	e.cfg.Logger.Info(ctx, op+": using order book for exit pricing", map[string]interface{}{
		"pair": trade.Pair, "min": e.cfg.SellBookOrderMin, "max": e.cfg.SellBookOrderMax,
	})
	book, err := e.cfg.Exchange.GetOrderBook(ctx, trade.Pair, e.cfg.SellBookOrderMax)
	if err != nil {
		return false, fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
	}
	if len(book.Asks) < e.cfg.SellBookOrderMin {
		e.cfg.Logger.Warn(ctx, op+": order book too shallow, falling back to ticker rate", map[string]interface{}{
			"pair": trade.Pair, "asks": len(book.Asks),
		})
		return e.checkSell(ctx, trade, sellRate, buy, sell)
	}

	rate := sellRate
	for level := e.cfg.SellBookOrderMin; level <= e.cfg.SellBookOrderMax && level <= len(book.Asks); level++ {
		if askRate := book.Asks[level-1].Price; askRate > rate {
			rate = askRate
		}
		sold, err := e.checkSell(ctx, trade, rate, buy, sell)
		if err != nil || sold {
			return sold, err
		}
	}
	return false, nil
}

// checkSell runs the sell rules once at the given rate and executes the sell
// when one triggers.
func (e *Engine) checkSell(ctx context.Context, trade *domain.Trade, rate float64, buy, sell bool) (bool, error) {
	reason := e.shouldSell(ctx, trade, rate, e.now(), buy, sell)
	if reason == "" {
		return false, nil
	}
	if err := e.executeSell(ctx, trade, rate, reason); err != nil {
		return false, err
	}
	return true, nil
}

// shouldSell decides whether the trade should be exited at the given rate.
// Returns the triggering rule, or empty to hold. Rule order matters: the
// stoploss and ROI checks run first and are never bypassed, the profit-only
// gate applies only to signal-based exits.
func (e *Engine) shouldSell(ctx context.Context, trade *domain.Trade, rate float64, now time.Time, buy, sell bool) domain.SellReason {
	if reason := e.minROIReached(ctx, trade, rate, now); reason != "" {
		return reason
	}
	if e.cfg.SellProfitOnly && trade.Profit(rate) <= 0 {
		return ""
	}
	if sell && !buy && e.cfg.UseSellSignal {
		return domain.SellReasonSellSignal
	}
	return ""
}

// minROIReached checks the stoploss and the time-based ROI table. As a side
// effect it initializes the stoploss on first evaluation and, with trailing
// enabled, ratchets it behind a rising rate.
func (e *Engine) minROIReached(ctx context.Context, trade *domain.Trade, currentRate float64, now time.Time) domain.SellReason {
	currentProfit := trade.ProfitPercent(currentRate)

	if trade.StopLoss == 0 {
		trade.AdjustStopLoss(trade.OpenRate, e.cfg.Strategy.Stoploss())
	}

	if trade.StopLoss >= currentRate {
		e.cfg.Logger.Info(ctx, "Stop loss hit.", map[string]interface{}{
			"pair": trade.Pair, "stop_loss": trade.StopLoss, "rate": currentRate,
		})
		return domain.SellReasonStopLoss
	}

	if e.cfg.TrailingStop {
		stoplossValue := e.cfg.Strategy.Stoploss()
		// Once in profit, trail with the tighter positive offset.
		if e.cfg.TrailingStopPositive != 0 && currentProfit > 0 {
			stoplossValue = e.cfg.TrailingStopPositive
		}
		trade.AdjustStopLoss(currentRate, stoplossValue)
	}

	elapsed := trade.DurationSince(now).Minutes()
	for _, entry := range e.cfg.Strategy.MinimalROI() {
		if elapsed <= float64(entry.Minutes) {
			return ""
		}
		if currentProfit > entry.Threshold {
			return domain.SellReasonROI
		}
	}
	return ""
}

// executeSell places a limit sell for the trade's full amount, records the
// pending order on the trade and notifies the operator channel.
func (e *Engine) executeSell(ctx context.Context, trade *domain.Trade, limit float64, reason domain.SellReason) error {
	op := "ExecuteSell"

	orderID, err := e.cfg.Exchange.Sell(ctx, trade.Pair, limit, trade.Amount)
	if err != nil {
		return fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
	}
	trade.OpenOrderID = &orderID
	trade.CloseRateRequested = limit

	if err := e.cfg.Repo.Update(ctx, trade); err != nil {
		return fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
	}

	profit := trade.Profit(limit)
	profitPct := trade.ProfitPercent(limit)
	e.cfg.Logger.Info(ctx, op+": selling trade", map[string]interface{}{
		"trade": trade.String(), "limit": limit, "reason": string(reason), "profit_percent": profitPct,
	})
	e.cfg.Metrics.TradeClosed(string(reason))

	// Best effort: quote the live bid next to the limit in the notification.
	currentRate := limit
	if ticker, err := e.cfg.Exchange.GetTicker(ctx, trade.Pair); err == nil {
		currentRate = ticker.Bid
	}

	message := fmt.Sprintf("*%s:* Selling %s\n*Limit:* `%.8f`\n*Amount:* `%.8f`\n"+
		"*Open Rate:* `%.8f`\n*Current Rate:* `%.8f`\n*Profit:* `%.2f%%`",
		e.cfg.Exchange.Name(), trade.Pair, limit, trade.Amount, trade.OpenRate, currentRate, profitPct*100)
	if e.cfg.FiatCurrency != "" {
		gain := "profit"
		if profitPct <= 0 {
			gain = "loss"
		}
		profitFiat := e.cfg.Fiat.ConvertAmount(ctx, profit, e.cfg.StakeCurrency, e.cfg.FiatCurrency)
		message += fmt.Sprintf("` (%s: %.2f%%, %.8f %s / %.3f %s)`",
			gain, profitPct*100, profit, e.cfg.StakeCurrency, profitFiat, e.cfg.FiatCurrency)
	}
	e.cfg.Notifier.Send(ctx, message)
	return nil
}
