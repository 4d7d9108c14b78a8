package engine

import (
	"context"
	"fmt"
	"time"

	"coinpilot/internal/domain"
)

// sweepTimeouts cancels limit orders that sat unfilled past the configured
// age and restores the owning trades to a consistent state. Exchange errors
// on a single order are logged and skipped so one stuck pair cannot block
// the rest of the sweep.
func (e *Engine) sweepTimeouts(ctx context.Context) error {
	op := "SweepTimeouts"

	trades, err := e.cfg.Repo.FindWithOpenOrder(ctx, e.cfg.BotID)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	now := e.now()

	for _, trade := range trades {
		if !trade.HasOpenOrder() {
			continue
		}
		order, err := e.cfg.Exchange.GetOrder(ctx, *trade.OpenOrderID, trade.Pair)
		if err != nil {
			e.cfg.Logger.Info(ctx, op+": cannot query order, skipping trade", map[string]interface{}{
				"trade": trade.String(), "error": err.Error(),
			})
			continue
		}
		if order.Status != domain.OrderStatusOpen || order.Remaining == 0 {
			continue
		}

		age := now.Sub(order.Time)
		switch {
		case order.Side == domain.Buy && e.cfg.UnfilledTimeoutBuy > 0 && age > e.cfg.UnfilledTimeoutBuy:
			if err := e.handleTimedOutBuy(ctx, trade, order); err != nil {
				return err
			}
		case order.Side == domain.Sell && e.cfg.UnfilledTimeoutSell > 0 && age > e.cfg.UnfilledTimeoutSell:
			if err := e.handleTimedOutSell(ctx, trade, order); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleTimedOutBuy cancels a stale buy order. With nothing filled the trade
// is deleted outright; a partial fill becomes the position.
func (e *Engine) handleTimedOutBuy(ctx context.Context, trade *domain.Trade, order *domain.Order) error {
	op := "HandleTimedOutBuy"

	if err := e.cfg.Exchange.CancelOrder(ctx, order.ID, trade.Pair); err != nil {
		e.cfg.Logger.Warn(ctx, op+": cancel failed, leaving order for the next sweep", map[string]interface{}{
			"trade": trade.String(), "error": err.Error(),
		})
		return nil
	}
	e.cfg.Metrics.OrderTimedOut("buy")

	if order.Remaining == order.Amount {
		if err := e.cfg.Repo.Delete(ctx, trade.ID); err != nil {
			return fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
		}
		e.cfg.Logger.Info(ctx, op+": buy order timed out", map[string]interface{}{"trade": trade.String()})
		e.cfg.Notifier.Send(ctx, fmt.Sprintf("*Timeout:* Unfilled buy order for %s cancelled", trade.Pair))
		return nil
	}

	trade.Amount = order.Filled()
	trade.StakeAmount = trade.Amount * trade.OpenRate
	trade.OpenOrderID = nil
	if err := e.cfg.Repo.Update(ctx, trade); err != nil {
		return fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
	}
	e.cfg.Logger.Info(ctx, op+": partial buy order timed out", map[string]interface{}{"trade": trade.String()})
	e.cfg.Notifier.Send(ctx, fmt.Sprintf("*Timeout:* Remaining buy order for %s cancelled", trade.Pair))
	return nil
}

// handleTimedOutSell cancels a stale sell order and reverts the trade to an
// open position. After a partial fill the unsold remainder stays open with
// the stake shrunk accordingly.
func (e *Engine) handleTimedOutSell(ctx context.Context, trade *domain.Trade, order *domain.Order) error {
	op := "HandleTimedOutSell"

	if err := e.cfg.Exchange.CancelOrder(ctx, order.ID, trade.Pair); err != nil {
		e.cfg.Logger.Warn(ctx, op+": cancel failed, leaving order for the next sweep", map[string]interface{}{
			"trade": trade.String(), "error": err.Error(),
		})
		return nil
	}
	e.cfg.Metrics.OrderTimedOut("sell")

	partial := order.Remaining != order.Amount
	if partial {
		trade.Amount = order.Remaining
		trade.StakeAmount = trade.Amount * trade.OpenRate
	}
	trade.CloseRate = 0
	trade.CloseProfit = 0
	trade.CloseDate = time.Time{}
	trade.IsOpen = true
	trade.OpenOrderID = nil
	if err := e.cfg.Repo.Update(ctx, trade); err != nil {
		return fmt.Errorf("%s failed for %s: %w", op, trade.Pair, err)
	}

	if partial {
		e.cfg.Logger.Info(ctx, op+": partial sell order timed out, keeping remainder open", map[string]interface{}{
			"trade": trade.String(),
		})
		e.cfg.Notifier.Send(ctx, fmt.Sprintf("*Timeout:* Remaining sell order for %s cancelled", trade.Pair))
		return nil
	}
	e.cfg.Logger.Info(ctx, op+": sell order timed out", map[string]interface{}{"trade": trade.String()})
	e.cfg.Notifier.Send(ctx, fmt.Sprintf("*Timeout:* Unfilled sell order for %s cancelled", trade.Pair))
	return nil
}
