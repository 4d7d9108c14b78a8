package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents one position owned by the bot, from the moment a buy order
// is placed until the closing sell order fully fills.
type Trade struct {
	ID                 int64     // Unique identifier (from DB)
	BotID              int       // Identifier of the owning bot instance
	Exchange           string    // Exchange the trade lives on
	Pair               string    // Trading pair in BASE/QUOTE form (e.g., "ETH/BTC")
	IsOpen             bool      // True from creation until the sell order fully fills
	FeeOpen            float64   // Fee fraction charged on entry (0 once settled in base currency)
	FeeClose           float64   // Fee fraction charged on exit
	OpenRate           float64   // Actual entry price
	OpenRateRequested  float64   // Entry price sent with the buy order
	CloseRate          float64   // Actual exit price (0 while open)
	CloseRateRequested float64   // Exit price sent with the sell order
	CloseProfit        float64   // Realized profit fraction (set on close)
	StakeAmount        float64   // Quote currency committed at entry
	Amount             float64   // Position size in base currency
	OpenDate           time.Time // When the trade was created
	CloseDate          time.Time // When the sell order filled (zero while open)
	OpenOrderID        *string   // Outstanding exchange order id (nil when no order is pending)
	StopLoss           float64   // Current stop-loss price (0 before the first evaluation)
	InitialStopLoss    float64   // First stop-loss price ever set (never loosened)
}

// HasOpenOrder reports whether an exchange order is still outstanding for this trade.
func (t *Trade) HasOpenOrder() bool {
	return t.OpenOrderID != nil && *t.OpenOrderID != ""
}

// DurationSince returns how long the position has been open as of now.
func (t *Trade) DurationSince(now time.Time) time.Duration {
	return now.Sub(t.OpenDate)
}

// String is used in log lines; keeps the identifying fields in one place.
func (t *Trade) String() string {
	return fmt.Sprintf("Trade(id=%d, pair=%s, amount=%.8f, open_rate=%.8f, open_since=%s)",
		t.ID, t.Pair, t.Amount, t.OpenRate, t.OpenDate.UTC().Format("2006-01-02 15:04:05"))
}

// OpenCost returns the quote currency spent on entry, opening fee included.
func (t *Trade) OpenCost() float64 {
	buyTrade := decimal.NewFromFloat(t.Amount).Mul(decimal.NewFromFloat(t.OpenRate))
	fees := buyTrade.Mul(decimal.NewFromFloat(t.FeeOpen))
	cost, _ := buyTrade.Add(fees).Float64()
	return cost
}

// CloseCostAt returns the quote currency received when exiting at rate, net of
// the closing fee.
func (t *Trade) CloseCostAt(rate float64) float64 {
	sellTrade := decimal.NewFromFloat(t.Amount).Mul(decimal.NewFromFloat(rate))
	fees := sellTrade.Mul(decimal.NewFromFloat(t.FeeClose))
	cost, _ := sellTrade.Sub(fees).Float64()
	return cost
}

// Profit returns the absolute profit in quote currency for an exit at rate,
// rounded to 8 decimals.
func (t *Trade) Profit(rate float64) float64 {
	open := decimal.NewFromFloat(t.OpenCost())
	close := decimal.NewFromFloat(t.CloseCostAt(rate))
	profit, _ := close.Sub(open).Round(8).Float64()
	return profit
}

// ProfitPercent returns the fee-adjusted profit fraction for an exit at rate,
// rounded to 8 decimals.
func (t *Trade) ProfitPercent(rate float64) float64 {
	open := decimal.NewFromFloat(t.OpenCost())
	if open.IsZero() {
		return 0
	}
	close := decimal.NewFromFloat(t.CloseCostAt(rate))
	pct, _ := close.Div(open).Sub(decimal.NewFromInt(1)).Round(8).Float64()
	return pct
}

// AdjustStopLoss sets or raises the stop-loss price derived from basePrice and
// the stoploss fraction. On first use it also records the initial stop-loss.
// Once set, the stop-loss only ever moves up.
func (t *Trade) AdjustStopLoss(basePrice, stoploss float64) {
	if stoploss < 0 {
		stoploss = -stoploss
	}
	newLoss := basePrice * (1 - stoploss)
	if t.StopLoss == 0 {
		t.StopLoss = newLoss
		t.InitialStopLoss = newLoss
		return
	}
	if newLoss > t.StopLoss {
		t.StopLoss = newLoss
	}
}

// ApplyOrder folds a fetched order into the trade. A closed buy adopts the
// fill price and amount and releases the order linkage; a closed sell closes
// the trade. Orders that are still open, cancelled, or carry no price are
// ignored (the timeout sweep owns cancellation effects).
func (t *Trade) ApplyOrder(order *Order) error {
	if order.Status != OrderStatusClosed || order.Price == 0 {
		return nil
	}
	switch order.Side {
	case Buy:
		t.OpenRate = order.Price
		t.Amount = order.Amount
		t.OpenOrderID = nil
	case Sell:
		t.close(order.Price)
	default:
		return fmt.Errorf("unknown order side: %s", order.Side)
	}
	return nil
}

// close finalizes the trade at rate.
func (t *Trade) close(rate float64) {
	t.CloseRate = rate
	t.CloseProfit = t.ProfitPercent(rate)
	t.CloseDate = time.Now().UTC()
	t.IsOpen = false
	t.OpenOrderID = nil
}
