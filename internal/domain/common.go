package domain

import "strings"

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderStatus represents the lifecycle state of an exchange order.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusClosed   OrderStatus = "closed"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusExpired  OrderStatus = "expired"
)

// SellReason indicates which rule triggered a sell decision.
type SellReason string

const (
	SellReasonROI        SellReason = "roi"
	SellReasonStopLoss   SellReason = "stop_loss"
	SellReasonSellSignal SellReason = "sell_signal"
)

// State represents the bot's run state. It is owned by the control loop and
// handed to collaborators by reference, never read from a package global.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// ROIEntry is one row of the minimal-ROI table: after Minutes have elapsed, a
// profit above Threshold allows an exit. Entries are kept in definition order;
// the table is walked top to bottom, not sorted.
type ROIEntry struct {
	Minutes   int     // Elapsed-minutes threshold
	Threshold float64 // Required profit fraction
}

// TickerIntervalMinutes maps supported candle intervals to their minute span.
var TickerIntervalMinutes = map[string]int{
	"1m":  1,
	"5m":  5,
	"15m": 15,
	"30m": 30,
	"1h":  60,
	"4h":  240,
	"1d":  1440,
}

// PairBase returns the base currency of a BASE/QUOTE pair ("ETH" for "ETH/BTC").
func PairBase(pair string) string {
	if i := strings.Index(pair, "/"); i >= 0 {
		return pair[:i]
	}
	return pair
}

// PairQuote returns the quote currency of a BASE/QUOTE pair ("BTC" for "ETH/BTC").
func PairQuote(pair string) string {
	if i := strings.Index(pair, "/"); i >= 0 {
		return pair[i+1:]
	}
	return ""
}
