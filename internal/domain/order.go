package domain

import "time"

// Order is the read-only view of an exchange order. It is consumed by the
// decision engine, never owned or mutated.
type Order struct {
	ID          string      // Exchange order id
	Pair        string      // Trading pair the order belongs to
	Side        OrderSide   // BUY or SELL
	Status      OrderStatus // open, closed, canceled or expired
	Price       float64     // Limit price (0 when the exchange reports none)
	Amount      float64     // Requested amount in base currency
	Remaining   float64     // Unfilled amount in base currency
	FeeCurrency string      // Currency the fee was charged in ("" if not reported)
	FeeCost     float64     // Fee amount in FeeCurrency
	Time        time.Time   // When the order was placed
}

// Filled returns the executed amount in base currency.
func (o *Order) Filled() float64 {
	return o.Amount - o.Remaining
}

// HasFee reports whether the exchange attributed a fee to the order itself.
func (o *Order) HasFee() bool {
	return o.FeeCurrency != ""
}

// Fill is one execution under an order, as reported by the exchange trade
// history. Used as a fallback when the order carries no fee attribution.
type Fill struct {
	OrderID     string    // Order this execution belongs to
	Amount      float64   // Executed amount in base currency
	FeeCurrency string    // Currency the fee was charged in ("" if not reported)
	FeeCost     float64   // Fee amount in FeeCurrency
	Time        time.Time // Execution time
}
