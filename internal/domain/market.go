package domain

// Ticker holds the current top-of-book and last-trade prices for a pair.
type Ticker struct {
	Ask  float64 // Best ask price
	Bid  float64 // Best bid price
	Last float64 // Last trade price
	High float64 // 24h high
	Low  float64 // 24h low
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook holds order book depth for a pair, both sides sorted best-first.
type OrderBook struct {
	Bids []BookLevel
	Asks []BookLevel
}

// BidVolume returns the summed size of all bid levels.
func (b *OrderBook) BidVolume() float64 {
	var sum float64
	for _, l := range b.Bids {
		sum += l.Size
	}
	return sum
}

// AskVolume returns the summed size of all ask levels.
func (b *OrderBook) AskVolume() float64 {
	var sum float64
	for _, l := range b.Asks {
		sum += l.Size
	}
	return sum
}

// Market describes one tradable pair as reported by the exchange.
type Market struct {
	Symbol string // Pair in BASE/QUOTE form
	Quote  string // Quote currency
	Active bool   // Whether the market is currently tradable
}

// TickerStats holds the 24h statistics used for volume-ranked pair selection.
type TickerStats struct {
	Symbol      string  // Pair in BASE/QUOTE form
	QuoteVolume float64 // 24h traded volume in quote currency
}
