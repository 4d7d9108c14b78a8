package ports

import "context"

// SignalProvider evaluates the strategy's buy/sell advice for a pair.
// Implementations own data freshness: stale, missing or unparsable candle
// history yields (false, false) rather than an error, so a flaky feed can
// never trip the trading loop.
type SignalProvider interface {
	GetSignal(ctx context.Context, pair, interval string) (buy, sell bool)
}
