package ports

import (
	"context"
	"time"

	"coinpilot/internal/domain"
)

// Liquidity roles accepted by ExchangeClient.GetFee.
const (
	FeeMaker = "maker"
	FeeTaker = "taker"
)

// ExchangeClient defines the interface for interacting with a spot exchange.
// This abstraction allows decoupling the core bot logic from specific exchange
// implementations; adapters translate wire formats into domain types and
// classify failures into the error categories of this package.
type ExchangeClient interface {
	// Name returns the exchange identifier recorded on trades (e.g. "binance").
	Name() string

	// GetTicker retrieves the current best bid/ask, last price and 24h
	// high/low for a pair.
	GetTicker(ctx context.Context, pair string) (*domain.Ticker, error)

	// GetOrderBook retrieves up to depth levels of the order book for a pair,
	// best price first on both sides.
	GetOrderBook(ctx context.Context, pair string, depth int) (*domain.OrderBook, error)

	// GetTickers retrieves 24h rolling statistics for every market on the
	// exchange. Used to rank pairs by quote volume.
	GetTickers(ctx context.Context) ([]*domain.TickerStats, error)

	// GetMarkets retrieves the markets known to the exchange.
	GetMarkets(ctx context.Context) ([]*domain.Market, error)

	// GetKlines retrieves up to limit historical candles for a pair, oldest
	// first. The most recent candle may still be forming.
	GetKlines(ctx context.Context, pair, interval string, limit int) ([]*domain.Kline, error)

	// Buy places a limit buy order and returns the exchange-assigned order id.
	Buy(ctx context.Context, pair string, rate, amount float64) (string, error)

	// Sell places a limit sell order and returns the exchange-assigned order id.
	Sell(ctx context.Context, pair string, rate, amount float64) (string, error)

	// CancelOrder cancels an open order by its id.
	CancelOrder(ctx context.Context, orderID, pair string) error

	// GetOrder retrieves the current state of an order by its id.
	GetOrder(ctx context.Context, orderID, pair string) (*domain.Order, error)

	// GetTradesForOrder retrieves the fills belonging to an order, executed at
	// or after the given time.
	GetTradesForOrder(ctx context.Context, orderID, pair string, since time.Time) ([]*domain.Fill, error)

	// GetFee returns the fee fraction charged on an order of the given
	// liquidity role ("maker" or "taker").
	GetFee(ctx context.Context, pair, takerOrMaker string) (float64, error)

	// GetBalance retrieves the free balance for a currency (e.g. "BTC").
	GetBalance(ctx context.Context, currency string) (float64, error)

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// SetServerTime synchronizes the client's time with the server's time.
	SetServerTime(ctx context.Context) error
}
