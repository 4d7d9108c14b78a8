// Package dryrun wraps a live exchange client so the bot can trade with
// simulated money. Market data passes through to the real exchange, orders
// never leave the process: every limit order fills immediately and in full.
package dryrun

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coinpilot/internal/domain"
	"coinpilot/internal/ports"

	"github.com/google/uuid"
)

const (
	// DefaultWallet is the simulated free balance reported for any currency.
	DefaultWallet = 999.9

	// DefaultFee is the simulated fee fraction, matching the standard
	// Binance spot commission of 0.1%.
	DefaultFee = 0.001
)

// Exchange implements ports.ExchangeClient with simulated order execution.
type Exchange struct {
	live   ports.ExchangeClient
	logger ports.Logger
	wallet float64
	fee    float64

	mu     sync.Mutex
	orders map[string]*domain.Order
}

// Config holds configuration for the dry-run wrapper.
type Config struct {
	Live   ports.ExchangeClient // Real client used for market data
	Logger ports.Logger
	Wallet float64 // Simulated free balance, defaults to DefaultWallet
	Fee    float64 // Simulated fee fraction, defaults to DefaultFee
}

// New creates a dry-run exchange around a live market data client.
func New(cfg Config) (*Exchange, error) {
	if cfg.Live == nil {
		return nil, fmt.Errorf("live exchange client is required for dry-run exchange")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for dry-run exchange")
	}
	wallet := cfg.Wallet
	if wallet <= 0 {
		wallet = DefaultWallet
	}
	fee := cfg.Fee
	if fee <= 0 {
		fee = DefaultFee
	}
	return &Exchange{
		live:   cfg.Live,
		logger: cfg.Logger,
		wallet: wallet,
		fee:    fee,
		orders: make(map[string]*domain.Order),
	}, nil
}

// Name returns the wrapped exchange's identifier, trades should still be
// recorded against the real market they were priced on.
func (e *Exchange) Name() string {
	return e.live.Name()
}

func (e *Exchange) GetTicker(ctx context.Context, pair string) (*domain.Ticker, error) {
	return e.live.GetTicker(ctx, pair)
}

func (e *Exchange) GetOrderBook(ctx context.Context, pair string, depth int) (*domain.OrderBook, error) {
	return e.live.GetOrderBook(ctx, pair, depth)
}

func (e *Exchange) GetTickers(ctx context.Context) ([]*domain.TickerStats, error) {
	return e.live.GetTickers(ctx)
}

func (e *Exchange) GetMarkets(ctx context.Context) ([]*domain.Market, error) {
	return e.live.GetMarkets(ctx)
}

func (e *Exchange) GetKlines(ctx context.Context, pair, interval string, limit int) ([]*domain.Kline, error) {
	return e.live.GetKlines(ctx, pair, interval, limit)
}

func (e *Exchange) Ping(ctx context.Context) error {
	return e.live.Ping(ctx)
}

func (e *Exchange) SetServerTime(ctx context.Context) error {
	return e.live.SetServerTime(ctx)
}

// Buy records a simulated buy order that filled immediately at the limit.
func (e *Exchange) Buy(ctx context.Context, pair string, rate, amount float64) (string, error) {
	return e.placeOrder(ctx, "dry_run_buy_", domain.Buy, pair, rate, amount)
}

// Sell records a simulated sell order that filled immediately at the limit.
func (e *Exchange) Sell(ctx context.Context, pair string, rate, amount float64) (string, error) {
	return e.placeOrder(ctx, "dry_run_sell_", domain.Sell, pair, rate, amount)
}

func (e *Exchange) placeOrder(ctx context.Context, prefix string, side domain.OrderSide, pair string, rate, amount float64) (string, error) {
	id := prefix + uuid.NewString()
	order := &domain.Order{
		ID:        id,
		Pair:      pair,
		Side:      side,
		Status:    domain.OrderStatusClosed,
		Price:     rate,
		Amount:    amount,
		Remaining: 0,
		Time:      time.Now().UTC(),
	}

	e.mu.Lock()
	e.orders[id] = order
	e.mu.Unlock()

	e.logger.Info(ctx, "Simulated order filled", map[string]interface{}{
		"side": string(side), "pair": pair, "rate": rate, "amount": amount, "orderID": id,
	})
	return id, nil
}

// CancelOrder is a no-op, simulated orders are never resting on a book.
func (e *Exchange) CancelOrder(ctx context.Context, orderID, pair string) error {
	return nil
}

// GetOrder returns a copy of a simulated order.
func (e *Exchange) GetOrder(ctx context.Context, orderID, pair string) (*domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, ok := e.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("no simulated order %s for %s: %w", orderID, pair, ports.ErrOrderNotFound)
	}
	cp := *order
	return &cp, nil
}

// GetTradesForOrder returns no fills, simulated orders carry no fee
// attribution to reconcile.
func (e *Exchange) GetTradesForOrder(ctx context.Context, orderID, pair string, since time.Time) ([]*domain.Fill, error) {
	return []*domain.Fill{}, nil
}

// GetFee returns the simulated fee fraction regardless of liquidity role.
func (e *Exchange) GetFee(ctx context.Context, pair, takerOrMaker string) (float64, error) {
	return e.fee, nil
}

// GetBalance reports the configured wallet for any currency, the simulation
// never runs out of money.
func (e *Exchange) GetBalance(ctx context.Context, currency string) (float64, error) {
	return e.wallet, nil
}
