package ports

import (
	"context"

	"coinpilot/internal/domain"
)

// TradeRepository defines the interface for storing and retrieving trades.
// Trades are partitioned by bot id so several bot instances can share one
// database file.
type TradeRepository interface {
	// Create saves a new trade and returns its assigned ID.
	Create(ctx context.Context, trade *domain.Trade) (int64, error)
	// Update modifies an existing trade.
	Update(ctx context.Context, trade *domain.Trade) error
	// Delete removes a trade. Used when a buy order is cancelled without any
	// fill, leaving nothing to track.
	Delete(ctx context.Context, id int64) error
	// FindByID retrieves a trade by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id int64) (*domain.Trade, error)
	// FindOpen retrieves the open trades belonging to a bot, oldest first.
	FindOpen(ctx context.Context, botID int) ([]*domain.Trade, error)
	// FindWithOpenOrder retrieves the open trades of a bot that still have an
	// unresolved exchange order attached.
	FindWithOpenOrder(ctx context.Context, botID int) ([]*domain.Trade, error)
	// FindAll retrieves every trade of a bot, open and closed, oldest first.
	FindAll(ctx context.Context, botID int) ([]*domain.Trade, error)
}
