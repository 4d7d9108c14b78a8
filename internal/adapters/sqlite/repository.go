package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"coinpilot/internal/domain"
	"coinpilot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository using SQLite. One database file
// can be shared by several bot instances, trades are partitioned by bot id.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (and if necessary creates) the trade database.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/tradesv3.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally, the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates the trades table if it doesn't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bot_id INTEGER NOT NULL,
		exchange TEXT NOT NULL,
		pair TEXT NOT NULL,
		is_open INTEGER NOT NULL DEFAULT 1,
		fee_open REAL NOT NULL DEFAULT 0,
		fee_close REAL NOT NULL DEFAULT 0,
		open_rate REAL NOT NULL,
		open_rate_requested REAL NOT NULL,
		close_rate REAL DEFAULT NULL,
		close_rate_requested REAL DEFAULT NULL,
		close_profit REAL DEFAULT NULL,
		stake_amount REAL NOT NULL,
		amount REAL NOT NULL,
		open_date TIMESTAMP NOT NULL,
		close_date TIMESTAMP DEFAULT NULL,
		open_order_id TEXT DEFAULT NULL,
		stop_loss REAL NOT NULL DEFAULT 0,
		initial_stop_loss REAL NOT NULL DEFAULT 0
	);
	-- Add indexes for the per-cycle lookups
	CREATE INDEX IF NOT EXISTS idx_trades_bot_open ON trades (bot_id, is_open);
	CREATE INDEX IF NOT EXISTS idx_trades_pair_open_date ON trades (pair, open_date);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// Create saves a new trade and returns its assigned ID. The close-side
// columns stay NULL until the trade is updated on its way out.
func (r *Repository) Create(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (bot_id, exchange, pair, is_open, fee_open, fee_close,
	                    open_rate, open_rate_requested, stake_amount, amount,
	                    open_date, open_order_id, stop_loss, initial_stop_loss)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.BotID, trade.Exchange, trade.Pair, trade.IsOpen, trade.FeeOpen, trade.FeeClose,
		trade.OpenRate, trade.OpenRateRequested, trade.StakeAmount, trade.Amount,
		trade.OpenDate, nullOrderID(trade.OpenOrderID), trade.StopLoss, trade.InitialStopLoss)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for pair %s: %w: %w", trade.Pair, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w: %w", trade.Pair, ports.ErrQueryFailed, err)
	}
	trade.ID = id // Update the domain object with the ID
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "pair": trade.Pair})
	return id, nil
}

// Update modifies an existing trade based on its ID. The identifying columns
// (bot_id, exchange, pair) never change.
func (r *Repository) Update(ctx context.Context, trade *domain.Trade) error {
	const query = `
	UPDATE trades
	SET is_open = ?, fee_open = ?, fee_close = ?, open_rate = ?, open_rate_requested = ?,
	    close_rate = ?, close_rate_requested = ?, close_profit = ?, stake_amount = ?,
	    amount = ?, open_date = ?, close_date = ?, open_order_id = ?,
	    stop_loss = ?, initial_stop_loss = ?
	WHERE id = ?`

	var closeDate sql.NullTime
	if !trade.CloseDate.IsZero() {
		closeDate = sql.NullTime{Time: trade.CloseDate, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		trade.IsOpen, trade.FeeOpen, trade.FeeClose, trade.OpenRate, trade.OpenRateRequested,
		trade.CloseRate, trade.CloseRateRequested, trade.CloseProfit, trade.StakeAmount,
		trade.Amount, trade.OpenDate, closeDate, nullOrderID(trade.OpenOrderID),
		trade.StopLoss, trade.InitialStopLoss,
		trade.ID)
	if err != nil {
		return fmt.Errorf("failed to update trade ID %d: %w: %w", trade.ID, ports.ErrUpdateFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update trade ID %d: %w: %w", trade.ID, ports.ErrUpdateFailed, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade ID %d not found for update: %w", trade.ID, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Trade updated", map[string]interface{}{"tradeID": trade.ID, "pair": trade.Pair, "isOpen": trade.IsOpen})
	return nil
}

// Delete removes a trade. Used when a buy order is cancelled without a fill.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM trades WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete trade ID %d: %w: %w", id, ports.ErrDeleteFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for delete trade ID %d: %w: %w", id, ports.ErrDeleteFailed, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade ID %d not found for delete: %w", id, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Trade deleted", map[string]interface{}{"tradeID": id})
	return nil
}

// FindByID retrieves a trade by its unique ID.
func (r *Repository) FindByID(ctx context.Context, id int64) (*domain.Trade, error) {
	const query = `
	SELECT id, bot_id, exchange, pair, is_open, fee_open, fee_close,
	       open_rate, open_rate_requested, COALESCE(close_rate, 0),
	       COALESCE(close_rate_requested, 0), COALESCE(close_profit, 0),
	       stake_amount, amount, open_date, close_date, open_order_id,
	       stop_loss, initial_stop_loss
	FROM trades
	WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Trade not found by ID", map[string]interface{}{"tradeID": id})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query trade by ID %d: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return trade, nil
}

// FindOpen retrieves the open trades belonging to a bot, oldest first.
func (r *Repository) FindOpen(ctx context.Context, botID int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, bot_id, exchange, pair, is_open, fee_open, fee_close,
	       open_rate, open_rate_requested, COALESCE(close_rate, 0),
	       COALESCE(close_rate_requested, 0), COALESCE(close_profit, 0),
	       stake_amount, amount, open_date, close_date, open_order_id,
	       stop_loss, initial_stop_loss
	FROM trades
	WHERE bot_id = ? AND is_open = 1
	ORDER BY open_date ASC, id ASC`

	return r.queryTrades(ctx, query, botID)
}

// FindWithOpenOrder retrieves the open trades of a bot that still have an
// unresolved exchange order attached.
func (r *Repository) FindWithOpenOrder(ctx context.Context, botID int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, bot_id, exchange, pair, is_open, fee_open, fee_close,
	       open_rate, open_rate_requested, COALESCE(close_rate, 0),
	       COALESCE(close_rate_requested, 0), COALESCE(close_profit, 0),
	       stake_amount, amount, open_date, close_date, open_order_id,
	       stop_loss, initial_stop_loss
	FROM trades
	WHERE bot_id = ? AND is_open = 1 AND open_order_id IS NOT NULL AND open_order_id != ''
	ORDER BY open_date ASC, id ASC`

	return r.queryTrades(ctx, query, botID)
}

// FindAll retrieves every trade of a bot, open and closed, oldest first.
func (r *Repository) FindAll(ctx context.Context, botID int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, bot_id, exchange, pair, is_open, fee_open, fee_close,
	       open_rate, open_rate_requested, COALESCE(close_rate, 0),
	       COALESCE(close_rate_requested, 0), COALESCE(close_profit, 0),
	       stake_amount, amount, open_date, close_date, open_order_id,
	       stop_loss, initial_stop_loss
	FROM trades
	WHERE bot_id = ?
	ORDER BY open_date ASC, id ASC`

	return r.queryTrades(ctx, query, botID)
}

// queryTrades runs a multi-row trade query and scans the result set.
func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w: %w", ports.ErrQueryFailed, err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return trades, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var closeDate sql.NullTime
	var orderID sql.NullString
	err := s.Scan(
		&t.ID, &t.BotID, &t.Exchange, &t.Pair, &t.IsOpen, &t.FeeOpen, &t.FeeClose,
		&t.OpenRate, &t.OpenRateRequested, &t.CloseRate, &t.CloseRateRequested, &t.CloseProfit,
		&t.StakeAmount, &t.Amount, &t.OpenDate, &closeDate, &orderID,
		&t.StopLoss, &t.InitialStopLoss)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if closeDate.Valid {
		t.CloseDate = closeDate.Time
	}
	if orderID.Valid && orderID.String != "" {
		t.OpenOrderID = &orderID.String
	}
	return t, nil
}

// nullOrderID maps the optional order id onto its nullable column.
func nullOrderID(id *string) sql.NullString {
	if id == nil || *id == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *id, Valid: true}
}
