package ports

import (
	"errors"
	"fmt"
)

// Error categories. The control loop reacts to the category rather than the
// concrete failure: dependency errors are logged and the cycle moves on,
// temporary errors pause polling for the retry delay, operational errors
// stop the bot until an operator intervenes.
var (
	// ErrDependency marks a precondition that is not met right now, such as
	// insufficient balance or an empty whitelist. Safe to retry on the next
	// cycle without operator action.
	ErrDependency = errors.New("dependency not fulfilled")

	// ErrTemporary marks a transient infrastructure failure (network error,
	// rate limit, exchange 5xx). The loop backs off before retrying.
	ErrTemporary = errors.New("temporary failure")

	// ErrOperational marks a failure that needs a human: bad credentials,
	// rejected requests, inconsistent persisted state.
	ErrOperational = errors.New("operational failure")
)

// Concrete failures. Each wraps its category so callers can match either the
// specific sentinel or the broad class with errors.Is.
// Adapters should wrap underlying infrastructure errors with these.
var (
	// Trading preconditions
	ErrInsufficientBalance = fmt.Errorf("stake amount is not fulfilled: %w", ErrDependency)
	ErrEmptyWhitelist      = fmt.Errorf("no currency pairs in whitelist: %w", ErrDependency)
	ErrInsufficientFunds   = fmt.Errorf("insufficient funds for order: %w", ErrDependency)

	// Exchange connectivity
	ErrExchangeUnavailable = fmt.Errorf("exchange API is unavailable: %w", ErrTemporary)
	ErrConnectionFailed    = fmt.Errorf("failed to connect to the exchange: %w", ErrTemporary)
	ErrRateLimited         = fmt.Errorf("API rate limit exceeded: %w", ErrTemporary)
	ErrTimeout             = fmt.Errorf("operation timed out: %w", ErrTemporary)

	// Exchange rejections
	ErrAuthenticationFailed = fmt.Errorf("exchange authentication failed (check API keys): %w", ErrOperational)
	ErrInvalidRequest       = fmt.Errorf("invalid request parameters or format: %w", ErrOperational)
	ErrOrderNotFound        = fmt.Errorf("order not found on the exchange: %w", ErrOperational)
	ErrOrderPlacementFailed = fmt.Errorf("failed to place order: %w", ErrOperational)
	ErrOrderCancelFailed    = fmt.Errorf("failed to cancel order: %w", ErrTemporary)

	// Database
	ErrNotFound       = fmt.Errorf("record not found: %w", ErrOperational)
	ErrDuplicateEntry = fmt.Errorf("database record already exists: %w", ErrOperational)
	ErrDBConnection   = fmt.Errorf("database connection error: %w", ErrOperational)
	ErrQueryFailed    = fmt.Errorf("database query failed: %w", ErrOperational)
	ErrUpdateFailed   = fmt.Errorf("database update failed: %w", ErrOperational)
	ErrDeleteFailed   = fmt.Errorf("database delete failed: %w", ErrOperational)

	// Configuration
	ErrConfigurationError = fmt.Errorf("invalid or missing configuration: %w", ErrOperational)
)
