package ports

import "context"

// Notifier pushes human-readable trade events to an operator channel.
// Delivery is fire-and-forget: implementations log failures and move on,
// a broken notification channel must never block or fail trading.
type Notifier interface {
	Send(ctx context.Context, text string)
}
