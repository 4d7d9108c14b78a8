package ports

import "context"

// FiatConverter converts crypto amounts into a fiat display currency for
// notifications. Returns 0 when no rate is available; display-only, so
// failures degrade silently instead of propagating.
type FiatConverter interface {
	ConvertAmount(ctx context.Context, amount float64, cryptoCurrency, fiatCurrency string) float64
}
