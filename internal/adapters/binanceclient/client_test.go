package binanceclient

import (
	"testing"
	"time"

	"coinpilot/internal/domain"
	"coinpilot/internal/ports"

	binance "github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSymbol(t *testing.T) {
	assert.Equal(t, "ETHBTC", toSymbol("ETH/BTC"))
	assert.Equal(t, "BTCUSDT", toSymbol("BTC/USDT"))
	assert.Equal(t, "ETHBTC", toSymbol("ETHBTC"))
}

func TestParseOrderID(t *testing.T) {
	id, err := parseOrderID("987654321")
	require.NoError(t, err)
	assert.Equal(t, int64(987654321), id)

	_, err = parseOrderID("not-an-id")
	require.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestTranslateStatus(t *testing.T) {
	tests := []struct {
		in   binance.OrderStatusType
		want domain.OrderStatus
	}{
		{binance.OrderStatusTypeNew, domain.OrderStatusOpen},
		{binance.OrderStatusTypePartiallyFilled, domain.OrderStatusOpen},
		{binance.OrderStatusTypePendingCancel, domain.OrderStatusOpen},
		{binance.OrderStatusTypeFilled, domain.OrderStatusClosed},
		{binance.OrderStatusTypeCanceled, domain.OrderStatusCanceled},
		{binance.OrderStatusTypeRejected, domain.OrderStatusCanceled},
		{binance.OrderStatusTypeExpired, domain.OrderStatusExpired},
		{binance.OrderStatusType("SOMETHING_NEW"), domain.OrderStatusOpen},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, translateStatus(tt.in), string(tt.in))
	}
}

func TestTranslateTicker(t *testing.T) {
	stats := &binance.PriceChangeStats{
		Symbol:    "ETHBTC",
		AskPrice:  "0.00001099",
		BidPrice:  "0.00001097",
		LastPrice: "0.00001090",
		HighPrice: "0.00001200",
		LowPrice:  "0.00001000",
	}

	ticker, err := translateTicker(stats)
	require.NoError(t, err)
	assert.Equal(t, 0.00001099, ticker.Ask)
	assert.Equal(t, 0.00001097, ticker.Bid)
	assert.Equal(t, 0.00001090, ticker.Last)
	assert.Equal(t, 0.00001200, ticker.High)
	assert.Equal(t, 0.00001000, ticker.Low)

	stats.AskPrice = "garbage"
	_, err = translateTicker(stats)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing ask price")
}

func TestTranslateOrder(t *testing.T) {
	order := &binance.Order{
		OrderID:          123456,
		Price:            "0.00001099",
		OrigQuantity:     "91.00000000",
		ExecutedQuantity: "35.50000000",
		Status:           binance.OrderStatusTypePartiallyFilled,
		Side:             binance.SideTypeBuy,
		Time:             1714564800000,
	}

	got, err := translateOrder(order, "ETH/BTC")
	require.NoError(t, err)
	assert.Equal(t, "123456", got.ID)
	assert.Equal(t, "ETH/BTC", got.Pair)
	assert.Equal(t, domain.Buy, got.Side)
	assert.Equal(t, domain.OrderStatusOpen, got.Status)
	assert.Equal(t, 0.00001099, got.Price)
	assert.Equal(t, 91.0, got.Amount)
	assert.Equal(t, 55.5, got.Remaining)
	assert.Equal(t, 35.5, got.Filled())
	// Binance never reports fees on the order itself.
	assert.False(t, got.HasFee())
	assert.Equal(t, time.UnixMilli(1714564800000), got.Time)
}

func TestTranslateKline(t *testing.T) {
	k := &binance.Kline{
		OpenTime:  1714564800000,
		CloseTime: 1714565099999,
		Open:      "0.00001080",
		High:      "0.00001110",
		Low:       "0.00001075",
		Close:     "0.00001099",
		Volume:    "1520.5",
	}

	got, err := translateKline(k, "ETH/BTC", "5m")
	require.NoError(t, err)
	assert.Equal(t, "ETH/BTC", got.Pair)
	assert.Equal(t, "5m", got.Interval)
	assert.Equal(t, time.UnixMilli(1714564800000), got.OpenTime)
	assert.Equal(t, time.UnixMilli(1714565099999), got.CloseTime)
	assert.Equal(t, 0.00001080, got.Open)
	assert.Equal(t, 0.00001110, got.High)
	assert.Equal(t, 0.00001075, got.Low)
	assert.Equal(t, 0.00001099, got.Close)
	assert.Equal(t, 1520.5, got.Volume)

	_, err = translateKline(nil, "ETH/BTC", "5m")
	require.Error(t, err)
}

func TestFormatToStep(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		step float64
		want string
	}{
		{"floors to lot step", 90.99181074, 0.001, "90.991"},
		{"exact multiple survives division noise", 0.3, 0.1, "0.3"},
		{"satoshi tick", 0.00001099, 0.00000001, "0.00001099"},
		{"integer step", 17.9, 1, "17"},
		{"no filter falls back to 8 decimals", 5.6789, 0, "5.67890000"},
		{"coarse step truncates", 0.123456789, 0.01, "0.12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatToStep(tt.v, tt.step))
		})
	}
}

func TestStepDecimals(t *testing.T) {
	assert.Equal(t, 0, stepDecimals(1))
	assert.Equal(t, 1, stepDecimals(0.1))
	assert.Equal(t, 3, stepDecimals(0.001))
	assert.Equal(t, 8, stepDecimals(0.00000001))
}
