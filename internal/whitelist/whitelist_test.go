package whitelist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinpilot/internal/domain"
	"coinpilot/internal/ports"
)

type mockLogger struct {
	infoMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockMarkets struct {
	ports.ExchangeClient

	tickers     []*domain.TickerStats
	tickersErr  error
	tickerCalls int
	markets     []*domain.Market
	marketsErr  error
}

func (m *mockMarkets) GetTickers(ctx context.Context) ([]*domain.TickerStats, error) {
	m.tickerCalls++
	return m.tickers, m.tickersErr
}

func (m *mockMarkets) GetMarkets(ctx context.Context) ([]*domain.Market, error) {
	return m.markets, m.marketsErr
}

func btcMarkets() []*domain.Market {
	return []*domain.Market{
		{Symbol: "ETH/BTC", Quote: "BTC", Active: true},
		{Symbol: "LTC/BTC", Quote: "BTC", Active: true},
		{Symbol: "XRP/BTC", Quote: "BTC", Active: false},
		{Symbol: "ADA/BTC", Quote: "BTC", Active: true},
		{Symbol: "ETH/USDT", Quote: "USDT", Active: true},
	}
}

func newTestGenerator(t *testing.T, exch *mockMarkets, mutate func(cfg *Config)) (*Generator, *mockLogger) {
	t.Helper()
	logger := &mockLogger{}
	cfg := Config{StakeCurrency: "BTC"}
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := New(cfg, exch, logger)
	require.NoError(t, err)
	return g, logger
}

func TestDynamicList(t *testing.T) {
	t.Run("ranks by quote volume within the stake currency", func(t *testing.T) {
		exch := &mockMarkets{tickers: []*domain.TickerStats{
			{Symbol: "ETH/BTC", QuoteVolume: 100},
			{Symbol: "LTC/BTC", QuoteVolume: 300},
			{Symbol: "ETH/USDT", QuoteVolume: 9000},
			{Symbol: "ADA/BTC", QuoteVolume: 200},
		}}
		g, _ := newTestGenerator(t, exch, nil)

		pairs, err := g.DynamicList(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"LTC/BTC", "ADA/BTC", "ETH/BTC"}, pairs)
	})

	t.Run("result is cached within the TTL", func(t *testing.T) {
		current := time.Date(2019, 4, 2, 12, 0, 0, 0, time.UTC)
		exch := &mockMarkets{tickers: []*domain.TickerStats{{Symbol: "ETH/BTC", QuoteVolume: 100}}}
		g, _ := newTestGenerator(t, exch, func(cfg *Config) {
			cfg.Now = func() time.Time { return current }
		})

		_, err := g.DynamicList(context.Background())
		require.NoError(t, err)
		_, err = g.DynamicList(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, exch.tickerCalls)

		current = current.Add(31 * time.Minute)
		_, err = g.DynamicList(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, exch.tickerCalls)
	})

	t.Run("exchange failure propagates", func(t *testing.T) {
		exch := &mockMarkets{tickersErr: errors.New("down")}
		g, _ := newTestGenerator(t, exch, nil)

		_, err := g.DynamicList(context.Background())
		assert.Error(t, err)
	})
}

func TestSanitize(t *testing.T) {
	t.Run("keeps order and drops inactive, blacklisted and unknown", func(t *testing.T) {
		exch := &mockMarkets{markets: btcMarkets()}
		g, logger := newTestGenerator(t, exch, func(cfg *Config) {
			cfg.Blacklist = []string{"ADA/BTC"}
		})

		// XRP/BTC inactive, ADA/BTC blacklisted, DOGE/BTC unknown market.
		got, err := g.Sanitize(context.Background(), []string{"LTC/BTC", "XRP/BTC", "ADA/BTC", "ETH/BTC", "DOGE/BTC"})
		require.NoError(t, err)
		assert.Equal(t, []string{"LTC/BTC", "ETH/BTC"}, got)
		assert.NotEmpty(t, logger.infoMsgs) // the inactive drop is logged
	})

	t.Run("wrong quote currency is dropped", func(t *testing.T) {
		exch := &mockMarkets{markets: btcMarkets()}
		g, _ := newTestGenerator(t, exch, nil)

		got, err := g.Sanitize(context.Background(), []string{"ETH/USDT", "ETH/BTC"})
		require.NoError(t, err)
		assert.Equal(t, []string{"ETH/BTC"}, got)
	})

	t.Run("market fetch failure propagates", func(t *testing.T) {
		exch := &mockMarkets{marketsErr: errors.New("down")}
		g, _ := newTestGenerator(t, exch, nil)

		_, err := g.Sanitize(context.Background(), []string{"ETH/BTC"})
		assert.Error(t, err)
	})
}

func TestRefresh(t *testing.T) {
	t.Run("static list is sanitized", func(t *testing.T) {
		exch := &mockMarkets{markets: btcMarkets()}
		g, _ := newTestGenerator(t, exch, nil)

		got, err := g.Refresh(context.Background(), []string{"ETH/BTC", "XRP/BTC"}, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"ETH/BTC"}, got)
		assert.Equal(t, 0, exch.tickerCalls) // dynamic ranking untouched
	})

	t.Run("dynamic list is ranked and truncated", func(t *testing.T) {
		exch := &mockMarkets{
			tickers: []*domain.TickerStats{
				{Symbol: "ETH/BTC", QuoteVolume: 100},
				{Symbol: "LTC/BTC", QuoteVolume: 300},
				{Symbol: "ADA/BTC", QuoteVolume: 200},
			},
			markets: btcMarkets(),
		}
		g, _ := newTestGenerator(t, exch, nil)

		got, err := g.Refresh(context.Background(), nil, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"LTC/BTC", "ADA/BTC"}, got)
	})
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{StakeCurrency: "BTC"}, nil, &mockLogger{})
	assert.Error(t, err)
	_, err = New(Config{StakeCurrency: "BTC"}, &mockMarkets{}, nil)
	assert.Error(t, err)
	_, err = New(Config{}, &mockMarkets{}, &mockLogger{})
	assert.Error(t, err)
}
