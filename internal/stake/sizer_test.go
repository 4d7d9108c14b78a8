package stake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinpilot/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockTradeRepo struct {
	trades  []*domain.Trade
	findErr error
}

func (m *mockTradeRepo) Create(ctx context.Context, trade *domain.Trade) (int64, error) {
	return 0, nil
}
func (m *mockTradeRepo) Update(ctx context.Context, trade *domain.Trade) error { return nil }
func (m *mockTradeRepo) Delete(ctx context.Context, id int64) error            { return nil }
func (m *mockTradeRepo) FindByID(ctx context.Context, id int64) (*domain.Trade, error) {
	return nil, nil
}
func (m *mockTradeRepo) FindOpen(ctx context.Context, botID int) ([]*domain.Trade, error) {
	return nil, nil
}
func (m *mockTradeRepo) FindWithOpenOrder(ctx context.Context, botID int) ([]*domain.Trade, error) {
	return nil, nil
}
func (m *mockTradeRepo) FindAll(ctx context.Context, botID int) ([]*domain.Trade, error) {
	return m.trades, m.findErr
}

func closedTrade(openRate, closeRate, amount float64) *domain.Trade {
	return &domain.Trade{
		Pair:      "ETH/BTC",
		OpenRate:  openRate,
		CloseRate: closeRate,
		Amount:    amount,
		FeeOpen:   0.0025,
		FeeClose:  0.0025,
		IsOpen:    false,
	}
}

func TestStake(t *testing.T) {
	baseCfg := Config{StakeAmount: 0.05, MaxOpenTrades: 3, BotID: 1}

	t.Run("plain mode returns the configured stake", func(t *testing.T) {
		repo := &mockTradeRepo{trades: []*domain.Trade{closedTrade(0.001, 0.0011, 100)}}
		sizer, err := New(baseCfg, repo, &mockLogger{})
		require.NoError(t, err)

		stake, err := sizer.Stake(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, 0.05, stake)
	})

	t.Run("no open slots keeps the base stake", func(t *testing.T) {
		cfg := baseCfg
		cfg.HighRisk = true
		repo := &mockTradeRepo{trades: []*domain.Trade{closedTrade(0.001, 0.0011, 100)}}
		sizer, err := New(cfg, repo, &mockLogger{})
		require.NoError(t, err)

		stake, err := sizer.Stake(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, 0.05, stake)
	})

	t.Run("no closed trades keeps the base stake", func(t *testing.T) {
		cfg := baseCfg
		cfg.HighRisk = true
		sizer, err := New(cfg, &mockTradeRepo{}, &mockLogger{})
		require.NoError(t, err)

		stake, err := sizer.Stake(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, 0.05, stake)
	})

	t.Run("losses keep the base stake", func(t *testing.T) {
		cfg := baseCfg
		cfg.HighRisk = true
		repo := &mockTradeRepo{trades: []*domain.Trade{closedTrade(0.001, 0.0009, 100)}}
		sizer, err := New(cfg, repo, &mockLogger{})
		require.NoError(t, err)

		stake, err := sizer.Stake(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, 0.05, stake)
	})

	t.Run("profits scale the stake", func(t *testing.T) {
		cfg := baseCfg
		cfg.HighRisk = true
		// Realized profit 0.009475 against an initial balance of 0.15
		// (3 slots of 0.05) with mean fee 0.0025:
		// pct = 0.063166 - 0.005 = 0.058166, truncated to 0.05 -> stake 0.0525.
		repo := &mockTradeRepo{trades: []*domain.Trade{closedTrade(0.001, 0.0011, 100)}}
		sizer, err := New(cfg, repo, &mockLogger{})
		require.NoError(t, err)

		stake, err := sizer.Stake(context.Background(), 1)
		require.NoError(t, err)
		assert.InDelta(t, 0.0525, stake, 1e-9)
	})

	t.Run("open trades are excluded from aggregation", func(t *testing.T) {
		cfg := baseCfg
		cfg.HighRisk = true
		open := &domain.Trade{Pair: "ETH/BTC", OpenRate: 0.001, Amount: 100, IsOpen: true}
		repo := &mockTradeRepo{trades: []*domain.Trade{open}}
		sizer, err := New(cfg, repo, &mockLogger{})
		require.NoError(t, err)

		stake, err := sizer.Stake(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, 0.05, stake)
	})

	t.Run("repository failure propagates", func(t *testing.T) {
		cfg := baseCfg
		cfg.HighRisk = true
		sizer, err := New(cfg, &mockTradeRepo{findErr: errors.New("db gone")}, &mockLogger{})
		require.NoError(t, err)

		_, err = sizer.Stake(context.Background(), 0)
		assert.Error(t, err)
	})
}

func TestProfitsFees(t *testing.T) {
	repo := &mockTradeRepo{trades: []*domain.Trade{
		closedTrade(0.001, 0.0011, 100),
		closedTrade(0.002, 0.0019, 50),
	}}
	sizer, err := New(Config{StakeAmount: 0.05, MaxOpenTrades: 3, BotID: 1}, repo, &mockLogger{})
	require.NoError(t, err)

	profits, meanFee, err := sizer.ProfitsFees(context.Background())
	require.NoError(t, err)

	want := repo.trades[0].Profit(0.0011) + repo.trades[1].Profit(0.0019)
	assert.InDelta(t, want, profits, 1e-12)
	assert.InDelta(t, 0.0025, meanFee, 1e-12)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{StakeAmount: 0.05}, nil, &mockLogger{})
	assert.Error(t, err)
	_, err = New(Config{StakeAmount: 0.05}, &mockTradeRepo{}, nil)
	assert.Error(t, err)
	_, err = New(Config{StakeAmount: 0}, &mockTradeRepo{}, &mockLogger{})
	assert.Error(t, err)
}
