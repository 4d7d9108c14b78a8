package strategy

import (
	"context"
	"testing"

	"coinpilot/internal/domain"
	"coinpilot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

func validConfig() Config {
	return Config{
		TickerInterval:    "5m",
		Stoploss:          0.05,
		MinimalROI:        []domain.ROIEntry{{Minutes: 0, Threshold: 0.04}, {Minutes: 30, Threshold: 0.01}},
		ShortTermMAPeriod: 20,
		LongTermMAPeriod:  50,
		EMAPeriod:         20,
		RSIPeriod:         14,
		RSIOverbought:     70.0,
		RSIOversold:       30.0,
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		logger  ports.Logger
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(cfg *Config) {},
			logger:  &mockLogger{},
			wantErr: false,
		},
		{
			name:    "nil logger",
			mutate:  func(cfg *Config) {},
			logger:  nil,
			wantErr: true,
		},
		{
			name:    "invalid periods",
			mutate:  func(cfg *Config) { cfg.ShortTermMAPeriod = 0 },
			logger:  &mockLogger{},
			wantErr: true,
		},
		{
			name:    "invalid MA periods",
			mutate:  func(cfg *Config) { cfg.ShortTermMAPeriod = 50; cfg.LongTermMAPeriod = 20 },
			logger:  &mockLogger{},
			wantErr: true,
		},
		{
			name:    "unsupported interval",
			mutate:  func(cfg *Config) { cfg.TickerInterval = "7m" },
			logger:  &mockLogger{},
			wantErr: true,
		},
		{
			name:    "zero stoploss",
			mutate:  func(cfg *Config) { cfg.Stoploss = 0 },
			logger:  &mockLogger{},
			wantErr: true,
		},
		{
			name:    "empty roi table",
			mutate:  func(cfg *Config) { cfg.MinimalROI = nil },
			logger:  &mockLogger{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			s, err := New(cfg, tt.logger)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, s)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, s)
			}
		})
	}
}

func TestStrategyAccessors(t *testing.T) {
	cfg := validConfig()
	s, err := New(cfg, &mockLogger{})
	require.NoError(t, err)

	assert.Equal(t, "5m", s.TickerInterval())
	assert.Equal(t, 0.05, s.Stoploss())
	assert.Equal(t, cfg.MinimalROI, s.MinimalROI())
}

func TestRequiredDataPoints(t *testing.T) {
	cfg := validConfig()
	cfg.EMAPeriod = 30
	s, err := New(cfg, &mockLogger{})
	require.NoError(t, err)

	// Should return the max period + 1
	assert.Equal(t, 51, s.RequiredDataPoints())
}

func TestCalculateRSI(t *testing.T) {
	tests := []struct {
		name    string
		klines  []*domain.Kline
		period  int
		want    float64
		wantErr bool
	}{
		{
			name: "valid RSI calculation",
			klines: []*domain.Kline{
				{Close: 100}, // Base price
				{Close: 110}, // +10
				{Close: 105}, // -5
				{Close: 115}, // +10
				{Close: 110}, // -5
				{Close: 120}, // +10
			},
			period:  5,
			want:    75.0,
			wantErr: false,
		},
		{
			name: "insufficient data",
			klines: []*domain.Kline{
				{Close: 100},
				{Close: 110},
			},
			period:  5,
			want:    0,
			wantErr: true,
		},
		{
			name: "all gains",
			klines: []*domain.Kline{
				{Close: 100},
				{Close: 110},
				{Close: 120},
				{Close: 130},
				{Close: 140},
				{Close: 150},
			},
			period:  5,
			want:    100,
			wantErr: false,
		},
		{
			name: "all losses",
			klines: []*domain.Kline{
				{Close: 150},
				{Close: 140},
				{Close: 130},
				{Close: 120},
				{Close: 110},
				{Close: 100},
			},
			period:  5,
			want:    0,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calculateRSI(tt.klines, tt.period)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.InDelta(t, tt.want, got, 0.01) // Allow small floating point differences
			}
		})
	}
}

func TestCalculateMovingAverage(t *testing.T) {
	tests := []struct {
		name    string
		klines  []*domain.Kline
		period  int
		want    float64
		wantErr bool
	}{
		{
			name: "valid MA calculation",
			klines: []*domain.Kline{
				{Close: 100},
				{Close: 110},
				{Close: 120},
				{Close: 130},
				{Close: 140},
			},
			period:  3,
			want:    130, // (120 + 130 + 140) / 3
			wantErr: false,
		},
		{
			name: "insufficient data",
			klines: []*domain.Kline{
				{Close: 100},
				{Close: 110},
			},
			period:  3,
			want:    0,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calculateMovingAverage(tt.klines, tt.period)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCalculateEMA(t *testing.T) {
	tests := []struct {
		name    string
		klines  []*domain.Kline
		period  int
		want    float64
		wantErr bool
	}{
		{
			name: "valid EMA calculation",
			klines: []*domain.Kline{
				{Close: 100},
				{Close: 110},
				{Close: 120},
				{Close: 130},
				{Close: 140},
			},
			period: 3,
			// Seed SMA(100,110,120)=110, then 130 -> 120, 140 -> 130
			want:    130.0,
			wantErr: false,
		},
		{
			name: "insufficient data",
			klines: []*domain.Kline{
				{Close: 100},
				{Close: 110},
			},
			period:  3,
			want:    0,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calculateEMA(tt.klines, tt.period)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.InDelta(t, tt.want, got, 0.01) // Allow small floating point differences
			}
		})
	}
}

// Closes only, in order: moderate uptrend whose RSI stays under the
// overbought threshold.
func uptrendKlines() []*domain.Kline {
	closes := []float64{100, 102, 98, 101, 99, 103, 101, 104, 105}
	klines := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		klines[i] = &domain.Kline{Close: c}
	}
	return klines
}

func runawayKlines() []*domain.Kline {
	closes := []float64{100, 120, 140, 160, 180, 200, 220, 240, 260}
	klines := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		klines[i] = &domain.Kline{Close: c}
	}
	return klines
}

func downtrendKlines() []*domain.Kline {
	closes := []float64{150, 145, 140, 130, 120, 110, 100}
	klines := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		klines[i] = &domain.Kline{Close: c}
	}
	return klines
}

func adviceConfig() Config {
	cfg := validConfig()
	cfg.ShortTermMAPeriod = 3
	cfg.LongTermMAPeriod = 5
	cfg.EMAPeriod = 3
	cfg.RSIPeriod = 5
	return cfg
}

func TestAdviseBuy(t *testing.T) {
	tests := []struct {
		name   string
		klines []*domain.Kline
		want   bool
	}{
		{
			name:   "uptrend with moderate RSI buys",
			klines: uptrendKlines(),
			want:   true,
		},
		{
			name:   "overbought runaway is rejected",
			klines: runawayKlines(),
			want:   false,
		},
		{
			name:   "downtrend is rejected",
			klines: downtrendKlines(),
			want:   false,
		},
		{
			name:   "insufficient data",
			klines: []*domain.Kline{{Close: 100}, {Close: 110}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(adviceConfig(), &mockLogger{})
			require.NoError(t, err)

			got := s.AdviseBuy(context.Background(), tt.klines, "ETH/BTC")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdviseSell(t *testing.T) {
	tests := []struct {
		name   string
		klines []*domain.Kline
		want   bool
	}{
		{
			name:   "overbought runaway sells",
			klines: runawayKlines(),
			want:   true,
		},
		{
			name:   "broken trend sells",
			klines: downtrendKlines(),
			want:   true,
		},
		{
			name:   "healthy uptrend holds",
			klines: uptrendKlines(),
			want:   false,
		},
		{
			name:   "insufficient data",
			klines: []*domain.Kline{{Close: 100}, {Close: 110}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(adviceConfig(), &mockLogger{})
			require.NoError(t, err)

			got := s.AdviseSell(context.Background(), tt.klines, "ETH/BTC")
			assert.Equal(t, tt.want, got)
		})
	}
}
