package utils

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinpilot/internal/domain"
)

func TestWriteKlinesToCSV(t *testing.T) {
	openTime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	klines := []*domain.Kline{
		{
			OpenTime:  openTime,
			CloseTime: openTime.Add(5 * time.Minute),
			Pair:      "ETH/BTC",
			Interval:  "5m",
			Open:      0.05,
			High:      0.052,
			Low:       0.049,
			Close:     0.051,
			Volume:    1234.5,
		},
		{
			OpenTime:  openTime.Add(5 * time.Minute),
			CloseTime: openTime.Add(10 * time.Minute),
			Pair:      "ETH/BTC",
			Interval:  "5m",
			Open:      0.051,
			High:      0.053,
			Low:       0.05,
			Close:     0.052,
			Volume:    987.25,
		},
	}

	path := filepath.Join(t.TempDir(), "klines.csv")
	require.NoError(t, WriteKlinesToCSV(klines, path))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per candle")

	assert.Equal(t, []string{"open_time", "close_time", "pair", "interval", "open", "high", "low", "close", "volume"}, rows[0])
	assert.Equal(t, []string{
		"2024-05-01T12:00:00Z", "2024-05-01T12:05:00Z", "ETH/BTC", "5m",
		"0.05", "0.052", "0.049", "0.051", "1234.5",
	}, rows[1])
	assert.Equal(t, "0.052", rows[2][7])
}

func TestWriteKlinesToCSV_EmptyWritesHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, WriteKlinesToCSV(nil, path))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
