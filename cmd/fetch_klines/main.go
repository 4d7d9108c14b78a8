// Command fetch_klines exports recent candles for one pair to a CSV file,
// the same data the signal analyzer sees. Useful for eyeballing indicator
// behaviour against real market history.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coinpilot/config"
	"coinpilot/internal/adapters/binanceclient"
	"coinpilot/internal/adapters/logger"
	"coinpilot/internal/utils"
)

var (
	pair     = flag.String("pair", "ETH/BTC", "pair to fetch, in BASE/QUOTE form")
	interval = flag.String("interval", "5m", "candle interval")
	limit    = flag.Int("limit", 500, "number of candles to fetch (max 1000)")
	out      = flag.String("out", "", "output file, defaults to data/<pair>_<interval>_<date>.csv")
)

func main() {
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	ctx := context.Background()
	fmt.Printf("Fetching %d %s candles for %s...\n", *limit, *interval, *pair)
	klines, err := binanceClient.GetKlines(ctx, *pair, *interval, *limit)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching klines")
		log.Fatalf("Error fetching klines: %v", err)
	}
	appLogger.Info(ctx, "Fetched klines", map[string]interface{}{"pair": *pair, "count": len(klines)})

	filename := *out
	if filename == "" {
		name := strings.ReplaceAll(*pair, "/", "") // ETH/BTC -> ETHBTC
		filename = fmt.Sprintf("data/%s_%s_%s.csv", name, *interval, time.Now().Format("20060102"))
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Error creating output directory: %v", err)
		}
	}
	if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	fmt.Printf("Saved %d candles to %s\n", len(klines), filename)
}
