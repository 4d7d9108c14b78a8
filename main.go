package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"coinpilot/config"
	"coinpilot/internal/adapters/binanceclient"
	"coinpilot/internal/adapters/dryrun"
	"coinpilot/internal/adapters/fiat"
	"coinpilot/internal/adapters/logger"
	"coinpilot/internal/adapters/sqlite"
	"coinpilot/internal/adapters/telegram"
	"coinpilot/internal/app"
	"coinpilot/internal/engine"
	"coinpilot/internal/metrics"
	"coinpilot/internal/ports"
	"coinpilot/internal/pricing"
	"coinpilot/internal/signal"
	"coinpilot/internal/stake"
	"coinpilot/internal/strategy"
	"coinpilot/internal/whitelist"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
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
	appLogger.Info(context.Background(), "Binance client initialized")

	// In dry-run mode orders are simulated locally while market data still
	// comes from the real exchange.
	var exchange ports.ExchangeClient = binanceClient
	if cfg.DryRun {
		exchange, err = dryrun.New(dryrun.Config{
			Live:   binanceClient,
			Logger: appLogger,
			Wallet: cfg.DryRunWallet,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize dry-run exchange")
			log.Fatalf("FATAL: Failed to initialize dry-run exchange: %v", err)
		}
		appLogger.Info(context.Background(), "Dry run enabled, orders will be simulated")
	}

	// 5. Expose Prometheus Metrics (optional)
	var botMetrics *metrics.Metrics
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		botMetrics = metrics.New(registry)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(registry))
		go func() {
			appLogger.Info(context.Background(), "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsAddr})
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error(context.Background(), err, "Metrics endpoint failed")
			}
		}()
	}

	// 6. Initialize Strategy and Signal Analyzer
	strat, err := strategy.New(strategy.Config{
		TickerInterval:    cfg.TickerInterval,
		ShortTermMAPeriod: cfg.StrategyShortMAPeriod,
		LongTermMAPeriod:  cfg.StrategyLongMAPeriod,
		EMAPeriod:         cfg.StrategyEMAPeriod,
		RSIPeriod:         cfg.StrategyRSIPeriod,
		RSIOverbought:     cfg.StrategyRSIOverbought,
		RSIOversold:       cfg.StrategyRSIOversold,
		Stoploss:          cfg.Stoploss,
		MinimalROI:        cfg.MinimalROI,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading strategy")
		log.Fatalf("FATAL: Failed to initialize trading strategy: %v", err)
	}
	signals, err := signal.New(signal.Config{
		Exchange: exchange,
		Strategy: strat,
		Logger:   appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize signal analyzer")
		log.Fatalf("FATAL: Failed to initialize signal analyzer: %v", err)
	}
	appLogger.Info(context.Background(), "Trading strategy initialized")

	// 7. Initialize Pricing, Stake Sizing and Pair List Components
	targeter, err := pricing.New(pricing.Config{
		AskLastBalance: cfg.AskLastBalance,
		UseBookOrder:   cfg.BuyUseBookOrder,
		BookOrderTop:   cfg.BuyBookOrderTop,
		PercentFromTop: cfg.PercentFromTop,
	}, exchange, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize price targeter")
		log.Fatalf("FATAL: Failed to initialize price targeter: %v", err)
	}
	sizer, err := stake.New(stake.Config{
		StakeAmount:   cfg.StakeAmount,
		MaxOpenTrades: cfg.MaxOpenTrades,
		HighRisk:      cfg.HighRiskTrading,
		BotID:         cfg.BotID,
	}, repo, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize stake sizer")
		log.Fatalf("FATAL: Failed to initialize stake sizer: %v", err)
	}
	pairs, err := whitelist.New(whitelist.Config{
		StakeCurrency: cfg.StakeCurrency,
		Blacklist:     cfg.PairBlacklist,
	}, exchange, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize whitelist generator")
		log.Fatalf("FATAL: Failed to initialize whitelist generator: %v", err)
	}

	// 8. Initialize Notification and Fiat Display Adapters
	notifier, err := telegram.New(telegram.Config{
		Enabled: cfg.TelegramEnabled,
		Token:   cfg.TelegramToken,
		ChatID:  cfg.TelegramChatID,
		Logger:  appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Telegram notifier")
		log.Fatalf("FATAL: Failed to initialize Telegram notifier: %v", err)
	}
	fiatConv, err := fiat.New(fiat.Config{Logger: appLogger})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize fiat converter")
		log.Fatalf("FATAL: Failed to initialize fiat converter: %v", err)
	}

	// 9. Initialize Trading Engine
	eng, err := engine.New(engine.Config{
		Exchange:  exchange,
		Repo:      repo,
		Signals:   signals,
		Strategy:  strat,
		Targeter:  targeter,
		Sizer:     sizer,
		Whitelist: pairs,
		Notifier:  notifier,
		Fiat:      fiatConv,
		Logger:    appLogger,
		Metrics:   botMetrics,

		BotID:         cfg.BotID,
		StakeCurrency: cfg.StakeCurrency,
		FiatCurrency:  cfg.FiatDisplayCurrency,
		MaxOpenTrades: cfg.MaxOpenTrades,
		DryRun:        cfg.DryRun,
		DisableBuy:    cfg.DisableBuy,

		PairWhitelist:    cfg.PairWhitelist,
		DynamicWhitelist: cfg.DynamicWhitelist,

		CheckDepthOfMarket:      cfg.CheckDepthOfMarket,
		DOMBidsAsksDelta:        cfg.DOMBidsAsksDelta,
		BuyPriceBelow24hHighLow: cfg.BuyPriceBelow24hHighLow,

		UseSellSignal:       cfg.UseSellSignal,
		SellProfitOnly:      cfg.SellProfitOnly,
		SellFullfilledAtROI: cfg.SellFullfilledAtROI,
		SellUseBookOrder:    cfg.SellUseBookOrder,
		SellBookOrderMin:    cfg.SellBookOrderMin,
		SellBookOrderMax:    cfg.SellBookOrderMax,

		TrailingStop:         cfg.TrailingStop,
		TrailingStopPositive: cfg.TrailingStopPositive,

		UnfilledTimeoutBuy:  cfg.UnfilledTimeoutBuy,
		UnfilledTimeoutSell: cfg.UnfilledTimeoutSell,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading engine")
		log.Fatalf("FATAL: Failed to initialize trading engine: %v", err)
	}
	appLogger.Info(context.Background(), "Trading engine initialized")

	// 10. Initialize and Run the Bot
	bot, err := app.New(cfg, eng, exchange, notifier, sizer, botMetrics, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize bot")
		log.Fatalf("FATAL: Failed to initialize bot: %v", err)
	}
	if err := bot.Run(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Bot exited with error")
		log.Fatalf("FATAL: Bot exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
