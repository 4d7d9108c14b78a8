package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"coinpilot/internal/adapters/logger" // Import the logger package for LogLevel
	"coinpilot/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Run Mode
	DryRun       bool         // Simulate orders instead of hitting the exchange
	DryRunWallet float64      // Simulated free balance per currency in dry-run
	InitialState domain.State // State the bot starts in (running or stopped)
	DisableBuy   bool         // Keep selling open trades but never open new ones

	// Trading Parameters
	BotID           int     // Partition key for trades in a shared database
	StakeCurrency   string  // Quote currency every trade is funded in (e.g. BTC)
	StakeAmount     float64 // Stake per trade, in stake currency
	MaxOpenTrades   int     // Concurrent open trade limit
	HighRiskTrading bool    // Scale the stake with realized profits
	ThrottleSecs    int     // Minimum seconds per main loop iteration

	// Pair Lists
	PairWhitelist    []string // Tradable pairs, order defines buy priority
	PairBlacklist    []string // Pairs never traded, wins over the whitelist
	DynamicWhitelist int      // Top-N pairs by quote volume; 0 keeps the static list

	// Bid Strategy (buy pricing)
	AskLastBalance  float64 // 0.0 = use ask, 1.0 = use last, between interpolates
	BuyUseBookOrder bool    // Price buys from the live order book
	BuyBookOrderTop int     // 1-based bid level used when pricing from the book
	PercentFromTop  float64 // Discount applied to the computed buy rate

	// Ask Strategy (sell pricing)
	SellUseBookOrder bool // Walk order book ask levels when selling
	SellBookOrderMin int  // First 1-based ask level to evaluate
	SellBookOrderMax int  // Last 1-based ask level to evaluate

	// Sell Behaviour
	UseSellSignal       bool // Honor strategy sell signals in addition to ROI
	SellProfitOnly      bool // Ignore sell signals while the trade is at a loss
	SellFullfilledAtROI bool // Seed the sell price with the ROI target rate

	// Buy Admission Checks
	CheckDepthOfMarket      bool    // Require bid/ask book volume ratio before buying
	DOMBidsAsksDelta        float64 // Minimum bid/ask volume ratio
	BuyPriceBelow24hHighLow bool    // Require ask above the 24h high/low midpoint

	// Unfilled Order Timeouts (0 disables the check for that side)
	UnfilledTimeoutBuy  time.Duration
	UnfilledTimeoutSell time.Duration

	// Strategy Parameters
	TickerInterval       string            // Candle interval (e.g. "5m")
	Stoploss             float64           // Stop-loss fraction below the reference price
	MinimalROI           []domain.ROIEntry // ROI table in definition order
	TrailingStop         bool              // Ratchet the stop-loss from the current rate
	TrailingStopPositive float64           // Tighter trail once the trade is in profit (0 = off)

	StrategyShortMAPeriod int     // e.g., 20
	StrategyLongMAPeriod  int     // e.g., 50
	StrategyEMAPeriod     int     // e.g., 20
	StrategyRSIPeriod     int     // e.g., 14
	StrategyRSIOverbought float64 // e.g., 70.0
	StrategyRSIOversold   float64 // e.g., 30.0

	// Telegram
	TelegramEnabled bool
	TelegramToken   string
	TelegramChatID  int64

	// Fiat Display
	FiatDisplayCurrency string // Empty disables fiat amounts in notifications

	// Metrics
	MetricsAddr string // Prometheus listen address, empty disables the endpoint

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Run Mode
	cfg.DryRun = getEnvAsBool("DRY_RUN", true) // Default to simulation for safety
	cfg.DryRunWallet, err = getEnvAsFloatRequired("DRY_RUN_WALLET", 999.9)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DRY_RUN_WALLET: %v", err))
	} else if cfg.DryRunWallet <= 0 {
		errs = append(errs, "DRY_RUN_WALLET must be positive")
	}

	// Live trading needs credentials; public market data in dry-run does not.
	if !cfg.DryRun {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set when DRY_RUN is false")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set when DRY_RUN is false")
		}
	}

	switch state := domain.State(getEnv("INITIAL_STATE", string(domain.StateRunning))); state {
	case domain.StateRunning, domain.StateStopped:
		cfg.InitialState = state
	default:
		errs = append(errs, fmt.Sprintf("INITIAL_STATE must be %q or %q", domain.StateRunning, domain.StateStopped))
	}

	cfg.DisableBuy = getEnvAsBool("DISABLE_BUY", false)

	// Trading Parameters
	cfg.BotID, err = getEnvAsIntRequired("BOT_ID", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BOT_ID: %v", err))
	} else if cfg.BotID <= 0 {
		errs = append(errs, "BOT_ID must be positive")
	}

	cfg.StakeCurrency = strings.ToUpper(getEnv("STAKE_CURRENCY", "BTC"))
	if cfg.StakeCurrency == "" {
		errs = append(errs, "STAKE_CURRENCY must be set")
	}

	cfg.StakeAmount, err = getEnvAsFloatRequired("STAKE_AMOUNT", 0.05)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STAKE_AMOUNT: %v", err))
	} else if cfg.StakeAmount <= 0 {
		errs = append(errs, "STAKE_AMOUNT must be positive")
	}

	cfg.MaxOpenTrades, err = getEnvAsIntRequired("MAX_OPEN_TRADES", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_OPEN_TRADES: %v", err))
	} else if cfg.MaxOpenTrades <= 0 {
		errs = append(errs, "MAX_OPEN_TRADES must be positive")
	}

	cfg.HighRiskTrading = getEnvAsBool("HIGH_RISK_TRADING", false)

	cfg.ThrottleSecs, err = getEnvAsIntRequired("THROTTLE_SECS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid THROTTLE_SECS: %v", err))
	} else if cfg.ThrottleSecs <= 0 {
		errs = append(errs, "THROTTLE_SECS must be positive")
	}

	// Pair Lists
	cfg.PairWhitelist = splitPairList(getEnv("PAIR_WHITELIST", ""))
	cfg.PairBlacklist = splitPairList(getEnv("PAIR_BLACKLIST", ""))

	cfg.DynamicWhitelist, err = getEnvAsIntRequired("DYNAMIC_WHITELIST", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DYNAMIC_WHITELIST: %v", err))
	} else if cfg.DynamicWhitelist < 0 {
		errs = append(errs, "DYNAMIC_WHITELIST cannot be negative")
	}
	if cfg.DynamicWhitelist == 0 && len(cfg.PairWhitelist) == 0 {
		errs = append(errs, "PAIR_WHITELIST must be set when DYNAMIC_WHITELIST is 0")
	}

	// Bid Strategy
	cfg.AskLastBalance, err = getEnvAsFloatRequired("ASK_LAST_BALANCE", 0.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ASK_LAST_BALANCE: %v", err))
	} else if cfg.AskLastBalance < 0 || cfg.AskLastBalance > 1 {
		errs = append(errs, "ASK_LAST_BALANCE must be between 0.0 and 1.0")
	}

	cfg.BuyUseBookOrder = getEnvAsBool("BUY_USE_BOOK_ORDER", false)
	cfg.BuyBookOrderTop = getEnvAsInt("BUY_BOOK_ORDER_TOP", 1)
	if cfg.BuyBookOrderTop < 1 {
		errs = append(errs, "BUY_BOOK_ORDER_TOP must be at least 1")
	}

	cfg.PercentFromTop, err = getEnvAsFloatRequired("PERCENT_FROM_TOP", 0.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PERCENT_FROM_TOP: %v", err))
	} else if cfg.PercentFromTop < 0 || cfg.PercentFromTop >= 1 {
		errs = append(errs, "PERCENT_FROM_TOP must be in [0.0, 1.0)")
	}

	// Ask Strategy
	cfg.SellUseBookOrder = getEnvAsBool("SELL_USE_BOOK_ORDER", false)
	cfg.SellBookOrderMin = getEnvAsInt("SELL_BOOK_ORDER_MIN", 1)
	cfg.SellBookOrderMax = getEnvAsInt("SELL_BOOK_ORDER_MAX", 1)
	if cfg.SellBookOrderMin < 1 {
		errs = append(errs, "SELL_BOOK_ORDER_MIN must be at least 1")
	}
	if cfg.SellBookOrderMax < cfg.SellBookOrderMin {
		errs = append(errs, "SELL_BOOK_ORDER_MAX must be >= SELL_BOOK_ORDER_MIN")
	}

	// Sell Behaviour
	cfg.UseSellSignal = getEnvAsBool("USE_SELL_SIGNAL", false)
	cfg.SellProfitOnly = getEnvAsBool("SELL_PROFIT_ONLY", false)
	cfg.SellFullfilledAtROI = getEnvAsBool("SELL_FULLFILLED_AT_ROI", false)

	// Buy Admission Checks
	cfg.CheckDepthOfMarket = getEnvAsBool("CHECK_DEPTH_OF_MARKET", false)
	cfg.DOMBidsAsksDelta, err = getEnvAsFloatRequired("DOM_BIDS_ASKS_DELTA", 0.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DOM_BIDS_ASKS_DELTA: %v", err))
	} else if cfg.CheckDepthOfMarket && cfg.DOMBidsAsksDelta <= 0 {
		errs = append(errs, "DOM_BIDS_ASKS_DELTA must be positive when CHECK_DEPTH_OF_MARKET is enabled")
	}
	cfg.BuyPriceBelow24hHighLow = getEnvAsBool("BUY_PRICE_BELOW_24H_HIGH_LOW", false)

	// Unfilled Order Timeouts
	buyTimeoutMinutes := getEnvAsInt("UNFILLED_TIMEOUT_BUY_MINUTES", 10)
	if buyTimeoutMinutes < 0 {
		errs = append(errs, "UNFILLED_TIMEOUT_BUY_MINUTES cannot be negative")
	}
	cfg.UnfilledTimeoutBuy = time.Duration(buyTimeoutMinutes) * time.Minute

	sellTimeoutMinutes := getEnvAsInt("UNFILLED_TIMEOUT_SELL_MINUTES", 10)
	if sellTimeoutMinutes < 0 {
		errs = append(errs, "UNFILLED_TIMEOUT_SELL_MINUTES cannot be negative")
	}
	cfg.UnfilledTimeoutSell = time.Duration(sellTimeoutMinutes) * time.Minute

	// Strategy Parameters
	cfg.TickerInterval = getEnv("TICKER_INTERVAL", "5m")
	if _, ok := domain.TickerIntervalMinutes[cfg.TickerInterval]; !ok {
		errs = append(errs, fmt.Sprintf("unsupported TICKER_INTERVAL %q", cfg.TickerInterval))
	}

	cfg.Stoploss, err = getEnvAsFloatRequired("STOPLOSS", 0.10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOPLOSS: %v", err))
	} else if cfg.Stoploss == 0 || cfg.Stoploss <= -1.0 || cfg.Stoploss >= 1.0 {
		errs = append(errs, "STOPLOSS must be a non-zero fraction between -1.0 and 1.0")
	}

	roiStr := getEnv("MINIMAL_ROI", "0:0.04,20:0.02,30:0.01,40:0")
	cfg.MinimalROI, err = parseROITable(roiStr)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MINIMAL_ROI: %v", err))
	}

	cfg.TrailingStop = getEnvAsBool("TRAILING_STOP", false)
	cfg.TrailingStopPositive, err = getEnvAsFloatRequired("TRAILING_STOP_POSITIVE", 0.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRAILING_STOP_POSITIVE: %v", err))
	} else if cfg.TrailingStopPositive < 0 || cfg.TrailingStopPositive >= 1 {
		errs = append(errs, "TRAILING_STOP_POSITIVE must be in [0.0, 1.0)")
	}

	// Indicator periods (using defaults if not set)
	cfg.StrategyShortMAPeriod = getEnvAsInt("STRATEGY_SHORT_MA_PERIOD", 20)
	cfg.StrategyLongMAPeriod = getEnvAsInt("STRATEGY_LONG_MA_PERIOD", 50)
	cfg.StrategyEMAPeriod = getEnvAsInt("STRATEGY_EMA_PERIOD", 20)
	cfg.StrategyRSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 14)
	cfg.StrategyRSIOverbought = getEnvAsFloat("STRATEGY_RSI_OVERBOUGHT", 70.0)
	cfg.StrategyRSIOversold = getEnvAsFloat("STRATEGY_RSI_OVERSOLD", 30.0)

	if cfg.StrategyShortMAPeriod <= 0 || cfg.StrategyLongMAPeriod <= 0 || cfg.StrategyEMAPeriod <= 0 || cfg.StrategyRSIPeriod <= 0 {
		errs = append(errs, "strategy periods (MA, EMA, RSI) must be positive")
	}
	if cfg.StrategyShortMAPeriod >= cfg.StrategyLongMAPeriod {
		errs = append(errs, "STRATEGY_SHORT_MA_PERIOD must be less than STRATEGY_LONG_MA_PERIOD")
	}
	if cfg.StrategyRSIOverbought <= cfg.StrategyRSIOversold || cfg.StrategyRSIOverbought > 100 || cfg.StrategyRSIOversold < 0 {
		errs = append(errs, "invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
	}

	// Telegram
	cfg.TelegramEnabled = getEnvAsBool("TELEGRAM_ENABLED", false)
	cfg.TelegramToken = getEnv("TELEGRAM_TOKEN", "")
	cfg.TelegramChatID, err = getEnvAsInt64("TELEGRAM_CHAT_ID", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TELEGRAM_CHAT_ID: %v", err))
	}
	if cfg.TelegramEnabled {
		if cfg.TelegramToken == "" {
			errs = append(errs, "TELEGRAM_TOKEN must be set when TELEGRAM_ENABLED is true")
		}
		if cfg.TelegramChatID == 0 {
			errs = append(errs, "TELEGRAM_CHAT_ID must be set when TELEGRAM_ENABLED is true")
		}
	}

	// Fiat Display
	cfg.FiatDisplayCurrency = strings.ToUpper(getEnv("FIAT_DISPLAY_CURRENCY", "USD"))

	// Metrics
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/coinpilot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseROITable parses a minimal-ROI text like "0:0.04,30:0.01,60:0" into
// table entries, preserving definition order. The sell check walks the table
// top to bottom, so the order given here is behaviour, not presentation.
func parseROITable(s string) ([]domain.ROIEntry, error) {
	parts := strings.Split(s, ",")
	entries := make([]domain.ROIEntry, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("entry %q is not in minutes:threshold form", part)
		}
		minutes, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid minutes in entry %q: %w", part, err)
		}
		if minutes < 0 {
			return nil, fmt.Errorf("negative minutes in entry %q", part)
		}
		threshold, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold in entry %q: %w", part, err)
		}
		entries = append(entries, domain.ROIEntry{Minutes: minutes, Threshold: threshold})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("table is empty")
	}
	return entries, nil
}

// splitPairList splits a comma-separated pair list, trimming whitespace and
// uppercasing entries ("eth/btc, ltc/btc" -> ["ETH/BTC", "LTC/BTC"]).
func splitPairList(s string) []string {
	var pairs []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			pairs = append(pairs, part)
		}
	}
	return pairs
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsInt64(key string, defaultValue int64) (int64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
