// Package fiat resolves crypto prices into a fiat display currency for
// notifications. Rates come from the public CoinGecko API and are cached,
// a dead rate service only costs the fiat suffix on messages, never a trade.
package fiat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"coinpilot/internal/ports"
)

const (
	defaultBaseURL  = "https://api.coingecko.com/api/v3"
	defaultCacheTTL = 6 * time.Hour
	defaultTimeout  = 10 * time.Second
)

// supportedFiat lists the display currencies the rate service can quote.
var supportedFiat = map[string]struct{}{
	"AUD": {}, "BRL": {}, "CAD": {}, "CHF": {}, "CLP": {}, "CNY": {}, "CZK": {},
	"DKK": {}, "EUR": {}, "GBP": {}, "HKD": {}, "HUF": {}, "IDR": {}, "ILS": {},
	"INR": {}, "JPY": {}, "KRW": {}, "MXN": {}, "MYR": {}, "NOK": {}, "NZD": {},
	"PHP": {}, "PKR": {}, "PLN": {}, "RUB": {}, "SEK": {}, "SGD": {}, "THB": {},
	"TRY": {}, "TWD": {}, "ZAR": {}, "USD": {},
}

// builtinIDs maps common ticker symbols straight to their CoinGecko ids. The
// public coin list reuses symbols across thousands of assets, so the majors
// are pinned instead of trusting a lookup.
var builtinIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"BNB":  "binancecoin",
	"USDT": "tether",
	"USDC": "usd-coin",
	"LTC":  "litecoin",
	"XRP":  "ripple",
	"DOGE": "dogecoin",
	"ADA":  "cardano",
	"SOL":  "solana",
	"DOT":  "polkadot",
	"TRX":  "tron",
}

// Converter implements ports.FiatConverter against CoinGecko.
type Converter struct {
	baseURL string
	ttl     time.Duration
	client  *http.Client
	logger  ports.Logger
	now     func() time.Time

	mu     sync.Mutex
	ids    map[string]string // symbol -> CoinGecko id, lazily loaded
	prices map[string]cachedPrice
}

type cachedPrice struct {
	price float64
	at    time.Time
}

// Config holds the rate service settings.
type Config struct {
	BaseURL  string        // Defaults to the public CoinGecko API
	CacheTTL time.Duration // Rate cache lifetime, defaults to 6h
	Timeout  time.Duration // HTTP timeout, defaults to 10s
	Logger   ports.Logger
	Now      func() time.Time
}

// New creates a CoinGecko-backed fiat converter.
func New(cfg Config) (*Converter, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for fiat converter")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Converter{
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		client:  &http.Client{Timeout: timeout},
		logger:  cfg.Logger,
		now:     now,
		prices:  make(map[string]cachedPrice),
	}, nil
}

// ConvertAmount converts a crypto amount into the fiat display currency.
// Returns 0 when no rate is available.
func (c *Converter) ConvertAmount(ctx context.Context, amount float64, cryptoCurrency, fiatCurrency string) float64 {
	crypto := strings.ToUpper(cryptoCurrency)
	fiat := strings.ToUpper(fiatCurrency)
	if crypto == fiat {
		return amount
	}
	return amount * c.price(ctx, crypto, fiat)
}

// price returns the cached or freshly fetched rate of one crypto unit in
// fiat, or 0 when the rate cannot be determined.
func (c *Converter) price(ctx context.Context, crypto, fiat string) float64 {
	op := "price"
	if _, ok := supportedFiat[fiat]; !ok {
		c.logger.Warn(ctx, op+": unsupported fiat display currency", map[string]interface{}{"fiat": fiat})
		return 0
	}

	key := crypto + "/" + fiat
	c.mu.Lock()
	cached, ok := c.prices[key]
	c.mu.Unlock()
	if ok && c.now().Sub(cached.at) < c.ttl {
		return cached.price
	}

	coinID, err := c.coinID(ctx, crypto)
	if err != nil {
		c.logger.Warn(ctx, op+": could not resolve crypto currency", map[string]interface{}{"crypto": crypto, "error": err.Error()})
		return 0
	}

	rate, err := c.fetchPrice(ctx, coinID, fiat)
	if err != nil {
		c.logger.Warn(ctx, op+": rate lookup failed", map[string]interface{}{"pair": key, "error": err.Error()})
		return 0
	}

	c.mu.Lock()
	c.prices[key] = cachedPrice{price: rate, at: c.now()}
	c.mu.Unlock()
	return rate
}

// coinID resolves a ticker symbol to a CoinGecko coin id, loading the public
// coin list on first use for anything not pinned.
func (c *Converter) coinID(ctx context.Context, crypto string) (string, error) {
	if id, ok := builtinIDs[crypto]; ok {
		return id, nil
	}

	c.mu.Lock()
	ids := c.ids
	c.mu.Unlock()

	if ids == nil {
		loaded, err := c.loadCoinList(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.ids = loaded
		ids = loaded
		c.mu.Unlock()
	}

	id, ok := ids[crypto]
	if !ok {
		return "", fmt.Errorf("currency %s not listed by rate service", crypto)
	}
	return id, nil
}

// loadCoinList fetches the symbol to id listing. The first listing of a
// symbol wins, the majors are already pinned in builtinIDs.
func (c *Converter) loadCoinList(ctx context.Context) (map[string]string, error) {
	var listing []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/coins/list", &listing); err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(listing))
	for _, coin := range listing {
		symbol := strings.ToUpper(coin.Symbol)
		if _, ok := ids[symbol]; !ok {
			ids[symbol] = coin.ID
		}
	}
	return ids, nil
}

// fetchPrice queries the simple price endpoint for one coin id in one fiat.
func (c *Converter) fetchPrice(ctx context.Context, coinID, fiat string) (float64, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s", c.baseURL, coinID, strings.ToLower(fiat))

	var quotes map[string]map[string]float64
	if err := c.getJSON(ctx, url, &quotes); err != nil {
		return 0, err
	}

	rate, ok := quotes[coinID][strings.ToLower(fiat)]
	if !ok {
		return 0, fmt.Errorf("no %s quote for %s in response", fiat, coinID)
	}
	return rate, nil
}

func (c *Converter) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rate service returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
