package whitelist

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"coinpilot/internal/domain"
	"coinpilot/internal/ports"
)

// defaultCacheTTL bounds exchange call volume for the all-markets ticker
// scan behind dynamic ranking.
const defaultCacheTTL = 30 * time.Minute

// Config holds the pair selection parameters.
type Config struct {
	StakeCurrency string        // Quote currency tradable pairs must settle in
	Blacklist     []string      // Pairs never traded, wins over any whitelist
	CacheTTL      time.Duration // Dynamic ranking cache lifetime; defaults to 30m
	Now           func() time.Time
}

// Generator produces and sanitizes the list of tradable pairs. The dynamic
// volume ranking is cached per quote currency so the expensive all-markets
// ticker call runs at most once per TTL window.
type Generator struct {
	cfg       Config
	exchange  ports.ExchangeClient
	logger    ports.Logger
	blacklist map[string]struct{}
	now       func() time.Time

	mu          sync.Mutex
	cached      []string
	cachedAt    time.Time
	cachedQuote string
}

// New creates a new Generator instance.
func New(cfg Config, exchange ports.ExchangeClient, logger ports.Logger) (*Generator, error) {
	if exchange == nil {
		return nil, fmt.Errorf("exchange client is required for whitelist generator")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for whitelist generator")
	}
	if cfg.StakeCurrency == "" {
		return nil, fmt.Errorf("stake currency is required for whitelist generator")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	blacklist := make(map[string]struct{}, len(cfg.Blacklist))
	for _, pair := range cfg.Blacklist {
		blacklist[pair] = struct{}{}
	}
	return &Generator{
		cfg:       cfg,
		exchange:  exchange,
		logger:    logger,
		blacklist: blacklist,
		now:       now,
	}, nil
}

// DynamicList returns every pair quoted in the stake currency, ranked by
// 24h quote volume, highest first. Results are cached for the TTL window.
func (g *Generator) DynamicList(ctx context.Context) ([]string, error) {
	op := "DynamicList"

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cachedQuote == g.cfg.StakeCurrency && g.now().Sub(g.cachedAt) < g.cfg.CacheTTL {
		return g.cached, nil
	}

	tickers, err := g.exchange.GetTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	ranked := make([]*domain.TickerStats, 0, len(tickers))
	for _, t := range tickers {
		if domain.PairQuote(t.Symbol) == g.cfg.StakeCurrency {
			ranked = append(ranked, t)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].QuoteVolume > ranked[j].QuoteVolume
	})

	pairs := make([]string, len(ranked))
	for i, t := range ranked {
		pairs[i] = t.Symbol
	}

	g.cached = pairs
	g.cachedAt = g.now()
	g.cachedQuote = g.cfg.StakeCurrency
	g.logger.Debug(ctx, op+": refreshed volume ranking", map[string]interface{}{
		"quote": g.cfg.StakeCurrency,
		"pairs": len(pairs),
	})
	return pairs, nil
}

// Sanitize filters a whitelist against the exchange's markets: pairs must be
// known, active, quoted in the stake currency and not blacklisted. Relative
// order of the surviving pairs is preserved.
func (g *Generator) Sanitize(ctx context.Context, whitelist []string) ([]string, error) {
	op := "Sanitize"

	markets, err := g.exchange.GetMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	wanted := make(map[string]struct{}, len(whitelist))
	for _, pair := range whitelist {
		wanted[pair] = struct{}{}
	}

	known := make(map[string]struct{})
	for _, market := range markets {
		if market.Quote != g.cfg.StakeCurrency {
			continue
		}
		pair := market.Symbol
		if _, ok := wanted[pair]; !ok {
			continue
		}
		if _, ok := g.blacklist[pair]; ok {
			continue
		}
		if !market.Active {
			g.logger.Info(ctx, op+": ignoring pair from whitelist, market is not active", map[string]interface{}{"pair": pair})
			continue
		}
		known[pair] = struct{}{}
	}

	sanitized := make([]string, 0, len(whitelist))
	for _, pair := range whitelist {
		if _, ok := known[pair]; ok {
			sanitized = append(sanitized, pair)
		}
	}
	return sanitized, nil
}

// Refresh produces the tick's tradable pair list: the dynamic volume ranking
// when nbAssets is positive, the static list otherwise, sanitized against the
// exchange and truncated to nbAssets.
func (g *Generator) Refresh(ctx context.Context, static []string, nbAssets int) ([]string, error) {
	source := static
	if nbAssets > 0 {
		dynamic, err := g.DynamicList(ctx)
		if err != nil {
			return nil, err
		}
		source = dynamic
	}

	sanitized, err := g.Sanitize(ctx, source)
	if err != nil {
		return nil, err
	}
	if nbAssets > 0 && len(sanitized) > nbAssets {
		sanitized = sanitized[:nbAssets]
	}
	return sanitized, nil
}
