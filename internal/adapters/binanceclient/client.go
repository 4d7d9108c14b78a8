package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"coinpilot/internal/domain"
	"coinpilot/internal/ports"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	// marketsTTL bounds how often the exchange info endpoint is hit. Market
	// metadata (symbols, precision filters) rarely changes intraday.
	marketsTTL = 30 * time.Minute
)

// Client implements the ports.ExchangeClient interface for Binance spot
// markets using the go-binance library.
type Client struct {
	api    *binance.Client
	logger ports.Logger

	mu        sync.RWMutex
	markets   map[string]*marketInfo // keyed by raw exchange symbol (e.g. "ETHBTC")
	marketsAt time.Time
}

// marketInfo carries the per-symbol metadata needed to translate symbols and
// to satisfy the exchange's order filters.
type marketInfo struct {
	pair     string // BASE/QUOTE form
	quote    string
	active   bool
	stepSize float64 // LOT_SIZE quantity step, 0 when not reported
	tickSize float64 // PRICE_FILTER price step, 0 when not reported
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance spot client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the global binance.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{
		api:    client,
		logger: cfg.Logger,
	}, nil
}

// Name returns the exchange identifier recorded on trades.
func (c *Client) Name() string {
	return "binance"
}

// handleError translates Binance API errors into the standardized error
// categories. Unmapped API rejections stop the bot, unmapped transport
// failures are retried.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1000, -1001, -1006, -1016: // Internal error, disconnected, unexpected response
			mappedErr = ports.ErrExchangeUnavailable
		case -1003, -1015: // Too many requests / too many orders
			mappedErr = ports.ErrRateLimited
		case -1007, -1021: // Gateway timeout, timestamp outside recvWindow
			mappedErr = ports.ErrTimeout
		case -1002, -1022, -2014, -2015: // Unauthorized, bad signature, bad API key
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1112, -1115,
			-1116, -1117, -1118, -1120, -1121, -1125, -1127, -1128, -1130, -1013:
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected; the message tells why
			if strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance") {
				mappedErr = ports.ErrInsufficientFunds
			} else {
				mappedErr = ports.ErrOrderPlacementFailed
			}
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		default:
			mappedErr = ports.ErrOperational
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s canceled: %w", operation, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		// Transport and decoding failures are worth a retry.
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTemporary, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	_, err := c.api.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.api.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetTicker retrieves the current best bid/ask, last price and the 24h
// high/low for a pair.
func (c *Client) GetTicker(ctx context.Context, pair string) (*domain.Ticker, error) {
	op := "GetTicker"
	stats, err := c.api.NewListPriceChangeStatsService().Symbol(toSymbol(pair)).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("%s: no ticker data for %s: %w", op, pair, ports.ErrInvalidRequest)
	}

	ticker, err := translateTicker(stats[0])
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return ticker, nil
}

// GetOrderBook retrieves up to depth levels of the order book for a pair.
func (c *Client) GetOrderBook(ctx context.Context, pair string, depth int) (*domain.OrderBook, error) {
	op := "GetOrderBook"
	res, err := c.api.NewDepthService().Symbol(toSymbol(pair)).Limit(depth).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	book := &domain.OrderBook{
		Bids: make([]domain.BookLevel, 0, len(res.Bids)),
		Asks: make([]domain.BookLevel, 0, len(res.Asks)),
	}
	for _, bid := range res.Bids {
		level, err := translateBookLevel(bid.Price, bid.Quantity)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		book.Bids = append(book.Bids, level)
	}
	for _, ask := range res.Asks {
		level, err := translateBookLevel(ask.Price, ask.Quantity)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		book.Asks = append(book.Asks, level)
	}
	return book, nil
}

// GetTickers retrieves 24h rolling statistics for every market. Symbols that
// cannot be mapped to a known market are skipped.
func (c *Client) GetTickers(ctx context.Context) ([]*domain.TickerStats, error) {
	op := "GetTickers"
	if err := c.refreshMarkets(ctx); err != nil {
		return nil, err
	}

	stats, err := c.api.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	out := make([]*domain.TickerStats, 0, len(stats))
	for _, s := range stats {
		pair := c.pairFor(s.Symbol)
		if pair == "" {
			continue
		}
		volume, err := strconv.ParseFloat(s.QuoteVolume, 64)
		if err != nil {
			c.logger.Debug(ctx, op+": skipping symbol with unparsable volume", map[string]interface{}{"symbol": s.Symbol, "quoteVolume": s.QuoteVolume})
			continue
		}
		out = append(out, &domain.TickerStats{Symbol: pair, QuoteVolume: volume})
	}
	return out, nil
}

// GetMarkets retrieves the markets known to the exchange.
func (c *Client) GetMarkets(ctx context.Context) ([]*domain.Market, error) {
	if err := c.refreshMarkets(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	markets := make([]*domain.Market, 0, len(c.markets))
	for _, info := range c.markets {
		markets = append(markets, &domain.Market{
			Symbol: info.pair,
			Quote:  info.quote,
			Active: info.active,
		})
	}
	return markets, nil
}

// GetKlines retrieves up to limit historical candles for a pair, oldest first.
func (c *Client) GetKlines(ctx context.Context, pair, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	raw, err := c.api.NewKlinesService().Symbol(toSymbol(pair)).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	klines := make([]*domain.Kline, 0, len(raw))
	for _, k := range raw {
		dk, err := translateKline(k, pair, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		klines = append(klines, dk)
	}
	return klines, nil
}

// Buy places a limit buy order and returns the exchange-assigned order id.
func (c *Client) Buy(ctx context.Context, pair string, rate, amount float64) (string, error) {
	return c.placeOrder(ctx, "Buy", binance.SideTypeBuy, pair, rate, amount)
}

// Sell places a limit sell order and returns the exchange-assigned order id.
func (c *Client) Sell(ctx context.Context, pair string, rate, amount float64) (string, error) {
	return c.placeOrder(ctx, "Sell", binance.SideTypeSell, pair, rate, amount)
}

func (c *Client) placeOrder(ctx context.Context, op string, side binance.SideType, pair string, rate, amount float64) (string, error) {
	quantity, price := c.formatOrderValues(ctx, pair, rate, amount)

	order, err := c.api.NewCreateOrderService().
		Symbol(toSymbol(pair)).
		Side(side).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(quantity).
		Price(price).
		Do(ctx)
	if err != nil {
		return "", c.handleError(ctx, err, op)
	}

	orderID := strconv.FormatInt(order.OrderID, 10)
	c.logger.Info(ctx, op+" order placed", map[string]interface{}{
		"pair": pair, "price": price, "quantity": quantity, "orderID": orderID, "status": string(order.Status),
	})
	return orderID, nil
}

// CancelOrder cancels an open order by its id.
func (c *Client) CancelOrder(ctx context.Context, orderID, pair string) error {
	op := "CancelOrder"
	id, err := parseOrderID(orderID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = c.api.NewCancelOrderService().Symbol(toSymbol(pair)).OrderID(id).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"pair": pair, "orderID": orderID})
	return nil
}

// GetOrder retrieves the current state of an order by its id. Binance does
// not attribute fees at the order level, so the fee fields stay empty and the
// caller falls back to the trade history.
func (c *Client) GetOrder(ctx context.Context, orderID, pair string) (*domain.Order, error) {
	op := "GetOrder"
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	order, err := c.api.NewGetOrderService().Symbol(toSymbol(pair)).OrderID(id).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	translated, err := translateOrder(order, pair)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translated, nil
}

// GetTradesForOrder retrieves the fills belonging to an order, executed at or
// after the given time. The exchange only filters by symbol and time, the
// order id match happens here.
func (c *Client) GetTradesForOrder(ctx context.Context, orderID, pair string, since time.Time) ([]*domain.Fill, error) {
	op := "GetTradesForOrder"
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	svc := c.api.NewListTradesService().Symbol(toSymbol(pair))
	if !since.IsZero() {
		svc = svc.StartTime(since.UnixMilli())
	}
	trades, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	fills := make([]*domain.Fill, 0, len(trades))
	for _, t := range trades {
		if t.OrderID != id {
			continue
		}
		amount, err := strconv.ParseFloat(t.Quantity, 64)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("parsing fill quantity '%s': %w", t.Quantity, err), op)
		}
		feeCost, err := strconv.ParseFloat(t.Commission, 64)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("parsing fill commission '%s': %w", t.Commission, err), op)
		}
		fills = append(fills, &domain.Fill{
			OrderID:     orderID,
			Amount:      amount,
			FeeCurrency: t.CommissionAsset,
			FeeCost:     feeCost,
			Time:        time.UnixMilli(t.Time),
		})
	}
	return fills, nil
}

// GetFee returns the account's fee fraction for the given liquidity role.
// Binance reports commissions in basis points.
func (c *Client) GetFee(ctx context.Context, pair, takerOrMaker string) (float64, error) {
	op := "GetFee"
	account, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	commission := account.TakerCommission
	if takerOrMaker == ports.FeeMaker {
		commission = account.MakerCommission
	}
	return float64(commission) / 10000, nil
}

// GetBalance retrieves the free balance for a currency. A currency absent
// from the account is simply an empty wallet.
func (c *Client) GetBalance(ctx context.Context, currency string) (float64, error) {
	op := "GetBalance"
	account, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Balances {
		if bal.Asset != currency {
			continue
		}
		free, err := strconv.ParseFloat(bal.Free, 64)
		if err != nil {
			return 0, c.handleError(ctx, fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.Free, currency, err), op)
		}
		return free, nil
	}

	c.logger.Debug(ctx, op+": currency not present in account, treating as zero", map[string]interface{}{"currency": currency})
	return 0, nil
}

// refreshMarkets reloads the market metadata cache when it has expired.
func (c *Client) refreshMarkets(ctx context.Context) error {
	op := "refreshMarkets"

	c.mu.RLock()
	fresh := c.markets != nil && time.Since(c.marketsAt) < marketsTTL
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}

	markets := make(map[string]*marketInfo, len(info.Symbols))
	for i := range info.Symbols {
		s := &info.Symbols[i]
		m := &marketInfo{
			pair:   s.BaseAsset + "/" + s.QuoteAsset,
			quote:  s.QuoteAsset,
			active: s.Status == "TRADING",
		}
		if f := s.LotSizeFilter(); f != nil {
			m.stepSize, _ = strconv.ParseFloat(f.StepSize, 64)
		}
		if f := s.PriceFilter(); f != nil {
			m.tickSize, _ = strconv.ParseFloat(f.TickSize, 64)
		}
		markets[s.Symbol] = m
	}

	c.mu.Lock()
	c.markets = markets
	c.marketsAt = time.Now()
	c.mu.Unlock()

	c.logger.Debug(ctx, op+": market metadata refreshed", map[string]interface{}{"markets": len(markets)})
	return nil
}

// pairFor maps a raw exchange symbol onto its BASE/QUOTE pair, or "" when the
// symbol is not in the market cache.
func (c *Client) pairFor(symbol string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if info, ok := c.markets[symbol]; ok {
		return info.pair
	}
	return ""
}

// formatOrderValues renders quantity and price against the market's lot and
// tick filters. Without cached metadata it falls back to 8 decimals, the
// finest precision Binance accepts.
func (c *Client) formatOrderValues(ctx context.Context, pair string, rate, amount float64) (quantity, price string) {
	var step, tick float64
	if err := c.refreshMarkets(ctx); err == nil {
		c.mu.RLock()
		if info, ok := c.markets[toSymbol(pair)]; ok {
			step, tick = info.stepSize, info.tickSize
		}
		c.mu.RUnlock()
	}
	return formatToStep(amount, step), formatToStep(rate, tick)
}

// --- Translation Helpers ---

// toSymbol converts a BASE/QUOTE pair into the exchange's symbol form.
func toSymbol(pair string) string {
	return strings.ReplaceAll(pair, "/", "")
}

func parseOrderID(orderID string) (int64, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid order id %q: %w", orderID, ports.ErrInvalidRequest)
	}
	return id, nil
}

func translateTicker(s *binance.PriceChangeStats) (*domain.Ticker, error) {
	ask, err := strconv.ParseFloat(s.AskPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing ask price '%s': %w", s.AskPrice, err)
	}
	bid, err := strconv.ParseFloat(s.BidPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing bid price '%s': %w", s.BidPrice, err)
	}
	last, err := strconv.ParseFloat(s.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing last price '%s': %w", s.LastPrice, err)
	}
	high, err := strconv.ParseFloat(s.HighPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", s.HighPrice, err)
	}
	low, err := strconv.ParseFloat(s.LowPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", s.LowPrice, err)
	}
	return &domain.Ticker{Ask: ask, Bid: bid, Last: last, High: high, Low: low}, nil
}

func translateBookLevel(priceStr, sizeStr string) (domain.BookLevel, error) {
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.BookLevel{}, fmt.Errorf("parsing book price '%s': %w", priceStr, err)
	}
	size, err := strconv.ParseFloat(sizeStr, 64)
	if err != nil {
		return domain.BookLevel{}, fmt.Errorf("parsing book size '%s': %w", sizeStr, err)
	}
	return domain.BookLevel{Price: price, Size: size}, nil
}

func translateKline(k *binance.Kline, pair, interval string) (*domain.Kline, error) {
	if k == nil {
		return nil, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(k.OpenTime),
		CloseTime: time.UnixMilli(k.CloseTime),
		Pair:      pair,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}

func translateOrder(o *binance.Order, pair string) (*domain.Order, error) {
	if o == nil {
		return nil, errors.New("received nil order")
	}
	price, err := strconv.ParseFloat(o.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing order price '%s': %w", o.Price, err)
	}
	amount, err := strconv.ParseFloat(o.OrigQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing order quantity '%s': %w", o.OrigQuantity, err)
	}
	executed, err := strconv.ParseFloat(o.ExecutedQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing executed quantity '%s': %w", o.ExecutedQuantity, err)
	}

	return &domain.Order{
		ID:        strconv.FormatInt(o.OrderID, 10),
		Pair:      pair,
		Side:      domain.OrderSide(o.Side),
		Status:    translateStatus(o.Status),
		Price:     price,
		Amount:    amount,
		Remaining: amount - executed,
		Time:      time.UnixMilli(o.Time),
	}, nil
}

func translateStatus(status binance.OrderStatusType) domain.OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePartiallyFilled, binance.OrderStatusTypePendingCancel:
		return domain.OrderStatusOpen
	case binance.OrderStatusTypeFilled:
		return domain.OrderStatusClosed
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeRejected:
		return domain.OrderStatusCanceled
	case binance.OrderStatusTypeExpired:
		return domain.OrderStatusExpired
	default:
		// Treat unknown states as still open so no decision is taken on them.
		return domain.OrderStatusOpen
	}
}

// formatToStep floors v to a multiple of step and renders it with the step's
// precision. A zero step falls back to 8 decimals.
func formatToStep(v, step float64) string {
	if step <= 0 {
		return strconv.FormatFloat(v, 'f', 8, 64)
	}
	floored := math.Floor(v/step+1e-9) * step
	return strconv.FormatFloat(floored, 'f', stepDecimals(step), 64)
}

// stepDecimals counts the decimal places of an exchange filter step
// (0.001 -> 3).
func stepDecimals(step float64) int {
	d := 0
	for step < 0.9999 && d < 8 {
		step *= 10
		d++
	}
	return d
}
