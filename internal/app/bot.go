// Package app hosts the bot's control loop. It owns the run state, paces
// iterations, translates error categories into retry-or-stop behaviour and
// takes care of orderly shutdown on interrupt.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"coinpilot/config"
	"coinpilot/internal/domain"
	"coinpilot/internal/metrics"
	"coinpilot/internal/ports"
	"coinpilot/internal/stake"
)

const (
	// retryDelay is how long the loop backs off after a temporary exchange
	// error before trying again.
	retryDelay = 30 * time.Second

	// stoppedPoll is the idle delay between state checks while stopped.
	stoppedPoll = time.Second
)

// Trader runs one full pass of the trading logic and reports how many trades
// are open afterwards.
type Trader interface {
	Tick(ctx context.Context) (int, error)
}

// Bot drives a Trader at a steady pace and reacts to its failures. It is the
// piece that decides whether the process keeps trading, waits, or stops.
type Bot struct {
	cfg      *config.Config
	trader   Trader
	exchange ports.ExchangeClient
	notifier ports.Notifier
	sizer    *stake.Sizer
	metrics  *metrics.Metrics
	logger   ports.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)

	mu    sync.Mutex
	state domain.State
}

// New validates the dependencies and assembles a Bot in the configured
// initial state. sizer and m may be nil, they only feed the metrics gauges.
func New(cfg *config.Config, trader Trader, exchange ports.ExchangeClient, notifier ports.Notifier, sizer *stake.Sizer, m *metrics.Metrics, logger ports.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if trader == nil {
		return nil, errors.New("trader is required")
	}
	if exchange == nil {
		return nil, errors.New("exchange client is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	state := cfg.InitialState
	if state == "" {
		state = domain.StateRunning
	}
	return &Bot{
		cfg:      cfg,
		trader:   trader,
		exchange: exchange,
		notifier: notifier,
		sizer:    sizer,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
		state:    state,
	}, nil
}

// Run owns the bot process. It connects to the exchange, then loops the
// worker until the context is cancelled or an interrupt arrives.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			b.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := b.init(ctx); err != nil {
		return err
	}

	var last domain.State
	for {
		select {
		case <-ctx.Done():
			b.logger.Info(ctx, "Shutting down trader")
			// The run context is gone. Use a fresh one so the farewell
			// message can still go out.
			b.notifier.Send(context.Background(), "*Status:* `stopped`")
			return nil
		default:
			last = b.worker(ctx, last)
		}
	}
}

// init brings the exchange connection up before the first pass. A failure
// here is fatal, nothing can trade without a reachable exchange.
func (b *Bot) init(ctx context.Context) error {
	if err := b.exchange.SetServerTime(ctx); err != nil {
		return fmt.Errorf("exchange time sync failed: %w", err)
	}
	if err := b.exchange.Ping(ctx); err != nil {
		return fmt.Errorf("exchange ping failed: %w", err)
	}
	b.logger.Info(ctx, "Connected to exchange", map[string]interface{}{"exchange": b.exchange.Name()})
	return nil
}

// worker runs one control-loop pass and returns the state it saw, so the
// next pass can detect transitions.
func (b *Bot) worker(ctx context.Context, old domain.State) domain.State {
	state := b.State()
	if state != old {
		b.logger.Info(ctx, "Changing state", map[string]interface{}{"state": string(state)})
		b.metrics.SetRunning(state == domain.StateRunning)
		b.notifier.Send(ctx, fmt.Sprintf("*Status:* `%s`", state))
		if state == domain.StateRunning {
			b.notifier.Send(ctx, b.startupSummary())
		}
	}

	switch state {
	case domain.StateStopped:
		b.sleep(ctx, stoppedPoll)
	case domain.StateRunning:
		b.throttle(ctx, b.processOnce, time.Duration(b.cfg.ThrottleSecs)*time.Second)
	}
	return state
}

// throttle invokes fn and then sleeps for whatever remains of minInterval,
// so every running-state pass takes at least that long.
func (b *Bot) throttle(ctx context.Context, fn func(context.Context), minInterval time.Duration) {
	start := b.now()
	fn(ctx)
	if wait := minInterval - b.now().Sub(start); wait > 0 {
		b.logger.Debug(ctx, "Throttling main loop", map[string]interface{}{"seconds": wait.Seconds()})
		b.sleep(ctx, wait)
	}
}

// processOnce runs a single trading pass and maps the error category onto
// loop behaviour. Temporary errors get a delayed retry, anything else stops
// the bot until an operator intervenes.
func (b *Bot) processOnce(ctx context.Context) {
	openTrades, err := b.trader.Tick(ctx)
	if err == nil {
		b.recordTick(ctx, openTrades)
		return
	}
	if ctx.Err() != nil {
		// Shutting down, not a trading failure.
		return
	}
	if errors.Is(err, ports.ErrTemporary) {
		b.metrics.TickFailed("temporary")
		b.logger.Warn(ctx, "Temporary exchange error, retrying in 30 seconds", map[string]interface{}{"error": err.Error()})
		b.sleep(ctx, retryDelay)
		return
	}
	b.metrics.TickFailed("operational")
	b.logger.Error(ctx, err, "Operational error, stopping trader")
	b.notifier.Send(ctx, fmt.Sprintf(
		"*Status:* OperationalException:\n```\n%v\n```Issue `/start` if you think it is safe to restart.", err))
	b.SetState(domain.StateStopped)
}

// recordTick refreshes the metrics after a clean pass.
func (b *Bot) recordTick(ctx context.Context, openTrades int) {
	if b.metrics == nil {
		return
	}
	b.metrics.TickCompleted(openTrades)
	if b.sizer == nil {
		return
	}
	profit, _, err := b.sizer.ProfitsFees(ctx)
	if err != nil {
		b.logger.Debug(ctx, "Could not refresh realized profit gauge", map[string]interface{}{"error": err.Error()})
		return
	}
	b.metrics.SetRealizedProfit(profit)
}

// startupSummary describes the live configuration when trading begins.
func (b *Bot) startupSummary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Exchange:* `%s`\n", b.exchange.Name())
	fmt.Fprintf(&sb, "*Stake per trade:* `%v %s`\n", b.cfg.StakeAmount, b.cfg.StakeCurrency)
	fmt.Fprintf(&sb, "*Max open trades:* `%d`\n", b.cfg.MaxOpenTrades)
	fmt.Fprintf(&sb, "*Ticker interval:* `%s`", b.cfg.TickerInterval)
	if b.cfg.DryRun {
		sb.WriteString("\n*Warning:* Dry run is enabled. All trades are simulated.")
	}
	return sb.String()
}

// State returns the bot's current run state.
func (b *Bot) State() domain.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetState moves the bot into the given run state. The change takes effect
// at the top of the next worker pass.
func (b *Bot) SetState(s domain.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
