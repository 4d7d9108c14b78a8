package stake

import (
	"context"
	"fmt"

	"coinpilot/internal/ports"
	"coinpilot/internal/utils"
)

// Config holds the sizing parameters.
type Config struct {
	StakeAmount   float64 // Configured stake per trade, in stake currency
	MaxOpenTrades int     // Concurrent open trade limit
	HighRisk      bool    // Compound realized profits into the stake
	BotID         int     // Owner of the trades aggregated for compounding
}

// Sizer computes the stake for the next trade. In high-risk mode the
// configured stake grows with realized profits, net of estimated round-trip
// fees, as long as open slots remain.
type Sizer struct {
	cfg    Config
	repo   ports.TradeRepository
	logger ports.Logger
}

// New creates a new Sizer instance.
func New(cfg Config, repo ports.TradeRepository, logger ports.Logger) (*Sizer, error) {
	if repo == nil {
		return nil, fmt.Errorf("trade repository is required for stake sizer")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for stake sizer")
	}
	if cfg.StakeAmount <= 0 {
		return nil, fmt.Errorf("stake amount must be positive")
	}
	return &Sizer{cfg: cfg, repo: repo, logger: logger}, nil
}

// Stake returns the stake for the next trade given the current number of open
// trades. Without high-risk mode this is always the configured amount.
func (s *Sizer) Stake(ctx context.Context, openTrades int) (float64, error) {
	op := "Stake"

	stake := s.cfg.StakeAmount
	if !s.cfg.HighRisk {
		return stake, nil
	}

	tradesLeft := s.cfg.MaxOpenTrades - openTrades
	if tradesLeft <= 0 {
		return stake, nil
	}

	profits, meanFee, err := s.ProfitsFees(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w", op, err)
	}
	if profits <= 0 {
		return stake, nil
	}

	// Growth fraction measured against the initial balance, one stake per
	// slot, less the estimated fees of one more round trip. Truncated to
	// whole percents before scaling.
	initial := stake * float64(s.cfg.MaxOpenTrades)
	pct := (initial+profits)/initial - 1 - meanFee*2
	scaled := utils.Trunc(stake*(1+utils.Trunc(pct, 2)), 8)

	s.logger.Info(ctx, op+": scaling stake with realized profits", map[string]interface{}{
		"baseStake": stake,
		"profits":   profits,
		"meanFee":   meanFee,
		"stake":     scaled,
	})
	return scaled, nil
}

// ProfitsFees aggregates the absolute realized profit across the bot's closed
// trades and the mean opening fee fraction paid on them. With no closed
// trades both are 0.
func (s *Sizer) ProfitsFees(ctx context.Context) (float64, float64, error) {
	trades, err := s.repo.FindAll(ctx, s.cfg.BotID)
	if err != nil {
		return 0, 0, err
	}

	var profits, feeSum float64
	var closed int
	for _, trade := range trades {
		if trade.IsOpen || trade.CloseRate == 0 {
			continue
		}
		profits += trade.Profit(trade.CloseRate)
		feeSum += trade.FeeOpen
		closed++
	}
	if closed == 0 {
		return 0, 0, nil
	}
	return profits, feeSum / float64(closed), nil
}
