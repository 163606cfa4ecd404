package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/tgparkk/trading-bot-sub001/internal/indicator"
	"github.com/tgparkk/trading-bot-sub001/internal/signal"
	"github.com/tgparkk/trading-bot-sub001/internal/window"
)

// Momentum signals in the direction of the window's net price move once it
// exceeds a threshold, with confidence discounted by choppiness.
type Momentum struct {
	store     *window.Store
	threshold float64
}

// NewMomentum builds a momentum strategy over the shared window store.
func NewMomentum(store *window.Store, threshold float64) *Momentum {
	if threshold <= 0 {
		threshold = 0.002
	}
	return &Momentum{store: store, threshold: threshold}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) GetSignal(ctx context.Context, symbol string) (*signal.StrategySignal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ticks := m.store.Ticks(symbol)
	if len(ticks) < m.store.Capacity() {
		return nil, nil
	}

	mom := indicator.Momentum(ticks)
	if math.Abs(mom) < m.threshold {
		return nil, nil
	}

	// A trend with low tick-to-tick noise is more trustworthy than the
	// same net move made of whipsaws.
	vol := indicator.Volatility(ticks)
	confidence := 1.0
	if vol > 0 {
		confidence = clamp01(math.Abs(mom) / (vol * float64(len(ticks)-1)))
	}

	direction := signal.Buy
	if mom < 0 {
		direction = signal.Sell
	}
	return &signal.StrategySignal{
		Direction:  direction,
		Strength:   clampScore(math.Abs(mom) / m.threshold * 3),
		Confidence: confidence,
		Reason:     fmt.Sprintf("momentum %.4f", mom),
		Ts:         ticks[len(ticks)-1].Ts,
	}, nil
}
