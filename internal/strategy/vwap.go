package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/tgparkk/trading-bot-sub001/internal/signal"
	"github.com/tgparkk/trading-bot-sub001/internal/window"
)

// VWAP signals when price deviates from the window's volume-weighted
// average price by more than a threshold.
type VWAP struct {
	store     *window.Store
	deviation float64
}

// NewVWAP builds a vwap-reversion strategy over the shared window store.
func NewVWAP(store *window.Store, deviation float64) *VWAP {
	if deviation <= 0 {
		deviation = 0.003
	}
	return &VWAP{store: store, deviation: deviation}
}

func (v *VWAP) Name() string { return "vwap" }

func (v *VWAP) GetSignal(ctx context.Context, symbol string) (*signal.StrategySignal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ticks := v.store.Ticks(symbol)
	if len(ticks) < v.store.Capacity() {
		return nil, nil
	}

	var notional, volume float64
	for _, tk := range ticks {
		notional += tk.Price * float64(tk.Volume)
		volume += float64(tk.Volume)
	}
	if volume == 0 {
		return nil, nil
	}
	vwap := notional / volume

	latest := ticks[len(ticks)-1]
	dev := (latest.Price - vwap) / vwap
	if math.Abs(dev) < v.deviation {
		return nil, nil
	}

	// Trading above vwap on sustained volume reads as accumulation.
	direction := signal.Buy
	if dev < 0 {
		direction = signal.Sell
	}
	return &signal.StrategySignal{
		Direction:  direction,
		Strength:   clampScore(math.Abs(dev) / v.deviation * 3),
		Confidence: clamp01(math.Abs(dev) / (v.deviation * 2)),
		Reason:     fmt.Sprintf("%.2f%% from vwap %.0f", dev*100, vwap),
		Ts:         latest.Ts,
	}, nil
}
