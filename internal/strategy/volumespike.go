package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/tgparkk/trading-bot-sub001/internal/indicator"
	"github.com/tgparkk/trading-bot-sub001/internal/signal"
	"github.com/tgparkk/trading-bot-sub001/internal/window"
)

// VolumeSpike signals when recent volume surges past the window average,
// taking direction from the concurrent price move.
type VolumeSpike struct {
	store      *window.Store
	multiplier float64
}

// NewVolumeSpike builds a volume-surge strategy over the shared window store.
func NewVolumeSpike(store *window.Store, multiplier float64) *VolumeSpike {
	if multiplier <= 0 {
		multiplier = 1.5
	}
	return &VolumeSpike{store: store, multiplier: multiplier}
}

func (v *VolumeSpike) Name() string { return "volume" }

func (v *VolumeSpike) GetSignal(ctx context.Context, symbol string) (*signal.StrategySignal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ticks := v.store.Ticks(symbol)
	if len(ticks) < v.store.Capacity() {
		return nil, nil
	}

	surge := indicator.VolumeSurge(ticks, v.store.Capacity())
	if surge < v.multiplier {
		return nil, nil
	}

	mom := indicator.Momentum(ticks)
	if mom == 0 {
		return nil, nil
	}
	direction := signal.Buy
	if mom < 0 {
		direction = signal.Sell
	}
	return &signal.StrategySignal{
		Direction:  direction,
		Strength:   clampScore(surge / v.multiplier * 3),
		Confidence: clamp01(math.Abs(mom) * 100),
		Reason:     fmt.Sprintf("volume surge %.2fx", surge),
		Ts:         ticks[len(ticks)-1].Ts,
	}, nil
}
