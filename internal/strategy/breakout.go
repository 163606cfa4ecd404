package strategy

import (
	"context"
	"fmt"

	"github.com/tgparkk/trading-bot-sub001/internal/signal"
	"github.com/tgparkk/trading-bot-sub001/internal/window"
)

// Breakout signals when the latest price clears the high or low of the
// buffered window by a configured margin.
type Breakout struct {
	store  *window.Store
	margin float64
}

// NewBreakout builds a breakout strategy over the shared window store.
func NewBreakout(store *window.Store, margin float64) *Breakout {
	if margin <= 0 {
		margin = 0.002
	}
	return &Breakout{store: store, margin: margin}
}

func (b *Breakout) Name() string { return "breakout" }

// GetSignal compares the newest price against the rest of the window.
func (b *Breakout) GetSignal(ctx context.Context, symbol string) (*signal.StrategySignal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ticks := b.store.Ticks(symbol)
	if len(ticks) < b.store.Capacity() {
		return nil, nil
	}

	latest := ticks[len(ticks)-1]
	high, low := ticks[0].Price, ticks[0].Price
	for _, tk := range ticks[:len(ticks)-1] {
		if tk.Price > high {
			high = tk.Price
		}
		if tk.Price < low {
			low = tk.Price
		}
	}
	if high == 0 || low == 0 {
		return nil, nil
	}

	if up := (latest.Price - high) / high; up >= b.margin {
		return &signal.StrategySignal{
			Direction:  signal.Buy,
			Strength:   clampScore(up / b.margin * 5),
			Confidence: clamp01(up / (b.margin * 2)),
			Reason:     fmt.Sprintf("breakout above %.0f", high),
			Ts:         latest.Ts,
		}, nil
	}
	if down := (low - latest.Price) / low; down >= b.margin {
		return &signal.StrategySignal{
			Direction:  signal.Sell,
			Strength:   clampScore(down / b.margin * 5),
			Confidence: clamp01(down / (b.margin * 2)),
			Reason:     fmt.Sprintf("breakdown below %.0f", low),
			Ts:         latest.Ts,
		}, nil
	}
	return nil, nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
