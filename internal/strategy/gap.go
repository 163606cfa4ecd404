package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/tgparkk/trading-bot-sub001/internal/broker"
	"github.com/tgparkk/trading-bot-sub001/internal/indicator"
	"github.com/tgparkk/trading-bot-sub001/internal/signal"
	"github.com/tgparkk/trading-bot-sub001/internal/window"
)

// Gap signals on a sizeable gap from the previous close, confirmed by
// intraday momentum in the same direction.
type Gap struct {
	store     *window.Store
	transport broker.TradingTransport
	minGap    float64
}

// NewGap builds a gap strategy. The transport supplies the previous close.
func NewGap(store *window.Store, transport broker.TradingTransport, minGap float64) *Gap {
	if minGap <= 0 {
		minGap = 0.01
	}
	return &Gap{store: store, transport: transport, minGap: minGap}
}

func (g *Gap) Name() string { return "gap" }

func (g *Gap) GetSignal(ctx context.Context, symbol string) (*signal.StrategySignal, error) {
	ticks := g.store.Ticks(symbol)
	if len(ticks) < g.store.Capacity() {
		return nil, nil
	}

	quote, err := g.transport.SymbolQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if quote.PrevClose <= 0 {
		return nil, nil
	}

	latest := ticks[len(ticks)-1]
	gap := (latest.Price - quote.PrevClose) / quote.PrevClose
	if math.Abs(gap) < g.minGap {
		return nil, nil
	}

	// Only act when the intraday move confirms the gap direction.
	mom := indicator.Momentum(ticks)
	if gap > 0 && mom < 0 {
		return nil, nil
	}
	if gap < 0 && mom > 0 {
		return nil, nil
	}

	direction := signal.Buy
	if gap < 0 {
		direction = signal.Sell
	}
	return &signal.StrategySignal{
		Direction:  direction,
		Strength:   clampScore(math.Abs(gap) / g.minGap * 4),
		Confidence: clamp01(math.Abs(mom) / g.minGap),
		Reason:     fmt.Sprintf("gap %.2f%% from prev close", gap*100),
		Ts:         latest.Ts,
	}, nil
}
