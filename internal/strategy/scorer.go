package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/metrics"
	"github.com/tgparkk/trading-bot-sub001/internal/signal"
)

// ScreeningScore aggregates one screening pass's strategy output for a symbol.
type ScreeningScore struct {
	Symbol     string
	BuyVotes   int
	TotalScore float64
	Signals    map[string]signal.StrategySignal
}

// Qualifies reports whether the symbol reached the vote floor for ranking.
func (s ScreeningScore) Qualifies(minBuyVotes int) bool {
	return s.BuyVotes >= minBuyVotes
}

// Scorer runs every registered strategy concurrently with a bounded
// per-call timeout and aggregates the returned signals. A strategy that
// times out or errors contributes nothing and never fails the pass.
type Scorer struct {
	registry *Registry
	timeout  time.Duration
	log      zerolog.Logger
}

// NewScorer wires the registry with the per-call timeout.
func NewScorer(registry *Registry, timeout time.Duration, log zerolog.Logger) *Scorer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Scorer{registry: registry, timeout: timeout, log: log}
}

// Score evaluates all strategies for the symbol and aggregates votes and strengths.
func (sc *Scorer) Score(ctx context.Context, symbol string) ScreeningScore {
	strategies := sc.registry.All()

	type result struct {
		name string
		sig  *signal.StrategySignal
	}
	results := make(chan result, len(strategies))

	var wg sync.WaitGroup
	for _, strat := range strategies {
		wg.Add(1)
		go func(strat Strategy) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, sc.timeout)
			defer cancel()

			sig, err := strat.GetSignal(callCtx, symbol)
			if err != nil {
				if callCtx.Err() != nil {
					metrics.StrategyTimeoutsTotal.WithLabelValues(strat.Name()).Inc()
					sc.log.Warn().Str("sym", symbol).Str("strategy", strat.Name()).Msg("strategy signal timed out")
				} else {
					sc.log.Warn().Err(err).Str("sym", symbol).Str("strategy", strat.Name()).Msg("strategy signal failed")
				}
				return
			}
			if sig == nil {
				return
			}
			results <- result{name: strat.Name(), sig: sig}
		}(strat)
	}
	wg.Wait()
	close(results)

	score := ScreeningScore{Symbol: symbol, Signals: make(map[string]signal.StrategySignal)}
	for res := range results {
		score.Signals[res.name] = *res.sig
		score.TotalScore += res.sig.Strength
		if res.sig.Direction == signal.Buy {
			score.BuyVotes++
		}
	}
	return score
}
