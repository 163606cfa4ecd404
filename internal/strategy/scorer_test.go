package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/signal"
)

type fixedStrategy struct {
	name string
	sig  *signal.StrategySignal
	err  error
}

func (f fixedStrategy) Name() string { return f.name }
func (f fixedStrategy) GetSignal(ctx context.Context, symbol string) (*signal.StrategySignal, error) {
	return f.sig, f.err
}

type slowStrategy struct{ name string }

func (s slowStrategy) Name() string { return s.name }
func (s slowStrategy) GetSignal(ctx context.Context, symbol string) (*signal.StrategySignal, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Minute):
		return &signal.StrategySignal{Direction: signal.Buy, Strength: 10}, nil
	}
}

func TestScorerAggregatesVotesAndScores(t *testing.T) {
	registry, err := NewRegistry(
		fixedStrategy{name: "a", sig: &signal.StrategySignal{Direction: signal.Buy, Strength: 3}},
		fixedStrategy{name: "b", sig: &signal.StrategySignal{Direction: signal.Buy, Strength: 2}},
		fixedStrategy{name: "c", sig: &signal.StrategySignal{Direction: signal.Sell, Strength: 4}},
		fixedStrategy{name: "d", sig: nil},
	)
	if err != nil {
		t.Fatalf("registry failed: %v", err)
	}
	scorer := NewScorer(registry, time.Second, zerolog.Nop())

	score := scorer.Score(context.Background(), "005930")
	if score.BuyVotes != 2 {
		t.Fatalf("expected 2 buy votes, got %d", score.BuyVotes)
	}
	if score.TotalScore != 9 {
		t.Fatalf("expected total score 9 across all directions, got %f", score.TotalScore)
	}
	if len(score.Signals) != 3 {
		t.Fatalf("expected 3 recorded signals, got %d", len(score.Signals))
	}
	if !score.Qualifies(2) || score.Qualifies(3) {
		t.Fatalf("unexpected qualification at votes=%d", score.BuyVotes)
	}
}

func TestScorerTreatsTimeoutAsNoSignal(t *testing.T) {
	registry, err := NewRegistry(
		slowStrategy{name: "slow"},
		fixedStrategy{name: "fast", sig: &signal.StrategySignal{Direction: signal.Buy, Strength: 1}},
	)
	if err != nil {
		t.Fatalf("registry failed: %v", err)
	}
	scorer := NewScorer(registry, 20*time.Millisecond, zerolog.Nop())

	score := scorer.Score(context.Background(), "005930")
	if score.BuyVotes != 1 {
		t.Fatalf("expected timed-out strategy to contribute nothing, votes=%d", score.BuyVotes)
	}
	if _, ok := score.Signals["slow"]; ok {
		t.Fatalf("timed-out strategy must not appear in signals")
	}
}

func TestScorerTreatsErrorAsNoSignal(t *testing.T) {
	registry, err := NewRegistry(
		fixedStrategy{name: "bad", err: context.DeadlineExceeded},
		fixedStrategy{name: "good", sig: &signal.StrategySignal{Direction: signal.Buy, Strength: 5}},
	)
	if err != nil {
		t.Fatalf("registry failed: %v", err)
	}
	scorer := NewScorer(registry, time.Second, zerolog.Nop())

	score := scorer.Score(context.Background(), "005930")
	if score.BuyVotes != 1 || score.TotalScore != 5 {
		t.Fatalf("expected only the good strategy to count, votes=%d score=%f", score.BuyVotes, score.TotalScore)
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		fixedStrategy{name: "dup"},
		fixedStrategy{name: "dup"},
	)
	if err == nil {
		t.Fatalf("expected duplicate name error")
	}
	if _, err := NewRegistry(); err == nil {
		t.Fatalf("expected error for empty registry")
	}
	if _, err := NewRegistry(fixedStrategy{name: ""}); err == nil {
		t.Fatalf("expected error for empty name")
	}
}
