package screener

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/config"
	"github.com/tgparkk/trading-bot-sub001/internal/signal"
	"github.com/tgparkk/trading-bot-sub001/internal/strategy"
)

type fakeCatalog struct {
	symbols []string
	err     error
}

func (f fakeCatalog) TradableSymbols(ctx context.Context, marketType string) ([]string, error) {
	return f.symbols, f.err
}

// votesStrategy votes BUY for symbols it has an entry for; strength comes
// from the table.
type votesStrategy struct {
	name  string
	votes map[string]float64
}

func (v votesStrategy) Name() string { return v.name }
func (v votesStrategy) GetSignal(ctx context.Context, symbol string) (*signal.StrategySignal, error) {
	strength, ok := v.votes[symbol]
	if !ok {
		return nil, nil
	}
	return &signal.StrategySignal{Direction: signal.Buy, Strength: strength}, nil
}

func testConfig() config.Screening {
	return config.Screening{
		CandidateLimit:    200,
		UniverseSize:      100,
		ActiveSymbols:     50,
		MinBuyVotes:       2,
		StrategyTimeoutMs: 2000,
	}
}

func newScreener(t *testing.T, catalog fakeCatalog, strategies ...strategy.Strategy) *Screener {
	t.Helper()
	registry, err := strategy.NewRegistry(strategies...)
	if err != nil {
		t.Fatalf("registry failed: %v", err)
	}
	scorer := strategy.NewScorer(registry, time.Second, zerolog.Nop())
	return New(catalog, scorer, testConfig(), "ALL", 0, zerolog.Nop())
}

func TestScreenRanksByVotesThenScore(t *testing.T) {
	catalog := fakeCatalog{symbols: []string{"A", "B", "C", "D"}}
	// A: 2 votes score 4; B: 2 votes score 6; C: 1 vote; D: none.
	s1 := votesStrategy{name: "s1", votes: map[string]float64{"A": 2, "B": 3, "C": 5}}
	s2 := votesStrategy{name: "s2", votes: map[string]float64{"A": 2, "B": 3}}
	scr := newScreener(t, catalog, s1, s2)

	got, err := scr.Screen(context.Background())
	if err != nil {
		t.Fatalf("Screen returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 qualified symbols, got %v", got)
	}
	if got[0] != "B" || got[1] != "A" {
		t.Fatalf("expected [B A] by total score, got %v", got)
	}
}

func TestScreenExcludesLowVoteSymbols(t *testing.T) {
	catalog := fakeCatalog{symbols: []string{"A", "B"}}
	s1 := votesStrategy{name: "s1", votes: map[string]float64{"A": 9, "B": 1}}
	s2 := votesStrategy{name: "s2", votes: map[string]float64{"B": 1}}
	scr := newScreener(t, catalog, s1, s2)

	got, err := scr.Screen(context.Background())
	if err != nil {
		t.Fatalf("Screen returned error: %v", err)
	}
	for _, sym := range got {
		if sym == "A" {
			t.Fatalf("symbol with 1 buy vote must not qualify: %v", got)
		}
	}
}

func TestScreenDeterministicForSameInputs(t *testing.T) {
	symbols := make([]string, 20)
	votes := map[string]float64{}
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%02d", i)
		votes[symbols[i]] = float64(i % 7)
	}
	catalog := fakeCatalog{symbols: symbols}
	s1 := votesStrategy{name: "s1", votes: votes}
	s2 := votesStrategy{name: "s2", votes: votes}

	first, err := newScreener(t, catalog, s1, s2).Screen(context.Background())
	if err != nil {
		t.Fatalf("Screen returned error: %v", err)
	}
	second, err := newScreener(t, catalog, s1, s2).Screen(context.Background())
	if err != nil {
		t.Fatalf("Screen returned error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("non-deterministic length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("non-deterministic ranking at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestScreenFallsBackToVolumeRanking(t *testing.T) {
	symbols := make([]string, 150)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%03d", i)
	}
	catalog := fakeCatalog{symbols: symbols}
	scr := newScreener(t, catalog, votesStrategy{name: "s1"}, votesStrategy{name: "s2"})

	got, err := scr.Screen(context.Background())
	if err != nil {
		t.Fatalf("Screen returned error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected volume fallback capped at 100, got %d", len(got))
	}
	if got[0] != "S000" {
		t.Fatalf("expected volume order preserved, got %s first", got[0])
	}
}

func TestScreenEmptyCatalog(t *testing.T) {
	scr := newScreener(t, fakeCatalog{}, votesStrategy{name: "s1"}, votesStrategy{name: "s2"})
	got, err := scr.Screen(context.Background())
	if err != nil {
		t.Fatalf("empty catalog is not an error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestUniverseReplaceAndDiff(t *testing.T) {
	u := NewUniverse()
	if _, scanned := u.LastScan(); scanned {
		t.Fatalf("fresh universe must report no scan")
	}

	u.Replace([]string{"A", "B", "C"}, time.Now())
	added, removed := u.Diff([]string{"B", "C", "D"})
	if len(added) != 1 || added[0] != "D" {
		t.Fatalf("unexpected added: %v", added)
	}
	if len(removed) != 1 || removed[0] != "A" {
		t.Fatalf("unexpected removed: %v", removed)
	}

	active := u.Active(2)
	if len(active) != 2 || active[0] != "A" || active[1] != "B" {
		t.Fatalf("active set must be a prefix, got %v", active)
	}
}
