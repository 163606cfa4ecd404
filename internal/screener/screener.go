package screener

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/broker"
	"github.com/tgparkk/trading-bot-sub001/internal/config"
	"github.com/tgparkk/trading-bot-sub001/internal/strategy"
)

// Screener runs a full screening pass: score a bounded candidate prefix,
// rank the qualifiers, and fall back to the raw volume ranking when no
// symbol qualifies.
type Screener struct {
	catalog broker.SymbolCatalog
	scorer  *strategy.Scorer
	cfg     config.Screening
	market  string
	pacing  time.Duration
	log     zerolog.Logger
}

// New wires a screener. pacing spaces out candidate evaluations to bound
// the outbound call rate; zero disables it.
func New(catalog broker.SymbolCatalog, scorer *strategy.Scorer, cfg config.Screening, market string, pacing time.Duration, log zerolog.Logger) *Screener {
	return &Screener{catalog: catalog, scorer: scorer, cfg: cfg, market: market, pacing: pacing, log: log}
}

// Screen produces the next monitored symbol list, capped at the configured
// universe size. An empty result is not an error; the caller decides what
// universe to keep.
func (s *Screener) Screen(ctx context.Context) ([]string, error) {
	all, err := s.catalog.TradableSymbols(ctx, s.market)
	if err != nil {
		return nil, fmt.Errorf("tradable symbols: %w", err)
	}
	if len(all) == 0 {
		s.log.Warn().Msg("symbol catalog returned nothing")
		return nil, nil
	}

	candidates := all
	if len(candidates) > s.cfg.CandidateLimit {
		candidates = candidates[:s.cfg.CandidateLimit]
	}

	scores := make([]strategy.ScreeningScore, 0, len(candidates))
	for i, symbol := range candidates {
		if i > 0 && s.pacing > 0 {
			select {
			case <-time.After(s.pacing):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		score := s.scorer.Score(ctx, symbol)
		if score.Qualifies(s.cfg.MinBuyVotes) {
			scores = append(scores, score)
		}
	}

	if len(scores) == 0 {
		// No strategy consensus anywhere: fall back to the raw
		// volume-ranked list rather than going dark.
		s.log.Warn().Int("candidates", len(candidates)).Msg("no symbol qualified, using volume ranking")
		top := all
		if len(top) > s.cfg.UniverseSize {
			top = top[:s.cfg.UniverseSize]
		}
		out := make([]string, len(top))
		copy(out, top)
		return out, nil
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].BuyVotes != scores[j].BuyVotes {
			return scores[i].BuyVotes > scores[j].BuyVotes
		}
		return scores[i].TotalScore > scores[j].TotalScore
	})

	limit := s.cfg.UniverseSize
	if len(scores) < limit {
		limit = len(scores)
	}
	out := make([]string, 0, limit)
	for _, sc := range scores[:limit] {
		out = append(out, sc.Symbol)
	}
	s.log.Info().Int("qualified", len(scores)).Int("selected", len(out)).Msg("screening pass complete")
	return out, nil
}
