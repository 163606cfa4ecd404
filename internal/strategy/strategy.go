// Package strategy contains the signal strategies and the scorer that
// aggregates their votes during screening.
package strategy

import (
	"context"
	"fmt"

	"github.com/tgparkk/trading-bot-sub001/internal/signal"
)

// Strategy computes a directional signal with a strength and a confidence
// for a symbol. Implementations must honor ctx cancellation; a nil signal
// with nil error means "no opinion".
type Strategy interface {
	Name() string
	GetSignal(ctx context.Context, symbol string) (*signal.StrategySignal, error)
}

// Registry is the fixed, ordered set of strategies built at startup.
type Registry struct {
	strategies []Strategy
}

// NewRegistry validates and stores the strategy set. Duplicate or empty
// names are configuration errors, caught here rather than at runtime.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("registry requires at least one strategy")
	}
	seen := make(map[string]struct{}, len(strategies))
	for _, s := range strategies {
		name := s.Name()
		if name == "" {
			return nil, fmt.Errorf("strategy with empty name")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate strategy name %q", name)
		}
		seen[name] = struct{}{}
	}
	return &Registry{strategies: strategies}, nil
}

// All returns the registered strategies in registration order.
func (r *Registry) All() []Strategy {
	out := make([]Strategy, len(r.strategies))
	copy(out, r.strategies)
	return out
}

// Len returns the number of registered strategies.
func (r *Registry) Len() int { return len(r.strategies) }
