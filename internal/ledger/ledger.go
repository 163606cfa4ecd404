// Package ledger tracks open positions and decides when they must close.
package ledger

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/tgparkk/trading-bot-sub001/internal/signal"
)

// ErrPositionExists is returned when an entry is attempted on a symbol that already holds one.
var ErrPositionExists = errors.New("position already open")

// emergencyThreshold is the absolute pnl rate past which a position is force-closed.
const emergencyThreshold = 0.05

// ExitReason names why a position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitTime       ExitReason = "time_exit"
	ExitEmergency  ExitReason = "emergency_exit"
)

// Position is the single open record a symbol may hold.
type Position struct {
	Symbol     string
	Side       signal.Direction
	EntryPrice float64
	EntryTime  time.Time
	Quantity   int64
}

// PnLRate returns the signed return of the position at the current price.
// BUY profits when price rises, SELL when it falls.
func (p Position) PnLRate(current float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == signal.Sell {
		return (p.EntryPrice - current) / p.EntryPrice
	}
	return (current - p.EntryPrice) / p.EntryPrice
}

// ExitRule bundles the three ordered exit thresholds.
// Evaluation order is fixed: stop loss, then take profit, then hold time.
type ExitRule struct {
	StopLoss   float64
	TakeProfit float64
	HoldTime   time.Duration
}

// Evaluate reports whether the position must close at the current price and why.
func (r ExitRule) Evaluate(p Position, current float64, now time.Time) (ExitReason, bool) {
	pnl := p.PnLRate(current)
	if pnl <= -r.StopLoss {
		return ExitStopLoss, true
	}
	if pnl >= r.TakeProfit {
		return ExitTakeProfit, true
	}
	if now.Sub(p.EntryTime) >= r.HoldTime {
		return ExitTime, true
	}
	return "", false
}

// EmergencyExceeded reports whether the position moved past the emergency band,
// independent of the regular exit thresholds.
func EmergencyExceeded(p Position, current float64) bool {
	return math.Abs(p.PnLRate(current)) > emergencyThreshold
}

// Ledger holds at most one open position per symbol.
type Ledger struct {
	mu        sync.Mutex
	positions map[string]Position
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{positions: make(map[string]Position)}
}

// Open records a position for the symbol. Entry is rejected if one exists.
func (l *Ledger) Open(p Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.positions[p.Symbol]; ok {
		return ErrPositionExists
	}
	l.positions[p.Symbol] = p
	return nil
}

// Close removes and returns the symbol's position, if any.
func (l *Ledger) Close(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if ok {
		delete(l.positions, symbol)
	}
	return p, ok
}

// Get returns the open position for the symbol, if any.
func (l *Ledger) Get(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	return p, ok
}

// Has reports whether the symbol holds an open position.
func (l *Ledger) Has(symbol string) bool {
	_, ok := l.Get(symbol)
	return ok
}

// Len returns the number of open positions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Snapshot returns a copy of all open positions.
func (l *Ledger) Snapshot() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}
