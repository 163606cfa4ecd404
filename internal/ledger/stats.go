package ledger

import "sync"

// Stats accumulates realized results across closed positions for the daily
// report. Reset starts a new trading day.
type Stats struct {
	mu       sync.Mutex
	trades   int
	wins     int
	realized float64
}

// Record tallies one closed position's realized pnl in currency units.
func (s *Stats) Record(realized float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades++
	if realized > 0 {
		s.wins++
	}
	s.realized += realized
}

// Snapshot returns the running totals.
func (s *Stats) Snapshot() (trades, wins int, realized float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trades, s.wins, s.realized
}

// WinRate returns wins/trades, 0 when no trades closed.
func (s *Stats) WinRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trades == 0 {
		return 0
	}
	return float64(s.wins) / float64(s.trades)
}

// Reset clears the totals.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades, s.wins, s.realized = 0, 0, 0
}
