// Package window keeps bounded per-symbol histories of ticks and orderbook snapshots.
package window

import (
	"sync"

	"github.com/tgparkk/trading-bot-sub001/internal/signal"
)

// ring is a fixed-capacity FIFO buffer that overwrites the oldest entry once full.
type ring[T any] struct {
	buf    []T
	start  int
	length int
	cap    int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity), cap: capacity}
}

func (r *ring[T]) push(v T) {
	if r.length < r.cap {
		r.buf[(r.start+r.length)%r.cap] = v
		r.length++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % r.cap
}

func (r *ring[T]) slice() []T {
	out := make([]T, r.length)
	for i := 0; i < r.length; i++ {
		out[i] = r.buf[(r.start+i)%r.cap]
	}
	return out
}

type buffers struct {
	mu    sync.Mutex
	ticks *ring[signal.Tick]
	books *ring[signal.OrderbookSnapshot]
}

// Store owns one pair of bounded buffers per tracked symbol.
// Buffers are created on Track and removed on Untrack; records for
// untracked symbols are dropped.
type Store struct {
	capacity int
	mu       sync.RWMutex
	symbols  map[string]*buffers
}

// NewStore builds a store whose per-symbol buffers hold capacity entries.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 10
	}
	return &Store{capacity: capacity, symbols: make(map[string]*buffers)}
}

// Capacity returns the configured window size W.
func (s *Store) Capacity() int { return s.capacity }

// Track creates empty buffers for the symbol if none exist.
func (s *Store) Track(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.symbols[symbol]; !ok {
		s.symbols[symbol] = &buffers{
			ticks: newRing[signal.Tick](s.capacity),
			books: newRing[signal.OrderbookSnapshot](s.capacity),
		}
	}
}

// Untrack drops the symbol's buffers.
func (s *Store) Untrack(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.symbols, symbol)
}

// Tracked reports whether the symbol currently has buffers.
func (s *Store) Tracked(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.symbols[symbol]
	return ok
}

// RecordTick appends a tick to the symbol's buffer, evicting the oldest entry at capacity.
func (s *Store) RecordTick(t signal.Tick) {
	s.mu.RLock()
	b := s.symbols[t.Symbol]
	s.mu.RUnlock()
	if b == nil {
		return
	}
	b.mu.Lock()
	b.ticks.push(t)
	b.mu.Unlock()
}

// RecordOrderbook appends an orderbook snapshot to the symbol's buffer.
func (s *Store) RecordOrderbook(o signal.OrderbookSnapshot) {
	s.mu.RLock()
	b := s.symbols[o.Symbol]
	s.mu.RUnlock()
	if b == nil {
		return
	}
	b.mu.Lock()
	b.books.push(o)
	b.mu.Unlock()
}

// Ticks returns the buffered ticks oldest first.
func (s *Store) Ticks(symbol string) []signal.Tick {
	s.mu.RLock()
	b := s.symbols[symbol]
	s.mu.RUnlock()
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ticks.slice()
}

// Orderbooks returns the buffered snapshots oldest first.
func (s *Store) Orderbooks(symbol string) []signal.OrderbookSnapshot {
	s.mu.RLock()
	b := s.symbols[symbol]
	s.mu.RUnlock()
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.books.slice()
}

// Full reports whether the symbol's tick buffer has reached capacity.
func (s *Store) Full(symbol string) bool {
	s.mu.RLock()
	b := s.symbols[symbol]
	s.mu.RUnlock()
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ticks.length == s.capacity
}

// LastPrice returns the newest buffered price for the symbol, 0 if the buffer is empty.
func (s *Store) LastPrice(symbol string) float64 {
	ticks := s.Ticks(symbol)
	if len(ticks) == 0 {
		return 0
	}
	return ticks[len(ticks)-1].Price
}
