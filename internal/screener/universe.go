// Package screener ranks the tradable symbol set and maintains the
// monitored universe the live engine trades on.
package screener

import (
	"sync"
	"time"
)

// Universe holds the monitored symbol sequence. Replacements are atomic:
// readers always observe a complete list from a single screening pass.
type Universe struct {
	mu        sync.RWMutex
	symbols   []string
	updatedAt time.Time
	scanned   bool
}

// NewUniverse returns an empty universe.
func NewUniverse() *Universe {
	return &Universe{}
}

// Replace swaps in a new ranked symbol list and stamps the scan time.
func (u *Universe) Replace(symbols []string, at time.Time) {
	cp := make([]string, len(symbols))
	copy(cp, symbols)
	u.mu.Lock()
	u.symbols = cp
	u.updatedAt = at
	u.scanned = true
	u.mu.Unlock()
}

// Symbols returns a copy of the full monitored sequence.
func (u *Universe) Symbols() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, len(u.symbols))
	copy(out, u.symbols)
	return out
}

// Active returns the top-n prefix that is subscribed to live data.
func (u *Universe) Active(n int) []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if n > len(u.symbols) {
		n = len(u.symbols)
	}
	out := make([]string, n)
	copy(out, u.symbols[:n])
	return out
}

// Len returns the number of monitored symbols.
func (u *Universe) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.symbols)
}

// LastScan returns the last replacement time and whether a scan ever happened.
func (u *Universe) LastScan() (time.Time, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.updatedAt, u.scanned
}

// Diff reports which symbols a candidate list would add and remove
// relative to the current universe.
func (u *Universe) Diff(next []string) (added, removed []string) {
	current := u.Symbols()
	have := make(map[string]struct{}, len(current))
	for _, s := range current {
		have[s] = struct{}{}
	}
	want := make(map[string]struct{}, len(next))
	for _, s := range next {
		want[s] = struct{}{}
		if _, ok := have[s]; !ok {
			added = append(added, s)
		}
	}
	for _, s := range current {
		if _, ok := want[s]; !ok {
			removed = append(removed, s)
		}
	}
	return added, removed
}
