// Package indicator computes window features the entry/exit engine decides on.
package indicator

import (
	"math"

	"github.com/tgparkk/trading-bot-sub001/internal/signal"
)

// Volatility is the mean absolute tick-to-tick relative price change.
// Returns 0 with fewer than 2 ticks.
func Volatility(ticks []signal.Tick) float64 {
	if len(ticks) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(ticks); i++ {
		prev := ticks[i-1].Price
		if prev == 0 {
			continue
		}
		sum += math.Abs((ticks[i].Price - prev) / prev)
	}
	return sum / float64(len(ticks)-1)
}

// VolumeSurge is the ratio of the mean of the last 5 tick volumes to the
// mean over the whole window. Returns 0 unless the buffer holds at least
// window ticks, or when the full-window mean is 0.
func VolumeSurge(ticks []signal.Tick, window int) float64 {
	if len(ticks) < window {
		return 0
	}
	var total float64
	for _, tk := range ticks {
		total += float64(tk.Volume)
	}
	avg := total / float64(len(ticks))
	if avg == 0 {
		return 0
	}
	recent := ticks
	if len(ticks) > 5 {
		recent = ticks[len(ticks)-5:]
	}
	var recentTotal float64
	for _, tk := range recent {
		recentTotal += float64(tk.Volume)
	}
	return (recentTotal / float64(len(recent))) / avg
}

// Momentum is the relative price change from the oldest to the newest tick.
// Returns 0 with fewer than 2 ticks.
func Momentum(ticks []signal.Tick) float64 {
	if len(ticks) < 2 {
		return 0
	}
	first := ticks[0].Price
	if first == 0 {
		return 0
	}
	return (ticks[len(ticks)-1].Price - first) / first
}
