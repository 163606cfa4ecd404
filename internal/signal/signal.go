// Package signal standardizes payloads shared between data ingestion, strategy, and execution layers.
package signal

import "time"

// Direction expresses the trading bias of a strategy signal.
type Direction string

const (
	// Buy indicates a long bias.
	Buy Direction = "BUY"
	// Sell indicates a short bias.
	Sell Direction = "SELL"
	// None indicates the strategy has no opinion for the symbol.
	None Direction = "NONE"
)

// Tick models one observed trade for a symbol.
type Tick struct {
	Symbol string
	Price  float64
	Volume int64
	Ts     time.Time
}

// OrderbookSnapshot aggregates resting volume on both sides of the book at one instant.
type OrderbookSnapshot struct {
	Symbol    string
	BidVolume int64
	AskVolume int64
	Ratio     float64 // BidVolume/AskVolume, 0 when the ask side is empty
	Ts        time.Time
}

// NewOrderbookSnapshot derives the bid/ask ratio from the raw totals.
func NewOrderbookSnapshot(symbol string, bidVolume, askVolume int64, ts time.Time) OrderbookSnapshot {
	var ratio float64
	if askVolume > 0 {
		ratio = float64(bidVolume) / float64(askVolume)
	}
	return OrderbookSnapshot{Symbol: symbol, BidVolume: bidVolume, AskVolume: askVolume, Ratio: ratio, Ts: ts}
}

// StrategySignal is the per-call output of a strategy: a direction with a strength and a confidence.
type StrategySignal struct {
	Direction  Direction
	Strength   float64
	Confidence float64
	Reason     string
	Ts         time.Time
}
