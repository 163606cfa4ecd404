package window

import (
	"testing"
	"time"

	"github.com/tgparkk/trading-bot-sub001/internal/signal"
)

func tick(symbol string, price float64, volume int64) signal.Tick {
	return signal.Tick{Symbol: symbol, Price: price, Volume: volume, Ts: time.Now()}
}

func TestStoreEvictsOldestFirst(t *testing.T) {
	store := NewStore(3)
	store.Track("005930")

	for i := 1; i <= 5; i++ {
		store.RecordTick(tick("005930", float64(i), 10))
	}

	ticks := store.Ticks("005930")
	if len(ticks) != 3 {
		t.Fatalf("expected buffer capped at 3, got %d", len(ticks))
	}
	if ticks[0].Price != 3 || ticks[2].Price != 5 {
		t.Fatalf("expected oldest-first [3 4 5], got [%v %v %v]", ticks[0].Price, ticks[1].Price, ticks[2].Price)
	}
}

func TestStoreDropsUntrackedSymbols(t *testing.T) {
	store := NewStore(3)
	store.RecordTick(tick("000660", 100, 1))
	if got := store.Ticks("000660"); got != nil {
		t.Fatalf("expected no buffer for untracked symbol, got %d ticks", len(got))
	}

	store.Track("000660")
	store.RecordTick(tick("000660", 100, 1))
	store.Untrack("000660")
	if store.Tracked("000660") {
		t.Fatalf("expected symbol untracked")
	}
	if got := store.Ticks("000660"); got != nil {
		t.Fatalf("expected buffer removed, got %d ticks", len(got))
	}
}

func TestStoreFull(t *testing.T) {
	store := NewStore(2)
	store.Track("035720")
	if store.Full("035720") {
		t.Fatalf("empty buffer reported full")
	}
	store.RecordTick(tick("035720", 1, 1))
	store.RecordTick(tick("035720", 2, 1))
	if !store.Full("035720") {
		t.Fatalf("expected buffer full at capacity")
	}
}

func TestStoreOrderbookRatio(t *testing.T) {
	store := NewStore(2)
	store.Track("035720")
	store.RecordOrderbook(signal.NewOrderbookSnapshot("035720", 300, 100, time.Now()))
	store.RecordOrderbook(signal.NewOrderbookSnapshot("035720", 100, 0, time.Now()))

	books := store.Orderbooks("035720")
	if len(books) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(books))
	}
	if books[0].Ratio != 3 {
		t.Fatalf("expected ratio 3, got %f", books[0].Ratio)
	}
	if books[1].Ratio != 0 {
		t.Fatalf("expected zero ratio for empty ask side, got %f", books[1].Ratio)
	}
}

func TestLastPrice(t *testing.T) {
	store := NewStore(3)
	store.Track("005930")
	if store.LastPrice("005930") != 0 {
		t.Fatalf("expected 0 for empty buffer")
	}
	store.RecordTick(tick("005930", 70000, 5))
	store.RecordTick(tick("005930", 70100, 5))
	if got := store.LastPrice("005930"); got != 70100 {
		t.Fatalf("expected last price 70100, got %f", got)
	}
}
