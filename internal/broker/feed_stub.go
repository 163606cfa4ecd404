package broker

import (
	"context"
	"sync"
	"time"

	"github.com/tgparkk/trading-bot-sub001/internal/signal"
)

// StubFeed emits deterministic synthetic ticks for subscribed symbols.
// Useful for offline runs and tests.
type StubFeed struct {
	interval time.Duration

	mu            sync.Mutex
	connected     bool
	price         float64
	priceHandlers map[string]TickHandler
	bookHandlers  map[string]OrderbookHandler
	cancel        context.CancelFunc
}

// NewStubFeed builds a stub feed that ticks every interval.
func NewStubFeed(interval time.Duration) *StubFeed {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &StubFeed{
		interval:      interval,
		price:         10000,
		priceHandlers: make(map[string]TickHandler),
		bookHandlers:  make(map[string]OrderbookHandler),
	}
}

func (f *StubFeed) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.connected = true
	f.cancel = cancel
	f.mu.Unlock()
	go f.run(runCtx)
	return nil
}

func (f *StubFeed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *StubFeed) SubscribePrice(ctx context.Context, symbol string, handler TickHandler) error {
	f.mu.Lock()
	f.priceHandlers[symbol] = handler
	f.mu.Unlock()
	return nil
}

func (f *StubFeed) SubscribeOrderbook(ctx context.Context, symbol string, handler OrderbookHandler) error {
	f.mu.Lock()
	f.bookHandlers[symbol] = handler
	f.mu.Unlock()
	return nil
}

func (f *StubFeed) Unsubscribe(ctx context.Context, symbol string, channel Channel) error {
	f.mu.Lock()
	switch channel {
	case ChannelPrice:
		delete(f.priceHandlers, symbol)
	case ChannelOrderbook:
		delete(f.bookHandlers, symbol)
	}
	f.mu.Unlock()
	return nil
}

func (f *StubFeed) Close() error {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.connected = false
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (f *StubFeed) run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ts := <-ticker.C:
			f.mu.Lock()
			f.price += 10
			price := f.price
			handlers := make(map[string]TickHandler, len(f.priceHandlers))
			for sym, h := range f.priceHandlers {
				handlers[sym] = h
			}
			books := make(map[string]OrderbookHandler, len(f.bookHandlers))
			for sym, h := range f.bookHandlers {
				books[sym] = h
			}
			f.mu.Unlock()

			for sym, handler := range handlers {
				handler(signal.Tick{Symbol: sym, Price: price, Volume: 100, Ts: ts})
			}
			for sym, handler := range books {
				handler(signal.NewOrderbookSnapshot(sym, 300, 200, ts))
			}
		}
	}
}
