package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/broker"
	"github.com/tgparkk/trading-bot-sub001/internal/config"
	"github.com/tgparkk/trading-bot-sub001/internal/execution"
	"github.com/tgparkk/trading-bot-sub001/internal/ledger"
	"github.com/tgparkk/trading-bot-sub001/internal/signal"
	"github.com/tgparkk/trading-bot-sub001/internal/window"
)

type fakeFeed struct {
	connected     bool
	priceHandlers map[string]broker.TickHandler
	bookHandlers  map[string]broker.OrderbookHandler
	unsubscribed  []string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		connected:     true,
		priceHandlers: make(map[string]broker.TickHandler),
		bookHandlers:  make(map[string]broker.OrderbookHandler),
	}
}

func (f *fakeFeed) Connect(ctx context.Context) error { f.connected = true; return nil }
func (f *fakeFeed) IsConnected() bool                 { return f.connected }
func (f *fakeFeed) SubscribePrice(ctx context.Context, symbol string, handler broker.TickHandler) error {
	f.priceHandlers[symbol] = handler
	return nil
}
func (f *fakeFeed) SubscribeOrderbook(ctx context.Context, symbol string, handler broker.OrderbookHandler) error {
	f.bookHandlers[symbol] = handler
	return nil
}
func (f *fakeFeed) Unsubscribe(ctx context.Context, symbol string, channel broker.Channel) error {
	f.unsubscribed = append(f.unsubscribed, symbol+"/"+string(channel))
	return nil
}
func (f *fakeFeed) Close() error { f.connected = false; return nil }

type placedOrder struct {
	symbol string
	side   string
	qty    int64
	reason string
}

type fakeTransport struct {
	placed []placedOrder
	quote  broker.SymbolQuote
}

func (f *fakeTransport) AccountBalance(ctx context.Context) (broker.Balance, error) {
	return broker.Balance{CashBalance: 10_000_000}, nil
}
func (f *fakeTransport) PlaceOrder(ctx context.Context, symbol, side string, quantity int64, price float64, orderType, strategy, reason string) (broker.OrderResult, error) {
	f.placed = append(f.placed, placedOrder{symbol: symbol, side: side, qty: quantity, reason: reason})
	return broker.OrderResult{Status: broker.OrderAccepted, OrderID: fmt.Sprintf("ord-%d", len(f.placed))}, nil
}
func (f *fakeTransport) SymbolQuote(ctx context.Context, symbol string) (broker.SymbolQuote, error) {
	return f.quote, nil
}
func (f *fakeTransport) ForceTokenRefresh(ctx context.Context) (broker.RefreshResult, error) {
	return broker.RefreshResult{Status: "success"}, nil
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) Send(ctx context.Context, text string) error {
	f.messages = append(f.messages, text)
	return nil
}
func (f *fakeNotifier) IsReady() bool { return true }
func (f *fakeNotifier) Ready() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func testEngine(t *testing.T) (*Engine, *fakeFeed, *fakeTransport, *fakeNotifier, *ledger.Ledger, *window.Store) {
	t.Helper()
	cfg := config.Scalping{
		TickWindow:           10,
		PriceChangeThreshold: 0.002,
		VolumeMultiplier:     1.4,
		StopLoss:             0.02,
		TakeProfit:           0.015,
		HoldTimeSecs:         60,
		PositionSize:         1_000_000,
	}
	feed := newFakeFeed()
	windows := window.NewStore(cfg.TickWindow)
	positions := ledger.New()
	transport := &fakeTransport{}
	notifier := &fakeNotifier{}
	sizer := execution.NewSizer(config.Execution{DepositRatio: 0.5, MaxOrderValue: 5_000_000, MaxOrdersPerCycle: 3}, cfg.PositionSize, zerolog.Nop())
	executor := execution.NewExecutor(transport, nil, zerolog.Nop())
	eng := New(cfg, feed, windows, positions, sizer, executor, transport, notifier, &ledger.Stats{}, zerolog.Nop())
	return eng, feed, transport, notifier, positions, windows
}

// pushSurge feeds a full window of rising prices where recent volume runs
// well above the window average, clearing every entry threshold.
func pushSurge(handler broker.TickHandler, symbol string) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		price := 10_000 * (1 + 0.005*float64(i))
		vol := int64(100)
		if i >= 5 {
			vol = 300
		}
		handler(signal.Tick{Symbol: symbol, Price: price, Volume: vol, Ts: base.Add(time.Duration(i) * time.Second)})
	}
}

func TestEngineOpensPositionOnSurge(t *testing.T) {
	eng, feed, transport, _, positions, _ := testEngine(t)
	ctx := context.Background()

	if err := eng.Start(ctx, []string{"005930"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	pushSurge(feed.priceHandlers["005930"], "005930")

	if !positions.Has("005930") {
		t.Fatal("no position opened")
	}
	if len(transport.placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(transport.placed))
	}
	if transport.placed[0].side != "BUY" {
		t.Fatalf("side = %s", transport.placed[0].side)
	}
}

func TestEngineShortsOnDownwardSurge(t *testing.T) {
	eng, feed, transport, _, positions, _ := testEngine(t)
	ctx := context.Background()

	if err := eng.Start(ctx, []string{"005930"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	handler := feed.priceHandlers["005930"]
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		price := 10_000 * (1 - 0.005*float64(i))
		vol := int64(100)
		if i >= 5 {
			vol = 300
		}
		handler(signal.Tick{Symbol: "005930", Price: price, Volume: vol, Ts: base.Add(time.Duration(i) * time.Second)})
	}

	pos, ok := positions.Get("005930")
	if !ok {
		t.Fatal("no position opened")
	}
	if pos.Side != signal.Sell {
		t.Fatalf("side = %v, want sell", pos.Side)
	}
	if transport.placed[0].side != "SELL" {
		t.Fatalf("order side = %s", transport.placed[0].side)
	}
}

func TestEngineSkipsEntryWhilePositionOpen(t *testing.T) {
	eng, feed, transport, _, positions, _ := testEngine(t)
	ctx := context.Background()

	if err := eng.Start(ctx, []string{"005930"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	pushSurge(feed.priceHandlers["005930"], "005930")
	if positions.Len() != 1 {
		t.Fatalf("positions = %d", positions.Len())
	}

	// The same surge again must not stack a second entry.
	pushSurge(feed.priceHandlers["005930"], "005930")
	if len(transport.placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(transport.placed))
	}
}

func TestEngineWaitsForFullWindow(t *testing.T) {
	eng, feed, transport, _, _, _ := testEngine(t)
	ctx := context.Background()

	if err := eng.Start(ctx, []string{"005930"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	handler := feed.priceHandlers["005930"]
	base := time.Now()
	for i := 0; i < 5; i++ {
		handler(signal.Tick{Symbol: "005930", Price: 10_000 + float64(i)*100, Volume: 500, Ts: base})
	}
	if len(transport.placed) != 0 {
		t.Fatalf("entered before window filled: %d orders", len(transport.placed))
	}
}

func TestEngineIgnoresFlatTape(t *testing.T) {
	eng, feed, transport, _, _, _ := testEngine(t)
	ctx := context.Background()

	if err := eng.Start(ctx, []string{"005930"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	handler := feed.priceHandlers["005930"]
	base := time.Now()
	for i := 0; i < 10; i++ {
		handler(signal.Tick{Symbol: "005930", Price: 10_000, Volume: 100, Ts: base})
	}
	if len(transport.placed) != 0 {
		t.Fatalf("entered on flat tape: %d orders", len(transport.placed))
	}
}

func TestEngineStopLossExit(t *testing.T) {
	eng, _, transport, _, positions, windows := testEngine(t)
	ctx := context.Background()

	entry := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	windows.Track("005930")
	if err := positions.Open(ledger.Position{Symbol: "005930", Side: signal.Buy, EntryPrice: 10_000, EntryTime: entry, Quantity: 100}); err != nil {
		t.Fatalf("open: %v", err)
	}
	windows.RecordTick(signal.Tick{Symbol: "005930", Price: 9_790, Volume: 100, Ts: entry.Add(5 * time.Second)})

	eng.CheckExits(ctx, entry.Add(10*time.Second))

	if positions.Has("005930") {
		t.Fatal("position still open after stop loss")
	}
	if len(transport.placed) != 1 || transport.placed[0].side != "SELL" {
		t.Fatalf("unexpected orders: %+v", transport.placed)
	}
	if transport.placed[0].reason != string(ledger.ExitStopLoss) {
		t.Fatalf("reason = %s", transport.placed[0].reason)
	}
}

func TestEngineEmergencyExitNotifies(t *testing.T) {
	eng, _, transport, notifier, positions, windows := testEngine(t)
	ctx := context.Background()

	entry := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	windows.Track("005930")
	if err := positions.Open(ledger.Position{Symbol: "005930", Side: signal.Buy, EntryPrice: 10_000, EntryTime: entry, Quantity: 100}); err != nil {
		t.Fatalf("open: %v", err)
	}
	// 6% drop: past the emergency threshold, not just the stop loss.
	windows.RecordTick(signal.Tick{Symbol: "005930", Price: 9_400, Volume: 100, Ts: entry.Add(time.Second)})

	eng.CheckExits(ctx, entry.Add(2*time.Second))

	if positions.Has("005930") {
		t.Fatal("position still open after emergency exit")
	}
	if transport.placed[0].reason != string(ledger.ExitEmergency) {
		t.Fatalf("reason = %s", transport.placed[0].reason)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.messages))
	}
}

func TestEngineHoldTimeExit(t *testing.T) {
	eng, _, transport, _, positions, windows := testEngine(t)
	ctx := context.Background()

	entry := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	windows.Track("005930")
	if err := positions.Open(ledger.Position{Symbol: "005930", Side: signal.Buy, EntryPrice: 10_000, EntryTime: entry, Quantity: 100}); err != nil {
		t.Fatalf("open: %v", err)
	}
	windows.RecordTick(signal.Tick{Symbol: "005930", Price: 10_020, Volume: 100, Ts: entry.Add(time.Second)})

	// Inside the hold window nothing fires.
	eng.CheckExits(ctx, entry.Add(30*time.Second))
	if len(transport.placed) != 0 {
		t.Fatalf("exited early: %+v", transport.placed)
	}

	eng.CheckExits(ctx, entry.Add(61*time.Second))
	if positions.Has("005930") {
		t.Fatal("position still open after hold time")
	}
	if transport.placed[0].reason != string(ledger.ExitTime) {
		t.Fatalf("reason = %s", transport.placed[0].reason)
	}
}

func TestEngineQuoteFallbackForExit(t *testing.T) {
	eng, _, transport, _, positions, windows := testEngine(t)
	ctx := context.Background()

	entry := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	windows.Track("005930")
	transport.quote = broker.SymbolQuote{CurrentPrice: 9_700}
	if err := positions.Open(ledger.Position{Symbol: "005930", Side: signal.Buy, EntryPrice: 10_000, EntryTime: entry, Quantity: 100}); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Empty window: the exit check must fall back to the REST quote.
	eng.CheckExits(ctx, entry.Add(time.Second))
	if positions.Has("005930") {
		t.Fatal("position still open")
	}
}

func TestEngineStopUnsubscribes(t *testing.T) {
	eng, feed, transport, _, _, _ := testEngine(t)
	ctx := context.Background()

	if err := eng.Start(ctx, []string{"005930", "000660"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	eng.Stop(ctx)

	if len(feed.unsubscribed) != 4 {
		t.Fatalf("unsubscribed %d channels, want 4", len(feed.unsubscribed))
	}
	// Stop again is a no-op.
	eng.Stop(ctx)
	if len(feed.unsubscribed) != 4 {
		t.Fatal("second stop unsubscribed again")
	}

	pushSurge(feed.priceHandlers["005930"], "005930")
	if len(transport.placed) != 0 {
		t.Fatalf("entered after stop: %d orders", len(transport.placed))
	}
}

func TestEngineStartDiffsSubscriptions(t *testing.T) {
	eng, feed, _, _, _, windows := testEngine(t)
	ctx := context.Background()

	if err := eng.Start(ctx, []string{"005930", "000660"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := eng.Start(ctx, []string{"005930", "035720"}); err != nil {
		t.Fatalf("restart: %v", err)
	}

	dropped := map[string]bool{}
	for _, u := range feed.unsubscribed {
		dropped[u] = true
	}
	if !dropped["000660/price"] || !dropped["000660/orderbook"] {
		t.Fatalf("000660 not unsubscribed: %v", feed.unsubscribed)
	}
	if windows.Tracked("000660") {
		t.Fatal("000660 window not dropped")
	}
	if !windows.Tracked("035720") {
		t.Fatal("035720 window not tracked")
	}
}
