// Package engine runs the live scalping loop: it feeds tick windows from the
// market-data stream, opens positions when the entry conditions line up, and
// closes them when an exit rule or the emergency guard fires.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/broker"
	"github.com/tgparkk/trading-bot-sub001/internal/config"
	"github.com/tgparkk/trading-bot-sub001/internal/execution"
	"github.com/tgparkk/trading-bot-sub001/internal/indicator"
	"github.com/tgparkk/trading-bot-sub001/internal/ledger"
	"github.com/tgparkk/trading-bot-sub001/internal/metrics"
	"github.com/tgparkk/trading-bot-sub001/internal/signal"
	"github.com/tgparkk/trading-bot-sub001/internal/window"
)

// Engine subscribes the active symbols, maintains their tick windows, and
// drives entries and exits against the position ledger.
type Engine struct {
	cfg       config.Scalping
	feed      broker.MarketDataFeed
	windows   *window.Store
	positions *ledger.Ledger
	sizer     *execution.Sizer
	executor  *execution.Executor
	transport broker.TradingTransport
	notifier  broker.Notifier
	stats     *ledger.Stats
	exitRule  ledger.ExitRule
	log       zerolog.Logger

	mu       sync.Mutex
	active   []string
	inFlight map[string]bool
	running  bool
}

// New wires an engine over the shared window store and ledger.
func New(cfg config.Scalping, feed broker.MarketDataFeed, windows *window.Store, positions *ledger.Ledger, sizer *execution.Sizer, executor *execution.Executor, transport broker.TradingTransport, notifier broker.Notifier, stats *ledger.Stats, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		feed:      feed,
		windows:   windows,
		positions: positions,
		sizer:     sizer,
		executor:  executor,
		transport: transport,
		notifier:  notifier,
		stats:     stats,
		exitRule: ledger.ExitRule{
			StopLoss:   cfg.StopLoss,
			TakeProfit: cfg.TakeProfit,
			HoldTime:   cfg.HoldTime(),
		},
		inFlight: make(map[string]bool),
		log:      log,
	}
}

// Start subscribes price and orderbook streams for the given symbols and
// begins evaluating entries on every tick. Symbols from a previous start
// that are no longer active are unsubscribed and their windows dropped.
func (e *Engine) Start(ctx context.Context, symbols []string) error {
	e.mu.Lock()
	previous := e.active
	e.active = append([]string(nil), symbols...)
	e.running = true
	e.mu.Unlock()

	next := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		next[sym] = true
	}
	for _, sym := range previous {
		if next[sym] {
			continue
		}
		if err := e.feed.Unsubscribe(ctx, sym, broker.ChannelPrice); err != nil {
			e.log.Warn().Err(err).Str("sym", sym).Msg("price unsubscribe failed")
		}
		if err := e.feed.Unsubscribe(ctx, sym, broker.ChannelOrderbook); err != nil {
			e.log.Warn().Err(err).Str("sym", sym).Msg("orderbook unsubscribe failed")
		}
		e.windows.Untrack(sym)
	}

	for _, sym := range symbols {
		e.windows.Track(sym)
		sym := sym
		if err := e.feed.SubscribePrice(ctx, sym, func(t signal.Tick) {
			e.onTick(ctx, t)
		}); err != nil {
			return fmt.Errorf("subscribe price %s: %w", sym, err)
		}
		if err := e.feed.SubscribeOrderbook(ctx, sym, func(o signal.OrderbookSnapshot) {
			e.windows.RecordOrderbook(o)
		}); err != nil {
			return fmt.Errorf("subscribe orderbook %s: %w", sym, err)
		}
	}

	metrics.MonitoredSymbols.Set(float64(len(symbols)))
	e.log.Info().Int("symbols", len(symbols)).Msg("engine started")
	return nil
}

// Stop unsubscribes everything and halts entry evaluation. Open positions
// are left to the supervisor's exit pass.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	active := e.active
	e.active = nil
	e.mu.Unlock()

	for _, sym := range active {
		if err := e.feed.Unsubscribe(ctx, sym, broker.ChannelPrice); err != nil {
			e.log.Warn().Err(err).Str("sym", sym).Msg("price unsubscribe failed")
		}
		if err := e.feed.Unsubscribe(ctx, sym, broker.ChannelOrderbook); err != nil {
			e.log.Warn().Err(err).Str("sym", sym).Msg("orderbook unsubscribe failed")
		}
	}
	metrics.MonitoredSymbols.Set(0)
	e.log.Info().Msg("engine stopped")
}

// Active returns the symbols currently subscribed.
func (e *Engine) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.active...)
}

func (e *Engine) onTick(ctx context.Context, t signal.Tick) {
	e.windows.RecordTick(t)

	e.mu.Lock()
	evaluate := e.running && !e.inFlight[t.Symbol]
	if evaluate {
		e.inFlight[t.Symbol] = true
	}
	e.mu.Unlock()
	if !evaluate {
		return
	}
	defer func() {
		e.mu.Lock()
		delete(e.inFlight, t.Symbol)
		e.mu.Unlock()
	}()

	e.evaluateEntry(ctx, t.Symbol, t.Price, t.Ts)
}

// evaluateEntry opens a position when the window is full, no position is
// held, and volatility, volume surge, and momentum all clear their
// thresholds. Momentum sign picks the direction: up enters long, down short.
func (e *Engine) evaluateEntry(ctx context.Context, symbol string, price float64, now time.Time) {
	if e.positions.Has(symbol) || !e.windows.Full(symbol) {
		return
	}

	ticks := e.windows.Ticks(symbol)
	vol := indicator.Volatility(ticks)
	surge := indicator.VolumeSurge(ticks, e.windows.Capacity())
	mom := indicator.Momentum(ticks)

	if vol < e.cfg.PriceChangeThreshold || surge < e.cfg.VolumeMultiplier {
		return
	}
	if mom < e.cfg.PriceChangeThreshold && mom > -e.cfg.PriceChangeThreshold {
		return
	}
	side := execution.Buy
	direction := signal.Buy
	if mom < 0 {
		side = execution.Sell
		direction = signal.Sell
	}

	qty, err := e.sizer.SizeScalping(price)
	if err != nil {
		e.log.Warn().Err(err).Str("sym", symbol).Msg("entry sizing failed")
		return
	}

	result, err := e.executor.Submit(ctx, execution.Order{
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Type:     execution.Limit,
		Strategy: "scalping",
		Reason:   fmt.Sprintf("vol=%.4f surge=%.2f mom=%.4f", vol, surge, mom),
	})
	if err != nil {
		e.log.Error().Err(err).Str("sym", symbol).Msg("entry order failed")
		return
	}
	if result.Status != broker.OrderAccepted {
		e.log.Warn().Str("sym", symbol).Str("reason", result.Reason).Msg("entry order rejected")
		return
	}

	if err := e.positions.Open(ledger.Position{
		Symbol:     symbol,
		Side:       direction,
		EntryPrice: price,
		EntryTime:  now,
		Quantity:   qty,
	}); err != nil {
		// A concurrent entry won the race; the duplicate order is the
		// executor's fill to unwind via the exit pass.
		e.log.Warn().Err(err).Str("sym", symbol).Msg("position already open")
		return
	}
	metrics.OpenPositions.Set(float64(e.positions.Len()))
	e.log.Info().Str("sym", symbol).Int64("qty", qty).Float64("px", price).Msg("position opened")
}

// CheckExits walks every open position and closes the ones whose exit rule
// fires, in stop-loss, take-profit, hold-time precedence. The emergency
// guard closes regardless of rule state and notifies the operator.
func (e *Engine) CheckExits(ctx context.Context, now time.Time) {
	for _, pos := range e.positions.Snapshot() {
		price := e.currentPrice(ctx, pos.Symbol)
		if price <= 0 {
			e.log.Warn().Str("sym", pos.Symbol).Msg("no price for exit check")
			continue
		}

		if ledger.EmergencyExceeded(pos, price) {
			e.closePosition(ctx, pos, price, ledger.ExitEmergency)
			if e.notifier != nil && e.notifier.IsReady() {
				msg := fmt.Sprintf("emergency exit %s: pnl %.2f%%", pos.Symbol, pos.PnLRate(price)*100)
				if err := e.notifier.Send(ctx, msg); err != nil {
					e.log.Warn().Err(err).Msg("emergency notification failed")
				}
			}
			continue
		}

		if reason, ok := e.exitRule.Evaluate(pos, price, now); ok {
			e.closePosition(ctx, pos, price, reason)
		}
	}
}

// currentPrice prefers the freshest buffered tick and falls back to a REST
// quote when the window is empty.
func (e *Engine) currentPrice(ctx context.Context, symbol string) float64 {
	if px := e.windows.LastPrice(symbol); px > 0 {
		return px
	}
	quote, err := e.transport.SymbolQuote(ctx, symbol)
	if err != nil {
		e.log.Warn().Err(err).Str("sym", symbol).Msg("quote fallback failed")
		return 0
	}
	return quote.CurrentPrice
}

func (e *Engine) closePosition(ctx context.Context, pos ledger.Position, price float64, reason ledger.ExitReason) {
	side := execution.Sell
	if pos.Side == signal.Sell {
		side = execution.Buy
	}
	result, err := e.executor.Submit(ctx, execution.Order{
		Symbol:   pos.Symbol,
		Side:     side,
		Quantity: pos.Quantity,
		Price:    0,
		Type:     execution.Market,
		Strategy: "scalping",
		Reason:   string(reason),
	})
	if err != nil {
		e.log.Error().Err(err).Str("sym", pos.Symbol).Msg("exit order failed")
		return
	}
	if result.Status != broker.OrderAccepted {
		e.log.Warn().Str("sym", pos.Symbol).Str("reason", result.Reason).Msg("exit order rejected")
		return
	}

	e.positions.Close(pos.Symbol)
	metrics.OpenPositions.Set(float64(e.positions.Len()))
	if e.stats != nil {
		e.stats.Record(pos.PnLRate(price) * pos.EntryPrice * float64(pos.Quantity))
	}
	e.log.Info().
		Str("sym", pos.Symbol).
		Str("reason", string(reason)).
		Float64("entry", pos.EntryPrice).
		Float64("exit", price).
		Float64("pnl_rate", pos.PnLRate(price)).
		Msg("position closed")
}
