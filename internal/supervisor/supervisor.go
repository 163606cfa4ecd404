// Package supervisor owns the process lifecycle: startup, the periodic
// decision cycle, universe rescans, the liveness watchdog, and shutdown.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/broker"
	"github.com/tgparkk/trading-bot-sub001/internal/config"
	"github.com/tgparkk/trading-bot-sub001/internal/engine"
	"github.com/tgparkk/trading-bot-sub001/internal/execution"
	"github.com/tgparkk/trading-bot-sub001/internal/ledger"
	"github.com/tgparkk/trading-bot-sub001/internal/marketclock"
	"github.com/tgparkk/trading-bot-sub001/internal/metrics"
	"github.com/tgparkk/trading-bot-sub001/internal/screener"
	"github.com/tgparkk/trading-bot-sub001/internal/signal"
	"github.com/tgparkk/trading-bot-sub001/internal/strategy"
	"github.com/tgparkk/trading-bot-sub001/internal/window"
)

// State is the supervisor lifecycle phase.
type State string

const (
	StateInitializing State = "INITIALIZING"
	StateRunning      State = "RUNNING"
	StateError        State = "ERROR"
	StateStopped      State = "STOPPED"
)

// sweepDepth bounds how many universe symbols one buy sweep evaluates.
const sweepDepth = 50

// drainable is satisfied by notifiers that queue deliveries and can flush
// them with a bounded wait.
type drainable interface {
	Drain(ctx context.Context) error
}

// Deps carries the collaborators the supervisor drives.
type Deps struct {
	Cfg       config.Supervisor
	ScreenCfg config.Screening
	ExecCfg   config.Execution
	Clock     *marketclock.Clock
	Feed      broker.MarketDataFeed
	Transport broker.TradingTransport
	Screener  *screener.Screener
	Universe  *screener.Universe
	Scorer    *strategy.Scorer
	Engine    *engine.Engine
	Windows   *window.Store
	Positions *ledger.Ledger
	Stats     *ledger.Stats
	Sizer     *execution.Sizer
	Executor  *execution.Executor
	Notifier  broker.Notifier
	Persist   broker.Persistence
	Log       zerolog.Logger
}

// Supervisor runs the main decision cycle and the background watchdog.
type Supervisor struct {
	Deps

	rescanStart, rescanEnd int // minutes since midnight
	watchdogInterval       time.Duration

	mu            sync.Mutex
	state         State
	lastHeartbeat time.Time
	warned        bool
	lastSweep     time.Time
	closedDay     string

	shutdownOnce sync.Once
}

// New validates the rescan window and builds a supervisor in INITIALIZING.
func New(deps Deps) (*Supervisor, error) {
	start, err := minutesOfDay(deps.ScreenCfg.RescanWindowStart)
	if err != nil {
		return nil, fmt.Errorf("rescan window start: %w", err)
	}
	end, err := minutesOfDay(deps.ScreenCfg.RescanWindowEnd)
	if err != nil {
		return nil, fmt.Errorf("rescan window end: %w", err)
	}
	if end <= start {
		return nil, fmt.Errorf("rescan window %q-%q is empty", deps.ScreenCfg.RescanWindowStart, deps.ScreenCfg.RescanWindowEnd)
	}
	return &Supervisor{
		Deps:             deps,
		rescanStart:      start,
		rescanEnd:        end,
		watchdogInterval: time.Duration(deps.Cfg.WatchdogIntervalMins) * time.Minute,
		state:            StateInitializing,
		lastHeartbeat:    deps.Clock.Now(),
	}, nil
}

func minutesOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// CurrentState returns the lifecycle phase.
func (s *Supervisor) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(ctx context.Context, state State, detail string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.Log.Info().Str("state", string(state)).Str("detail", detail).Msg("state changed")
	if s.Persist != nil {
		if err := s.Persist.UpdateSystemStatus(ctx, string(state), detail); err != nil {
			s.Log.Warn().Err(err).Msg("status not persisted")
		}
	}
}

// Run drives the lifecycle until ctx is cancelled. It always returns after
// an idempotent shutdown; startup problems degrade rather than abort.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setState(ctx, StateInitializing, "starting")

	s.connectFeed(ctx)
	s.touchHeartbeat()

	if s.shouldRescan(s.Clock.Now()) {
		s.rescan(ctx)
	} else if err := s.Engine.Start(ctx, s.Universe.Active(s.ScreenCfg.ActiveSymbols)); err != nil {
		s.Log.Error().Err(err).Msg("engine start failed")
	}

	s.setState(ctx, StateRunning, "main cycle active")
	s.notify(ctx, "trading bot started")

	wctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchdog(wctx)
	}()

	ticker := time.NewTicker(time.Duration(s.Cfg.CycleSecs) * time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			s.cycle(ctx)
		}
	}

	cancel()
	wg.Wait()
	s.Shutdown(nil)
	return nil
}

// connectFeed dials the live feed with bounded retries. Exhausting the
// retries degrades to quote polling instead of failing startup.
func (s *Supervisor) connectFeed(ctx context.Context) {
	backoff := time.Duration(s.Cfg.ConnectBackoffSecs) * time.Second
	for attempt := 1; attempt <= s.Cfg.ConnectRetries; attempt++ {
		err := s.Feed.Connect(ctx)
		if err == nil {
			s.Log.Info().Int("attempt", attempt).Msg("feed connected")
			return
		}
		s.Log.Warn().Err(err).Int("attempt", attempt).Msg("feed connect failed")
		if attempt < s.Cfg.ConnectRetries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}
	s.Log.Error().Int("retries", s.Cfg.ConnectRetries).Msg("live feed unavailable, continuing degraded")
	s.notify(ctx, "live feed unavailable, running degraded")
}

// cycle is one pass of the 5 s main loop.
func (s *Supervisor) cycle(ctx context.Context) {
	now := s.Clock.Now()
	// Heartbeat moves only once the pass finishes, so a hung cycle
	// still trips the watchdog.
	defer s.touchHeartbeat()

	if s.shouldRescan(now) {
		s.rescan(ctx)
	}

	if s.Clock.SessionClosed(now) {
		s.closeOfMarket(ctx, now)
		return
	}
	if !s.Clock.IsOpen(now) {
		return
	}

	s.Engine.CheckExits(ctx, now)

	s.mu.Lock()
	due := now.Sub(s.lastSweep) >= time.Duration(s.Cfg.BuySweepSecs)*time.Second
	if due {
		s.lastSweep = now
	}
	s.mu.Unlock()
	if due {
		s.buySweep(ctx)
	}
}

// shouldRescan implements the three rescan triggers: never scanned, the
// daily pre-open window on a fresh calendar day, and scan staleness.
func (s *Supervisor) shouldRescan(now time.Time) bool {
	last, ok := s.Universe.LastScan()
	if !ok {
		return true
	}
	minutes := now.Hour()*60 + now.Minute()
	if minutes >= s.rescanStart && minutes < s.rescanEnd && last.Format("2006-01-02") != now.Format("2006-01-02") {
		return true
	}
	return now.Sub(last) > time.Duration(s.ScreenCfg.RescanMaxAgeHours)*time.Hour
}

// rescan refreshes the monitored universe. The engine is stopped for the
// scan and always restarted; a failed or empty scan keeps the previous
// universe so the process is never left without an engine.
func (s *Supervisor) rescan(ctx context.Context) {
	now := s.Clock.Now()
	s.Engine.Stop(ctx)
	defer func() {
		if err := s.Engine.Start(ctx, s.Universe.Active(s.ScreenCfg.ActiveSymbols)); err != nil {
			s.Log.Error().Err(err).Msg("engine restart failed")
		}
	}()

	symbols, err := s.Screener.Screen(ctx)
	if err != nil {
		s.Log.Error().Err(err).Msg("screening failed, keeping previous universe")
		return
	}
	if len(symbols) == 0 {
		s.Log.Warn().Msg("screening returned nothing, keeping previous universe")
		s.Universe.Replace(s.Universe.Symbols(), now)
		return
	}

	added, removed := s.Universe.Diff(symbols)
	s.Universe.Replace(symbols, now)
	metrics.RescansTotal.Inc()
	s.Log.Info().
		Int("universe", len(symbols)).
		Strs("added", added).
		Strs("removed", removed).
		Msg("universe rescanned")
}

// buySweep walks the top monitored symbols, scores each through the
// strategy registry, and opens deposit-sized positions for qualifiers.
// Evaluations are paced and the per-sweep order count is hard-capped.
func (s *Supervisor) buySweep(ctx context.Context) {
	balance, err := s.Transport.AccountBalance(ctx)
	if err != nil {
		s.Log.Warn().Err(err).Msg("balance lookup failed, skipping buy sweep")
		return
	}
	if balance.CashBalance <= 0 {
		s.Log.Warn().Float64("cash", balance.CashBalance).Msg("no deposit balance, skipping buy sweep")
		return
	}

	budget := execution.NewCycleBudget(s.ExecCfg.MaxOrdersPerCycle)
	pacing := time.Duration(s.Cfg.SweepPacingMs) * time.Millisecond

	for i, symbol := range s.Universe.Active(sweepDepth) {
		if !budget.Allow() {
			s.Log.Info().Int("orders", budget.Used()).Msg("sweep order cap reached")
			return
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pacing):
			}
		}
		if s.Positions.Has(symbol) {
			continue
		}

		score := s.Scorer.Score(ctx, symbol)
		if !score.Qualifies(s.ScreenCfg.MinBuyVotes) {
			continue
		}

		price := s.Windows.LastPrice(symbol)
		if price <= 0 {
			quote, err := s.Transport.SymbolQuote(ctx, symbol)
			if err != nil || quote.CurrentPrice <= 0 {
				s.Log.Warn().Err(err).Str("sym", symbol).Msg("no price for sweep entry")
				continue
			}
			price = quote.CurrentPrice
		}

		qty, err := s.Sizer.SizeUniverseBuy(balance, price)
		if err != nil {
			s.Log.Warn().Err(err).Str("sym", symbol).Msg("sweep sizing failed")
			return
		}
		result, err := s.Executor.Submit(ctx, execution.Order{
			Symbol:   symbol,
			Side:     execution.Buy,
			Quantity: qty,
			Price:    price,
			Type:     execution.Limit,
			Strategy: "sweep",
			Reason:   fmt.Sprintf("votes=%d score=%.1f", score.BuyVotes, score.TotalScore),
		})
		if err != nil {
			s.Log.Error().Err(err).Str("sym", symbol).Msg("sweep order failed")
			continue
		}
		if result.Status != broker.OrderAccepted {
			s.Log.Warn().Str("sym", symbol).Str("reason", result.Reason).Msg("sweep order rejected")
			continue
		}
		// An accepted order counts against the cap even if the ledger
		// open below loses a race with a concurrent fill.
		budget.Spend()
		if err := s.Positions.Open(ledger.Position{
			Symbol:     symbol,
			Side:       signal.Buy,
			EntryPrice: price,
			EntryTime:  s.Clock.Now(),
			Quantity:   qty,
		}); err != nil {
			s.Log.Warn().Err(err).Str("sym", symbol).Msg("sweep position already open")
			continue
		}
		metrics.OpenPositions.Set(float64(s.Positions.Len()))
	}
}

// closeOfMarket runs the once-per-day post-close sequence: performance
// snapshot, backup, daily report.
func (s *Supervisor) closeOfMarket(ctx context.Context, now time.Time) {
	day := now.Format("2006-01-02")
	s.mu.Lock()
	if s.closedDay == day {
		s.mu.Unlock()
		return
	}
	s.closedDay = day
	s.mu.Unlock()

	trades, _, realized := s.Stats.Snapshot()
	summary := broker.DailySummary{
		Date:        day,
		TradeCount:  trades,
		RealizedPnL: realized,
		WinRate:     s.Stats.WinRate(),
		TotalPnL:    realized,
	}
	if balance, err := s.Transport.AccountBalance(ctx); err == nil {
		summary.PortfolioValue = balance.TotalBalance
	} else {
		s.Log.Warn().Err(err).Msg("balance unavailable for daily summary")
	}

	if s.Persist != nil {
		if err := s.Persist.SavePerformance(ctx, summary); err != nil {
			s.Log.Warn().Err(err).Msg("daily performance not persisted")
		}
		if err := s.Persist.Backup(ctx); err != nil {
			s.Log.Warn().Err(err).Msg("backup failed")
		}
	}
	s.notify(ctx, fmt.Sprintf("daily report %s: %d trades, pnl %.0f, win rate %.0f%%",
		day, summary.TradeCount, summary.RealizedPnL, summary.WinRate*100))
	s.Stats.Reset()
	s.Log.Info().Str("day", day).Int("trades", trades).Float64("pnl", realized).Msg("close-of-market handled")
}

func (s *Supervisor) touchHeartbeat() {
	s.mu.Lock()
	s.lastHeartbeat = s.Clock.Now()
	s.warned = false
	s.mu.Unlock()
}

// watchdog checks heartbeat age on a fixed timer, warning at 80% of the
// stall interval and recovering at 100%.
func (s *Supervisor) watchdog(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.Cfg.WatchdogCheckSecs) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHeartbeat(ctx)
		}
	}
}

func (s *Supervisor) checkHeartbeat(ctx context.Context) {
	now := s.Clock.Now()
	s.mu.Lock()
	age := now.Sub(s.lastHeartbeat)
	warned := s.warned
	s.mu.Unlock()

	switch {
	case age >= s.watchdogInterval:
		s.Log.Error().Dur("age", age).Msg("heartbeat stalled, attempting recovery")
		s.notify(ctx, fmt.Sprintf("main cycle stalled for %s, forcing token refresh", age.Round(time.Second)))
		if _, err := s.Transport.ForceTokenRefresh(ctx); err != nil {
			s.Log.Error().Err(err).Msg("token refresh failed")
		}
		metrics.WatchdogRecoveriesTotal.Inc()
		// Reset regardless of the refresh outcome so the alarm does not
		// refire while recovery is presumed in flight.
		s.touchHeartbeat()
	case age >= s.watchdogInterval*8/10 && !warned:
		s.mu.Lock()
		s.warned = true
		s.mu.Unlock()
		s.Log.Warn().Dur("age", age).Msg("heartbeat aging")
		s.notify(ctx, fmt.Sprintf("main cycle quiet for %s", age.Round(time.Second)))
	}
}

// Shutdown stops the engine, closes the feed, persists the final state, and
// drains notifications with a bounded wait. Safe to call more than once;
// runErr selects STOPPED vs ERROR.
func (s *Supervisor) Shutdown(runErr error) {
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.Engine.Stop(ctx)
		if err := s.Feed.Close(); err != nil {
			s.Log.Warn().Err(err).Msg("feed close failed")
		}

		if runErr != nil {
			s.setState(ctx, StateError, runErr.Error())
			s.notify(ctx, fmt.Sprintf("trading bot stopped on error: %v", runErr))
		} else {
			s.setState(ctx, StateStopped, "normal shutdown")
			s.notify(ctx, "trading bot stopped")
		}

		if d, ok := s.Notifier.(drainable); ok {
			if err := d.Drain(ctx); err != nil {
				s.Log.Warn().Err(err).Msg("notification drain incomplete")
			}
		}
		s.Log.Info().Msg("shutdown complete")
	})
}

// notify sends best-effort; delivery failures are logged, never propagated.
func (s *Supervisor) notify(ctx context.Context, text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Send(ctx, text); err != nil {
		s.Log.Warn().Err(err).Msg("notification failed")
	}
}
