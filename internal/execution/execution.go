// Package execution turns accepted signals into risk-bounded order requests
// and submits them through the trading transport.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/broker"
	"github.com/tgparkk/trading-bot-sub001/internal/config"
	"github.com/tgparkk/trading-bot-sub001/internal/metrics"
)

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy indicates a long order.
	Buy Side = "BUY"
	// Sell indicates a short order.
	Sell Side = "SELL"
)

// OrderType selects limit or market execution.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// Order represents a placement request carrying the audit tags downstream
// systems expect.
type Order struct {
	ClientID string
	Symbol   string
	Side     Side
	Quantity int64
	Price    float64 // 0 for market orders
	Type     OrderType
	Strategy string
	Reason   string
}

// ErrInsufficientFunds signals the buy pass must be skipped this cycle.
var ErrInsufficientFunds = errors.New("no deposit balance available")

// Sizer computes order quantities under the configured risk caps.
type Sizer struct {
	cfg              config.Execution
	scalpingNotional float64
	log              zerolog.Logger
}

// NewSizer builds a sizer from the execution limits and the fixed scalping
// position size.
func NewSizer(cfg config.Execution, scalpingNotional float64, log zerolog.Logger) *Sizer {
	if scalpingNotional <= 0 {
		scalpingNotional = 1_000_000
	}
	return &Sizer{cfg: cfg, scalpingNotional: scalpingNotional, log: log}
}

// SizeUniverseBuy sizes a screening-driven buy from the account deposit:
// the order notional is the configured fraction of available cash.
func (s *Sizer) SizeUniverseBuy(balance broker.Balance, price float64) (int64, error) {
	if balance.CashBalance <= 0 {
		return 0, ErrInsufficientFunds
	}
	if price <= 0 {
		return 0, fmt.Errorf("invalid price %f", price)
	}
	notional := balance.CashBalance * s.cfg.DepositRatio
	qty := int64(math.Floor(notional / price))
	if qty < 1 {
		qty = 1
	}
	return s.clamp(qty, price), nil
}

// SizeScalping sizes a scalping entry from the fixed position notional.
func (s *Sizer) SizeScalping(price float64) (int64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("invalid price %f", price)
	}
	qty := int64(math.Floor(s.scalpingNotional / price))
	if qty < 1 {
		qty = 1
	}
	return s.clamp(qty, price), nil
}

// clamp recomputes the quantity when the order value would exceed the hard
// ceiling. The clamp is logged, never an error.
func (s *Sizer) clamp(qty int64, price float64) int64 {
	if float64(qty)*price <= s.cfg.MaxOrderValue {
		return qty
	}
	clamped := int64(math.Floor(s.cfg.MaxOrderValue / price))
	if clamped < 1 {
		clamped = 1
	}
	metrics.OrderClampsTotal.Inc()
	s.log.Warn().Int64("qty", qty).Int64("clamped", clamped).Float64("px", price).Msg("order value over ceiling, resized")
	return clamped
}

// CycleBudget caps how many buy orders one screening cycle may place.
type CycleBudget struct {
	max  int
	used int
}

// NewCycleBudget builds a budget of max orders.
func NewCycleBudget(max int) *CycleBudget {
	if max <= 0 {
		max = 3
	}
	return &CycleBudget{max: max}
}

// Allow reports whether another order fits in this cycle.
func (b *CycleBudget) Allow() bool { return b.used < b.max }

// Spend consumes one order slot.
func (b *CycleBudget) Spend() { b.used++ }

// Reset starts a fresh cycle.
func (b *CycleBudget) Reset() { b.used = 0 }

// Used returns how many orders the cycle has placed.
func (b *CycleBudget) Used() int { return b.used }

// Executor submits orders through the trading transport and records the
// audit trail.
type Executor struct {
	transport broker.TradingTransport
	persist   broker.Persistence
	timeout   time.Duration
	log       zerolog.Logger
}

// NewExecutor wires the transport and optional persistence backend.
func NewExecutor(transport broker.TradingTransport, persist broker.Persistence, log zerolog.Logger) *Executor {
	return &Executor{transport: transport, persist: persist, timeout: 5 * time.Second, log: log}
}

// Submit places the order with a bounded timeout. A rejected order is
// returned as a result, not an error; errors mean the transport itself failed.
func (e *Executor) Submit(ctx context.Context, order Order) (broker.OrderResult, error) {
	if order.ClientID == "" {
		order.ClientID = uuid.NewString()
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.transport.PlaceOrder(callCtx, order.Symbol, string(order.Side), order.Quantity, order.Price, string(order.Type), order.Strategy, order.Reason)
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("place order %s %s: %w", order.Side, order.Symbol, err)
	}

	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side), order.Strategy).Inc()
	e.log.Info().
		Str("client_id", order.ClientID).
		Str("sym", order.Symbol).
		Str("side", string(order.Side)).
		Int64("qty", order.Quantity).
		Float64("px", order.Price).
		Str("strategy", order.Strategy).
		Str("reason", order.Reason).
		Str("status", result.Status).
		Msg("order submitted")

	if result.Status == broker.OrderAccepted && e.persist != nil {
		record := broker.TradeRecord{
			ClientID: order.ClientID,
			Symbol:   order.Symbol,
			Side:     string(order.Side),
			Quantity: order.Quantity,
			Price:    order.Price,
			Strategy: order.Strategy,
			Reason:   order.Reason,
			OrderID:  result.OrderID,
		}
		if err := e.persist.SaveTrade(ctx, record); err != nil {
			e.log.Warn().Err(err).Str("sym", order.Symbol).Msg("trade record not persisted")
		}
	}
	return result, nil
}
