// Package broker declares the collaborator boundaries the engine calls and
// hosts the market-data feed adapters.
package broker

import (
	"context"

	"github.com/tgparkk/trading-bot-sub001/internal/signal"
)

// TickHandler receives parsed trade events from a feed.
type TickHandler func(signal.Tick)

// OrderbookHandler receives parsed orderbook snapshots from a feed.
type OrderbookHandler func(signal.OrderbookSnapshot)

// Channel names a feed subscription kind.
type Channel string

const (
	ChannelPrice     Channel = "price"
	ChannelOrderbook Channel = "orderbook"
)

// MarketDataFeed streams live ticks and orderbook snapshots.
type MarketDataFeed interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	SubscribePrice(ctx context.Context, symbol string, handler TickHandler) error
	SubscribeOrderbook(ctx context.Context, symbol string, handler OrderbookHandler) error
	Unsubscribe(ctx context.Context, symbol string, channel Channel) error
	Close() error
}

// Balance is the deposit view the sizer works from.
type Balance struct {
	CashBalance  float64
	TotalBalance float64
}

// OrderResult reports the outcome of a placement attempt.
type OrderResult struct {
	Status  string
	OrderID string
	Reason  string
}

// OrderAccepted is the transport status for a filled placement request.
const OrderAccepted = "success"

// SymbolQuote is the REST-side view of a symbol.
type SymbolQuote struct {
	CurrentPrice float64
	PrevClose    float64
	Volume       int64
}

// RefreshResult reports a forced credential refresh.
type RefreshResult struct {
	Status  string
	Message string
}

// TradingTransport is the brokerage order/account surface.
type TradingTransport interface {
	AccountBalance(ctx context.Context) (Balance, error)
	PlaceOrder(ctx context.Context, symbol, side string, quantity int64, price float64, orderType, strategyTag, reasonTag string) (OrderResult, error)
	SymbolQuote(ctx context.Context, symbol string) (SymbolQuote, error)
	ForceTokenRefresh(ctx context.Context) (RefreshResult, error)
}

// SymbolCatalog lists tradable symbols ranked by volume.
type SymbolCatalog interface {
	TradableSymbols(ctx context.Context, marketType string) ([]string, error)
}

// Notifier delivers operator-facing messages.
type Notifier interface {
	Send(ctx context.Context, text string) error
	IsReady() bool
	Ready() <-chan struct{}
}

// DailySummary is the close-of-market performance snapshot.
type DailySummary struct {
	Date           string
	TradeCount     int
	RealizedPnL    float64
	WinRate        float64
	TotalPnL       float64
	PortfolioValue float64
}

// TradeRecord is the audit row persisted for each executed order.
type TradeRecord struct {
	ClientID string
	Symbol   string
	Side     string
	Quantity int64
	Price    float64
	Strategy string
	Reason   string
	OrderID  string
}

// Persistence stores status transitions, trades, and performance.
type Persistence interface {
	UpdateSystemStatus(ctx context.Context, status, detail string) error
	SaveTrade(ctx context.Context, trade TradeRecord) error
	SavePerformance(ctx context.Context, summary DailySummary) error
	Backup(ctx context.Context) error
}
