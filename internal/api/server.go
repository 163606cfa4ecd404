// Package api exposes a read-only dashboard over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/broker"
	"github.com/tgparkk/trading-bot-sub001/internal/ledger"
	"github.com/tgparkk/trading-bot-sub001/internal/screener"
	"github.com/tgparkk/trading-bot-sub001/internal/supervisor"
	"github.com/tgparkk/trading-bot-sub001/internal/window"
)

// StateSource reports the supervisor lifecycle phase.
type StateSource interface {
	CurrentState() supervisor.State
}

// Server serves process state for operators: lifecycle phase, open
// positions, and the monitored universe.
type Server struct {
	sup       StateSource
	positions *ledger.Ledger
	universe  *screener.Universe
	windows   *window.Store
	feed      broker.MarketDataFeed
	log       zerolog.Logger
}

// New wires the dashboard over the shared state holders.
func New(sup StateSource, positions *ledger.Ledger, universe *screener.Universe, windows *window.Store, feed broker.MarketDataFeed, log zerolog.Logger) *Server {
	return &Server{sup: sup, positions: positions, universe: universe, windows: windows, feed: feed, log: log}
}

// Router builds the gin routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/status", s.status)
	r.GET("/positions", s.listPositions)
	r.GET("/universe", s.listUniverse)
	return r
}

// Serve starts the HTTP server in the background and returns it so the
// caller can shut it down.
func (s *Server) Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Str("addr", addr).Msg("api server stopped")
		}
	}()
	return srv
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	lastScan, scanned := s.universe.LastScan()
	resp := gin.H{
		"state":          string(s.sup.CurrentState()),
		"feed_connected": s.feed.IsConnected(),
		"universe_size":  s.universe.Len(),
		"open_positions": s.positions.Len(),
	}
	if scanned {
		resp["last_scan"] = lastScan.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

type positionView struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	EntryPrice float64 `json:"entry_price"`
	EntryTime  string  `json:"entry_time"`
	Quantity   int64   `json:"quantity"`
	LastPrice  float64 `json:"last_price,omitempty"`
	PnLRate    float64 `json:"pnl_rate"`
}

func (s *Server) listPositions(c *gin.Context) {
	open := s.positions.Snapshot()
	views := make([]positionView, 0, len(open))
	for _, pos := range open {
		view := positionView{
			Symbol:     pos.Symbol,
			Side:       string(pos.Side),
			EntryPrice: pos.EntryPrice,
			EntryTime:  pos.EntryTime.Format(time.RFC3339),
			Quantity:   pos.Quantity,
		}
		if price := s.windows.LastPrice(pos.Symbol); price > 0 {
			view.LastPrice = price
			view.PnLRate = pos.PnLRate(price)
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"positions": views})
}

func (s *Server) listUniverse(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": s.universe.Symbols()})
}
