package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/metrics"
	"github.com/tgparkk/trading-bot-sub001/internal/signal"
)

type wsEnvelope struct {
	Channel   string  `json:"channel"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	BidVolume int64   `json:"bid_volume"`
	AskVolume int64   `json:"ask_volume"`
	Ts        int64   `json:"ts"`
}

type wsControl struct {
	Op      string `json:"op"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
}

// WSFeed is a websocket-backed market data feed with automatic reconnect.
// Handlers are dispatched from a single read loop, so a symbol's events
// arrive in stream order.
type WSFeed struct {
	url string
	log zerolog.Logger

	mu            sync.RWMutex
	conn          *websocket.Conn
	connected     bool
	priceHandlers map[string]TickHandler
	bookHandlers  map[string]OrderbookHandler

	// writeMu serializes every conn write: gorilla/websocket supports at
	// most one concurrent writer, and control frames are sent from the
	// subscribe paths while the ping timer writes from the read loop.
	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWSFeed builds a feed pointed at the given websocket endpoint.
func NewWSFeed(url string, log zerolog.Logger) *WSFeed {
	return &WSFeed{
		url:           url,
		log:           log,
		priceHandlers: make(map[string]TickHandler),
		bookHandlers:  make(map[string]OrderbookHandler),
	}
}

// Connect dials the endpoint and starts the read loop. The loop reconnects
// with exponential backoff until ctx is canceled or Close is called.
func (f *WSFeed) Connect(ctx context.Context) error {
	conn, err := f.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.cancel = cancel
	f.done = make(chan struct{})
	f.mu.Unlock()

	go f.run(runCtx)
	return nil
}

func (f *WSFeed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

// IsConnected reports whether a live connection is established.
func (f *WSFeed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// SubscribePrice registers a tick handler and requests the price channel.
func (f *WSFeed) SubscribePrice(ctx context.Context, symbol string, handler TickHandler) error {
	f.mu.Lock()
	f.priceHandlers[symbol] = handler
	f.mu.Unlock()
	return f.sendControl("subscribe", ChannelPrice, symbol)
}

// SubscribeOrderbook registers an orderbook handler and requests the orderbook channel.
func (f *WSFeed) SubscribeOrderbook(ctx context.Context, symbol string, handler OrderbookHandler) error {
	f.mu.Lock()
	f.bookHandlers[symbol] = handler
	f.mu.Unlock()
	return f.sendControl("subscribe", ChannelOrderbook, symbol)
}

// Unsubscribe drops the handler and tells the feed to stop the channel.
func (f *WSFeed) Unsubscribe(ctx context.Context, symbol string, channel Channel) error {
	f.mu.Lock()
	switch channel {
	case ChannelPrice:
		delete(f.priceHandlers, symbol)
	case ChannelOrderbook:
		delete(f.bookHandlers, symbol)
	}
	f.mu.Unlock()
	return f.sendControl("unsubscribe", channel, symbol)
}

func (f *WSFeed) sendControl(op string, channel Channel, symbol string) error {
	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("feed not connected")
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(wsControl{Op: op, Channel: string(channel), Symbol: symbol})
}

// Close stops the read loop and closes the connection. Safe to call twice.
func (f *WSFeed) Close() error {
	f.mu.Lock()
	cancel := f.cancel
	conn := f.conn
	done := f.done
	f.cancel = nil
	f.conn = nil
	f.connected = false
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
		}
	}
	return err
}

func (f *WSFeed) run(ctx context.Context) {
	defer close(f.done)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		if err := f.consume(ctx, conn); err != nil {
			if ctx.Err() != nil {
				return
			}
			f.log.Warn().Err(err).Msg("feed disconnected, retrying")
			f.setConnected(false)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))

			next, err := f.dial(ctx)
			if err != nil {
				f.log.Warn().Err(err).Msg("feed redial failed")
				continue
			}
			f.mu.Lock()
			f.conn = next
			f.connected = true
			f.mu.Unlock()
			f.resubscribe()
			backoff = time.Second
			continue
		}
		return
	}
}

func (f *WSFeed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *WSFeed) resubscribe() {
	f.mu.RLock()
	prices := make([]string, 0, len(f.priceHandlers))
	for sym := range f.priceHandlers {
		prices = append(prices, sym)
	}
	books := make([]string, 0, len(f.bookHandlers))
	for sym := range f.bookHandlers {
		books = append(books, sym)
	}
	f.mu.RUnlock()

	for _, sym := range prices {
		if err := f.sendControl("subscribe", ChannelPrice, sym); err != nil {
			f.log.Warn().Err(err).Str("sym", sym).Msg("price resubscribe failed")
		}
	}
	for _, sym := range books {
		if err := f.sendControl("subscribe", ChannelOrderbook, sym); err != nil {
			f.log.Warn().Err(err).Str("sym", sym).Msg("orderbook resubscribe failed")
		}
	}
}

func (f *WSFeed) consume(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f.writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				f.writeMu.Unlock()
				if err != nil {
					f.log.Warn().Err(err).Msg("feed ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env wsEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode feed message")
			continue
		}
		f.dispatch(env)
	}
}

func (f *WSFeed) dispatch(env wsEnvelope) {
	ts := time.UnixMilli(env.Ts)
	switch Channel(env.Channel) {
	case ChannelPrice:
		f.mu.RLock()
		handler := f.priceHandlers[env.Symbol]
		f.mu.RUnlock()
		if handler == nil {
			return
		}
		handler(signal.Tick{Symbol: env.Symbol, Price: env.Price, Volume: env.Volume, Ts: ts})
		metrics.TicksTotal.WithLabelValues(env.Symbol).Inc()
	case ChannelOrderbook:
		f.mu.RLock()
		handler := f.bookHandlers[env.Symbol]
		f.mu.RUnlock()
		if handler == nil {
			return
		}
		handler(signal.NewOrderbookSnapshot(env.Symbol, env.BidVolume, env.AskVolume, ts))
	}
}
