package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/broker"
)

// quoteTTL bounds how stale a cached quote may be served.
const quoteTTL = 2 * time.Second

// ErrCacheMiss is returned when no fresh quote is cached for the symbol.
var ErrCacheMiss = errors.New("quote not cached")

// QuoteCache keeps the latest REST quotes in redis so repeated lookups
// within a sweep do not hit the brokerage rate limit.
type QuoteCache struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewQuoteCache dials redis and verifies the connection.
func NewQuoteCache(ctx context.Context, addr string, db int, log zerolog.Logger) (*QuoteCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &QuoteCache{client: client, log: log}, nil
}

func quoteKey(symbol string) string { return "quote:" + symbol }

// Set stores the quote with the cache TTL.
func (c *QuoteCache) Set(ctx context.Context, symbol string, quote broker.SymbolQuote) error {
	payload, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("marshal quote: %w", err)
	}
	if err := c.client.Set(ctx, quoteKey(symbol), payload, quoteTTL).Err(); err != nil {
		return fmt.Errorf("cache quote %s: %w", symbol, err)
	}
	return nil
}

// Get returns the cached quote or ErrCacheMiss.
func (c *QuoteCache) Get(ctx context.Context, symbol string) (broker.SymbolQuote, error) {
	payload, err := c.client.Get(ctx, quoteKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return broker.SymbolQuote{}, ErrCacheMiss
	}
	if err != nil {
		return broker.SymbolQuote{}, fmt.Errorf("cache read %s: %w", symbol, err)
	}
	var quote broker.SymbolQuote
	if err := json.Unmarshal(payload, &quote); err != nil {
		return broker.SymbolQuote{}, fmt.Errorf("decode cached quote %s: %w", symbol, err)
	}
	return quote, nil
}

// Close releases the redis connection.
func (c *QuoteCache) Close() error {
	return c.client.Close()
}
