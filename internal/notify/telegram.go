// Package notify delivers operator messages over Telegram.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/config"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	queueDepth     = 64
	sendTimeout    = 5 * time.Second
)

// Telegram queues messages and delivers them from a single worker. Sends
// before the worker verifies the bot are buffered, not lost.
type Telegram struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
	log     zerolog.Logger

	queue    chan string
	ready    chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewTelegram builds a notifier; Start must be called before messages flow.
// Returns nil when the token or chat id is missing, so callers can fall
// back to the no-op notifier.
func NewTelegram(cfg config.Telegram, log zerolog.Logger) *Telegram {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil
	}
	return &Telegram{
		apiBase: defaultAPIBase,
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		client:  &http.Client{Timeout: sendTimeout},
		log:     log,
		queue:   make(chan string, queueDepth),
		ready:   make(chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the delivery worker. The worker outlives ctx, which bounds
// only the startup verification: messages queued during shutdown, after the
// run context is cancelled, must still reach the operator. Drain stops the
// worker.
func (t *Telegram) Start(ctx context.Context) {
	go t.run(ctx)
}

func (t *Telegram) run(ctx context.Context) {
	if err := t.verify(ctx); err != nil {
		t.log.Warn().Err(err).Msg("telegram verification failed, sending best effort")
	}
	close(t.ready)

	for {
		select {
		case <-t.stop:
			t.flush()
			close(t.done)
			return
		case text := <-t.queue:
			sendCtx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			t.deliver(sendCtx, text)
			cancel()
		}
	}
}

// flush delivers whatever is left in the queue with per-message timeouts.
func (t *Telegram) flush() {
	for {
		select {
		case text := <-t.queue:
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			t.deliver(ctx, text)
			cancel()
		default:
			return
		}
	}
}

func (t *Telegram) verify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/bot%s/getMe", t.apiBase, t.token), nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("getMe status %d", resp.StatusCode)
	}
	t.log.Info().Msg("telegram bot verified")
	return nil
}

func (t *Telegram) deliver(ctx context.Context, text string) {
	body, err := json.Marshal(map[string]string{"chat_id": t.chatID, "text": text})
	if err != nil {
		t.log.Error().Err(err).Msg("telegram payload encode failed")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token), bytes.NewReader(body))
	if err != nil {
		t.log.Error().Err(err).Msg("telegram request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn().Err(err).Msg("telegram send failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.log.Warn().Int("status", resp.StatusCode).Msg("telegram send rejected")
	}
}

// Send enqueues the message without blocking; a full queue returns an error.
func (t *Telegram) Send(ctx context.Context, text string) error {
	select {
	case t.queue <- text:
		return nil
	default:
		return errors.New("notification queue full")
	}
}

// IsReady reports whether the worker finished its startup verification.
func (t *Telegram) IsReady() bool {
	select {
	case <-t.ready:
		return true
	default:
		return false
	}
}

// Ready is closed once the worker has started.
func (t *Telegram) Ready() <-chan struct{} { return t.ready }

// Drain stops the worker and waits for it to flush outstanding deliveries,
// bounded by ctx.
func (t *Telegram) Drain(ctx context.Context) error {
	t.stopOnce.Do(func() { close(t.stop) })
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification drain: %w", ctx.Err())
	}
}

// Nop is the notifier used when Telegram is not configured.
type Nop struct{}

func (Nop) Send(ctx context.Context, text string) error { return nil }
func (Nop) IsReady() bool                               { return true }
func (Nop) Ready() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
