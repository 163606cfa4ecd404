package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/config"
)

func TestNewTelegramRequiresCredentials(t *testing.T) {
	if n := NewTelegram(config.Telegram{}, zerolog.Nop()); n != nil {
		t.Fatal("expected nil notifier without credentials")
	}
	if n := NewTelegram(config.Telegram{Token: "tok"}, zerolog.Nop()); n != nil {
		t.Fatal("expected nil notifier without chat id")
	}
}

func TestTelegramDeliversQueuedMessages(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	mux := http.NewServeMux()
	mux.HandleFunc("/bottok/getMe", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/bottok/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sent = append(sent, r.URL.Path)
		mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	n := NewTelegram(config.Telegram{Token: "tok", ChatID: "42"}, zerolog.Nop())
	n.apiBase = srv.URL

	// Queued before the worker starts; must not be lost.
	if err := n.Send(context.Background(), "early"); err != nil {
		t.Fatalf("send: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)

	select {
	case <-n.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("worker never ready")
	}
	if !n.IsReady() {
		t.Fatal("IsReady false after ready")
	}

	if err := n.Send(ctx, "later"); err != nil {
		t.Fatalf("send: %v", err)
	}

	cancel()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer drainCancel()
	if err := n.Drain(drainCtx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 2 {
		t.Fatalf("delivered %d messages, want 2", len(sent))
	}
}

func TestTelegramDeliversAfterRunContextCancelled(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	mux := http.NewServeMux()
	mux.HandleFunc("/bottok/getMe", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/bottok/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sent = append(sent, r.URL.Path)
		mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	n := NewTelegram(config.Telegram{Token: "tok", ChatID: "42"}, zerolog.Nop())
	n.apiBase = srv.URL

	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)
	select {
	case <-n.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("worker never ready")
	}

	// Shutdown order: the run context dies first, then the supervisor
	// enqueues its stopped notification and drains. The message must
	// still go out.
	cancel()
	if err := n.Send(context.Background(), "trading bot stopped"); err != nil {
		t.Fatalf("send: %v", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer drainCancel()
	if err := n.Drain(drainCtx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(sent))
	}
}

func TestTelegramQueueFull(t *testing.T) {
	n := NewTelegram(config.Telegram{Token: "tok", ChatID: "42"}, zerolog.Nop())
	for i := 0; i < queueDepth; i++ {
		if err := n.Send(context.Background(), "x"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := n.Send(context.Background(), "overflow"); err == nil {
		t.Fatal("expected queue-full error")
	}
}

func TestNopNotifier(t *testing.T) {
	var n Nop
	if err := n.Send(context.Background(), "x"); err != nil {
		t.Fatalf("nop send: %v", err)
	}
	if !n.IsReady() {
		t.Fatal("nop not ready")
	}
	select {
	case <-n.Ready():
	default:
		t.Fatal("nop ready channel not closed")
	}
}
