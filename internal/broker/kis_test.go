package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/config"
)

func kisServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	tokenIssues := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/tokenP", func(w http.ResponseWriter, r *http.Request) {
		tokenIssues++
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 86400})
	})
	mux.HandleFunc("/uapi/domestic-stock/v1/quotations/inquire-price", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"output": map[string]string{
			"stck_prpr": "70500", "stck_sdpr": "70000", "acml_vol": "123456",
		}})
	})
	mux.HandleFunc("/uapi/domestic-stock/v1/trading/order-cash", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["ORD_QTY"] == "0" {
			json.NewEncoder(w).Encode(map[string]any{"rt_cd": "1", "msg1": "invalid quantity"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"rt_cd": "0", "output": map[string]string{"ODNO": "20260105-0001"}})
	})
	mux.HandleFunc("/uapi/domestic-stock/v1/quotations/volume-rank", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"output": []map[string]string{
			{"mksc_shrn_iscd": "005930"},
			{"mksc_shrn_iscd": "000660"},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenIssues
}

func testClient(t *testing.T) (*KISClient, *int) {
	srv, tokenIssues := kisServer(t)
	client := NewKISClient(config.Broker{
		BaseURL: srv.URL, AppKey: "key", AppSecret: "secret", AccountNo: "12345678",
	}, nil, zerolog.Nop())
	return client, tokenIssues
}

func TestKISQuote(t *testing.T) {
	client, tokenIssues := testClient(t)
	ctx := context.Background()

	quote, err := client.SymbolQuote(ctx, "005930")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.CurrentPrice != 70500 || quote.PrevClose != 70000 || quote.Volume != 123456 {
		t.Fatalf("quote = %+v", quote)
	}

	// A second call reuses the cached token.
	if _, err := client.SymbolQuote(ctx, "005930"); err != nil {
		t.Fatalf("second quote: %v", err)
	}
	if *tokenIssues != 1 {
		t.Fatalf("token issued %d times, want 1", *tokenIssues)
	}
}

func TestKISPlaceOrder(t *testing.T) {
	client, _ := testClient(t)
	ctx := context.Background()

	result, err := client.PlaceOrder(ctx, "005930", "BUY", 10, 70500, "LIMIT", "sweep", "entry")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if result.Status != OrderAccepted || result.OrderID != "20260105-0001" {
		t.Fatalf("result = %+v", result)
	}
}

func TestKISPlaceOrderRejected(t *testing.T) {
	client, _ := testClient(t)

	result, err := client.PlaceOrder(context.Background(), "005930", "BUY", 0, 0, "MARKET", "sweep", "entry")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if result.Status == OrderAccepted {
		t.Fatal("expected rejection")
	}
	if result.Reason != "invalid quantity" {
		t.Fatalf("reason = %q", result.Reason)
	}
}

func TestKISForceTokenRefresh(t *testing.T) {
	client, tokenIssues := testClient(t)
	ctx := context.Background()

	if _, err := client.SymbolQuote(ctx, "005930"); err != nil {
		t.Fatalf("quote: %v", err)
	}
	result, err := client.ForceTokenRefresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.Status != "success" {
		t.Fatalf("status = %s", result.Status)
	}
	if *tokenIssues != 2 {
		t.Fatalf("token issued %d times, want 2", *tokenIssues)
	}
}

func TestKISTradableSymbols(t *testing.T) {
	client, _ := testClient(t)

	symbols, err := client.TradableSymbols(context.Background(), "KOSPI")
	if err != nil {
		t.Fatalf("symbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "005930" {
		t.Fatalf("symbols = %v", symbols)
	}
}
