package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/config"
)

// QuoteCacher is the optional hot cache in front of quote lookups.
type QuoteCacher interface {
	Get(ctx context.Context, symbol string) (SymbolQuote, error)
	Set(ctx context.Context, symbol string, quote SymbolQuote) error
}

// KISClient talks to the Korea Investment brokerage REST API. It owns the
// access token and refreshes it before expiry, or on demand when the
// watchdog forces a recovery.
type KISClient struct {
	baseURL   string
	appKey    string
	appSecret string
	accountNo string
	client    *http.Client
	cache     QuoteCacher
	log       zerolog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewKISClient builds a client from the broker section. The cache may be nil.
func NewKISClient(cfg config.Broker, cache QuoteCacher, log zerolog.Logger) *KISClient {
	return &KISClient{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		appKey:    cfg.AppKey,
		appSecret: cfg.AppSecret,
		accountNo: cfg.AccountNo,
		client:    &http.Client{Timeout: 10 * time.Second},
		cache:     cache,
		log:       log,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// ensureToken returns a valid access token, fetching one when missing or
// within a minute of expiry.
func (c *KISClient) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.token, nil
	}
	return c.fetchTokenLocked(ctx)
}

func (c *KISClient) fetchTokenLocked(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.appKey,
		"appsecret":  c.appSecret,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth2/tokenP", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: unexpected status %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("token decode: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response empty")
	}
	c.token = payload.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	c.log.Info().Time("expiry", c.tokenExpiry).Msg("access token refreshed")
	return c.token, nil
}

// ForceTokenRefresh discards the cached token and fetches a new one.
func (c *KISClient) ForceTokenRefresh(ctx context.Context) (RefreshResult, error) {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	_, err := c.fetchTokenLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return RefreshResult{Status: "failed", Message: err.Error()}, err
	}
	return RefreshResult{Status: "success", Message: "token reissued"}, nil
}

func (c *KISClient) authedRequest(ctx context.Context, method, path, trID string, query url.Values, body any) (*http.Request, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	req.Header.Set("tr_id", trID)
	return req, nil
}

func (c *KISClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type balanceResponse struct {
	Output2 []struct {
		Deposit string `json:"dnca_tot_amt"`
		Total   string `json:"tot_evlu_amt"`
	} `json:"output2"`
}

// AccountBalance fetches the deposit and total evaluation amounts.
func (c *KISClient) AccountBalance(ctx context.Context) (Balance, error) {
	query := url.Values{}
	query.Set("CANO", c.accountNo)
	query.Set("ACNT_PRDT_CD", "01")
	query.Set("INQR_DVSN", "02")
	req, err := c.authedRequest(ctx, http.MethodGet, "/uapi/domestic-stock/v1/trading/inquire-balance", "TTTC8434R", query, nil)
	if err != nil {
		return Balance{}, err
	}
	var payload balanceResponse
	if err := c.do(req, &payload); err != nil {
		return Balance{}, fmt.Errorf("balance: %w", err)
	}
	if len(payload.Output2) == 0 {
		return Balance{}, fmt.Errorf("balance: empty response")
	}
	cash, _ := strconv.ParseFloat(payload.Output2[0].Deposit, 64)
	total, _ := strconv.ParseFloat(payload.Output2[0].Total, 64)
	return Balance{CashBalance: cash, TotalBalance: total}, nil
}

type orderResponse struct {
	ReturnCode string `json:"rt_cd"`
	Message    string `json:"msg1"`
	Output     struct {
		OrderNo string `json:"ODNO"`
	} `json:"output"`
}

// PlaceOrder submits a cash order. A limit order carries its price; a
// market order sends price 0 with the market division code.
func (c *KISClient) PlaceOrder(ctx context.Context, symbol, side string, quantity int64, price float64, orderType, strategyTag, reasonTag string) (OrderResult, error) {
	trID := "TTTC0802U" // buy
	if side == "SELL" {
		trID = "TTTC0801U"
	}
	division := "00" // limit
	if orderType == "MARKET" {
		division = "01"
	}
	body := map[string]string{
		"CANO":         c.accountNo,
		"ACNT_PRDT_CD": "01",
		"PDNO":         symbol,
		"ORD_DVSN":     division,
		"ORD_QTY":      strconv.FormatInt(quantity, 10),
		"ORD_UNPR":     strconv.FormatInt(int64(price), 10),
	}
	req, err := c.authedRequest(ctx, http.MethodPost, "/uapi/domestic-stock/v1/trading/order-cash", trID, nil, body)
	if err != nil {
		return OrderResult{}, err
	}
	var payload orderResponse
	if err := c.do(req, &payload); err != nil {
		return OrderResult{}, fmt.Errorf("order %s %s: %w", side, symbol, err)
	}
	if payload.ReturnCode != "0" {
		return OrderResult{Status: "rejected", Reason: payload.Message}, nil
	}
	c.log.Info().
		Str("sym", symbol).
		Str("side", side).
		Int64("qty", quantity).
		Str("order_no", payload.Output.OrderNo).
		Str("strategy", strategyTag).
		Str("reason", reasonTag).
		Msg("order accepted")
	return OrderResult{Status: OrderAccepted, OrderID: payload.Output.OrderNo}, nil
}

type quoteResponse struct {
	Output struct {
		Price     string `json:"stck_prpr"`
		PrevClose string `json:"stck_sdpr"`
		Volume    string `json:"acml_vol"`
	} `json:"output"`
}

// SymbolQuote returns the current price snapshot, served from the cache
// when a fresh entry exists.
func (c *KISClient) SymbolQuote(ctx context.Context, symbol string) (SymbolQuote, error) {
	if c.cache != nil {
		if quote, err := c.cache.Get(ctx, symbol); err == nil {
			return quote, nil
		}
	}

	query := url.Values{}
	query.Set("FID_COND_MRKT_DIV_CODE", "J")
	query.Set("FID_INPUT_ISCD", symbol)
	req, err := c.authedRequest(ctx, http.MethodGet, "/uapi/domestic-stock/v1/quotations/inquire-price", "FHKST01010100", query, nil)
	if err != nil {
		return SymbolQuote{}, err
	}
	var payload quoteResponse
	if err := c.do(req, &payload); err != nil {
		return SymbolQuote{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	price, _ := strconv.ParseFloat(payload.Output.Price, 64)
	prev, _ := strconv.ParseFloat(payload.Output.PrevClose, 64)
	volume, _ := strconv.ParseInt(payload.Output.Volume, 10, 64)
	quote := SymbolQuote{CurrentPrice: price, PrevClose: prev, Volume: volume}

	if c.cache != nil {
		if err := c.cache.Set(ctx, symbol, quote); err != nil {
			c.log.Debug().Err(err).Str("sym", symbol).Msg("quote cache write failed")
		}
	}
	return quote, nil
}

type volumeRankResponse struct {
	Output []struct {
		Symbol string `json:"mksc_shrn_iscd"`
	} `json:"output"`
}

// TradableSymbols returns the exchange's volume-ranked symbol codes for the
// market. The order is the ranking the screener's fallback relies on.
func (c *KISClient) TradableSymbols(ctx context.Context, marketType string) ([]string, error) {
	query := url.Values{}
	query.Set("FID_COND_MRKT_DIV_CODE", "J")
	query.Set("FID_INPUT_ISCD", marketCode(marketType))
	query.Set("FID_BLNG_CLS_CODE", "0")
	req, err := c.authedRequest(ctx, http.MethodGet, "/uapi/domestic-stock/v1/quotations/volume-rank", "FHPST01710000", query, nil)
	if err != nil {
		return nil, err
	}
	var payload volumeRankResponse
	if err := c.do(req, &payload); err != nil {
		return nil, fmt.Errorf("volume rank: %w", err)
	}
	symbols := make([]string, 0, len(payload.Output))
	for _, row := range payload.Output {
		if row.Symbol != "" {
			symbols = append(symbols, row.Symbol)
		}
	}
	return symbols, nil
}

func marketCode(marketType string) string {
	switch strings.ToUpper(marketType) {
	case "KOSDAQ":
		return "1001"
	default:
		return "0000"
	}
}

var (
	_ TradingTransport = (*KISClient)(nil)
	_ SymbolCatalog    = (*KISClient)(nil)
)
