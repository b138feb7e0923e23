package backpack

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yukaisun/crossarb/internal/domain"
)

const (
	defaultBaseURL = "https://api.backpack.exchange"
	signWindowMS   = 5000
)

// Client is the REST client for the Backpack exchange API. Private endpoints
// are signed with the account's ED25519 key.
type Client struct {
	baseURL    string
	publicKey  string
	privateKey ed25519.PrivateKey
	httpClient *http.Client
	now        func() time.Time
}

// NewClient builds a client from the base64-encoded ED25519 seed issued by
// Backpack. Missing credentials are fatal: this adapter cannot run
// unauthenticated.
func NewClient(baseURL, publicKey, secretB64 string) (*Client, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if publicKey == "" || secretB64 == "" {
		return nil, fmt.Errorf("backpack: public and secret key required: %w", domain.ErrMissingCredentials)
	}

	seed, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil {
		return nil, fmt.Errorf("backpack: decode secret key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("backpack: secret key must be a %d-byte ed25519 seed", ed25519.SeedSize)
	}

	return &Client{
		baseURL:    baseURL,
		publicKey:  publicKey,
		privateKey: ed25519.NewKeyFromSeed(seed),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}, nil
}

// GetMarket fetches contract metadata for one symbol.
func (c *Client) GetMarket(ctx context.Context, symbol string) (marketResponse, error) {
	query := url.Values{"symbol": {symbol}}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/market", query, "", nil)
	if err != nil {
		return marketResponse{}, fmt.Errorf("backpack: get market %s: %w", symbol, err)
	}

	var market marketResponse
	if err := json.Unmarshal(body, &market); err != nil {
		return marketResponse{}, fmt.Errorf("backpack: decode market: %w", err)
	}
	if market.Symbol == "" {
		return marketResponse{}, fmt.Errorf("backpack: market %s: %w", symbol, domain.ErrTickerNotFound)
	}
	return market, nil
}

// GetDepth fetches the full order book snapshot.
func (c *Client) GetDepth(ctx context.Context, symbol string) (depthResponse, error) {
	query := url.Values{"symbol": {symbol}}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/depth", query, "", nil)
	if err != nil {
		return depthResponse{}, fmt.Errorf("backpack: get depth %s: %w", symbol, err)
	}

	var depth depthResponse
	if err := json.Unmarshal(body, &depth); err != nil {
		return depthResponse{}, fmt.Errorf("backpack: decode depth: %w", err)
	}
	return depth, nil
}

// GetPosition returns the signed net position for the symbol, zero when the
// account holds none.
func (c *Client) GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/position", nil, "positionQuery", nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("backpack: get positions: %w", err)
	}

	var positions []positionResponse
	if err := json.Unmarshal(body, &positions); err != nil {
		return decimal.Zero, fmt.Errorf("backpack: decode positions: %w", err)
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			qty, err := decimal.NewFromString(p.NetQuantity)
			if err != nil {
				return decimal.Zero, fmt.Errorf("backpack: parse net quantity %q: %w", p.NetQuantity, err)
			}
			return qty, nil
		}
	}
	return decimal.Zero, nil
}

// ExecuteOrder submits a market order and returns the exchange response.
// HTTP and rejection errors both come back as errors; the venue layer folds
// them into OrderResult.
func (c *Client) ExecuteOrder(ctx context.Context, order orderRequest) (orderResponse, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/v1/order", nil, "orderExecute", order)
	if err != nil {
		return orderResponse{}, fmt.Errorf("backpack: execute order: %w", err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return orderResponse{}, fmt.Errorf("backpack: decode order response: %w", err)
	}
	return resp, nil
}

// signStream produces the signature tuple for private WS subscriptions:
// [publicKey, signature, timestamp, window].
func (c *Client) signStream() []string {
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	window := strconv.Itoa(signWindowMS)
	msg := "instruction=subscribe&timestamp=" + ts + "&window=" + window
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(c.privateKey, []byte(msg)))
	return []string{c.publicKey, sig, ts, window}
}

// sign builds the Backpack request signature: the instruction, then the
// request parameters in ascending key order, then timestamp and window.
func (c *Client) sign(instruction string, params url.Values, ts, window string) string {
	var sb strings.Builder
	sb.WriteString("instruction=")
	sb.WriteString(instruction)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString("&")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(params.Get(k))
	}

	sb.WriteString("&timestamp=")
	sb.WriteString(ts)
	sb.WriteString("&window=")
	sb.WriteString(window)

	return base64.StdEncoding.EncodeToString(ed25519.Sign(c.privateKey, []byte(sb.String())))
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, instruction string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	signParams := url.Values{}
	for k, vs := range query {
		for _, v := range vs {
			signParams.Add(k, v)
		}
	}

	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)

		// Body fields participate in the signature the same way query
		// parameters do.
		var flat map[string]any
		if err := json.Unmarshal(jsonBody, &flat); err == nil {
			for k, v := range flat {
				signParams.Set(k, fmt.Sprintf("%v", v))
			}
		}
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if instruction != "" {
		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		window := strconv.Itoa(signWindowMS)
		req.Header.Set("X-API-Key", c.publicKey)
		req.Header.Set("X-Signature", c.sign(instruction, signParams, ts, window))
		req.Header.Set("X-Timestamp", ts)
		req.Header.Set("X-Window", window)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}
