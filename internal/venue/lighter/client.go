package lighter

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yukaisun/crossarb/internal/domain"
)

const defaultBaseURL = "https://mainnet.zklighter.elliot.ai"

// Client is the REST client for the Lighter zk-exchange API. Authenticated
// endpoints carry an HMAC token derived from the API private key.
type Client struct {
	baseURL      string
	privateKey   string
	accountIndex int64
	apiKeyIndex  int
	httpClient   *http.Client
	now          func() time.Time
}

// NewClient validates credentials eagerly. Absence is a configuration error.
func NewClient(baseURL, privateKey string, accountIndex int64, apiKeyIndex int) (*Client, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if privateKey == "" {
		return nil, fmt.Errorf("lighter: api private key required: %w", domain.ErrMissingCredentials)
	}
	return &Client{
		baseURL:      baseURL,
		privateKey:   privateKey,
		accountIndex: accountIndex,
		apiKeyIndex:  apiKeyIndex,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}, nil
}

// GetOrderBooks lists all markets; the venue resolves its market index here.
func (c *Client) GetOrderBooks(ctx context.Context) ([]orderBookMeta, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/orderBooks", nil, nil, false)
	if err != nil {
		return nil, fmt.Errorf("lighter: get order books: %w", err)
	}

	var resp orderBooksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("lighter: decode order books: %w", err)
	}
	return resp.OrderBooks, nil
}

// GetPosition returns the signed position for one market on the configured
// account. Lighter reports magnitude and sign separately.
func (c *Client) GetPosition(ctx context.Context, marketID int) (decimal.Decimal, error) {
	query := url.Values{
		"by":    {"index"},
		"value": {strconv.FormatInt(c.accountIndex, 10)},
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/account", query, nil, true)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lighter: get account: %w", err)
	}

	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("lighter: decode account: %w", err)
	}
	for _, acct := range resp.Accounts {
		for _, pos := range acct.Positions {
			if pos.MarketID != marketID {
				continue
			}
			qty, err := decimal.NewFromString(pos.Position)
			if err != nil {
				return decimal.Zero, fmt.Errorf("lighter: parse position %q: %w", pos.Position, err)
			}
			if pos.Sign < 0 {
				qty = qty.Neg()
			}
			return qty, nil
		}
	}
	return decimal.Zero, nil
}

// CreateOrder submits an immediate-or-cancel limit order.
func (c *Client) CreateOrder(ctx context.Context, order orderRequest) (orderResponse, error) {
	order.AccountIndex = c.accountIndex
	order.ApiKeyIndex = c.apiKeyIndex
	order.Nonce = c.now().UnixNano()

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v1/order", nil, order, true)
	if err != nil {
		return orderResponse{}, fmt.Errorf("lighter: create order: %w", err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return orderResponse{}, fmt.Errorf("lighter: decode order response: %w", err)
	}
	if resp.Code != 0 && resp.Code != 200 {
		return resp, fmt.Errorf("lighter: order rejected, code %d: %s", resp.Code, resp.Message)
	}
	return resp, nil
}

// authToken builds the bearer token for authenticated calls:
// HMAC-SHA256(privateKey, accountIndex:apiKeyIndex:timestamp), base64.
func (c *Client) authToken() string {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	message := strconv.FormatInt(c.accountIndex, 10) + ":" + strconv.Itoa(c.apiKeyIndex) + ":" + ts

	mac := hmac.New(sha256.New, []byte(c.privateKey))
	mac.Write([]byte(message))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return ts + "." + sig
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, reqBody any, authed bool) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
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
	if authed {
		req.Header.Set("Authorization", c.authToken())
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
