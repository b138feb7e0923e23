package backpack

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yukaisun/crossarb/internal/domain"
)

func testSeed() string {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(seed)
}

func newTestVenue(t *testing.T, baseURL string) *Venue {
	t.Helper()
	v, err := New(Config{
		BaseURL:   baseURL,
		PublicKey: "pub-key",
		SecretKey: testSeed(),
	}, "BTC", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return v
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{PublicKey: "pub-key"}, "BTC", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.ErrorIs(t, err, domain.ErrMissingCredentials)

	_, err = New(Config{SecretKey: testSeed()}, "BTC", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.ErrorIs(t, err, domain.ErrMissingCredentials)
}

func TestReconnectBackoffDoublesAndCaps(t *testing.T) {
	delays := []time.Duration{reconnectDelay}
	for i := 0; i < 6; i++ {
		delays = append(delays, nextDelay(delays[len(delays)-1]))
	}
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	require.Equal(t, want, delays)
}

func TestSignOrdersParamsAlphabetically(t *testing.T) {
	c, err := NewClient("http://example.test", "pub-key", testSeed())
	require.NoError(t, err)

	params := url.Values{}
	params.Set("symbol", "BTC_USDC_PERP")
	params.Set("orderType", "Market")
	params.Set("quantity", "0.5")
	params.Set("side", "Bid")

	sig := c.sign("orderExecute", params, "1700000000000", "5000")

	msg := "instruction=orderExecute&orderType=Market&quantity=0.5&side=Bid" +
		"&symbol=BTC_USDC_PERP&timestamp=1700000000000&window=5000"
	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	require.True(t, ed25519.Verify(c.privateKey.Public().(ed25519.PublicKey), []byte(msg), raw))
}

func TestPlaceMarketOrderFilled(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/order", r.URL.Path)
		gotHeaders = r.Header.Clone()
		w.Write([]byte(`{
			"id": "order-1",
			"status": "Filled",
			"side": "Bid",
			"quantity": "0.5",
			"executedQuantity": "0.5",
			"executedQuoteQuantity": "50.5"
		}`))
	}))
	defer srv.Close()

	v := newTestVenue(t, srv.URL)
	res := v.PlaceMarketOrder(context.Background(), decimal.NewFromFloat(0.5), domain.OrderSideBuy)

	require.True(t, res.Success)
	require.Equal(t, "order-1", res.OrderID)
	require.True(t, res.FilledSize.Equal(decimal.NewFromFloat(0.5)))
	require.True(t, res.AvgPrice.Equal(decimal.NewFromInt(101)))

	require.Equal(t, "pub-key", gotHeaders.Get("X-API-Key"))
	require.NotEmpty(t, gotHeaders.Get("X-Signature"))
	require.NotEmpty(t, gotHeaders.Get("X-Timestamp"))
}

func TestPlaceMarketOrderRejectedIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"INSUFFICIENT_FUNDS"}`))
	}))
	defer srv.Close()

	v := newTestVenue(t, srv.URL)
	res := v.PlaceMarketOrder(context.Background(), decimal.NewFromFloat(0.5), domain.OrderSideSell)

	require.False(t, res.Success)
	require.NotEmpty(t, res.Message)
	require.Equal(t, domain.OrderSideSell, res.Side)
}

func TestPositionParsesSignedNetQuantity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/position", r.URL.Path)
		w.Write([]byte(`[
			{"symbol": "ETH_USDC_PERP", "netQuantity": "5"},
			{"symbol": "BTC_USDC_PERP", "netQuantity": "-0.25"}
		]`))
	}))
	defer srv.Close()

	v := newTestVenue(t, srv.URL)
	pos, err := v.Position(context.Background())
	require.NoError(t, err)
	require.True(t, pos.Equal(decimal.NewFromFloat(-0.25)))
}

func TestPositionMissingSymbolIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	v := newTestVenue(t, srv.URL)
	pos, err := v.Position(context.Background())
	require.NoError(t, err)
	require.True(t, pos.IsZero())
}

func TestApplyDepthPublishesCompleteQuote(t *testing.T) {
	var published []domain.Quote
	v, err := New(Config{
		BaseURL:   "http://example.test",
		PublicKey: "pub-key",
		SecretKey: testSeed(),
	}, "BTC", func(q domain.Quote) { published = append(published, q) }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	// Bid only: no complete pair yet, nothing published.
	v.applyDepth(depthEvent{Bids: [][2]string{{"100", "1"}}})
	require.False(t, v.FeedReady())
	require.Empty(t, published)

	v.applyDepth(depthEvent{Asks: [][2]string{{"101", "1"}}})
	require.True(t, v.FeedReady())
	require.Len(t, published, 1)
	require.True(t, published[0].Bid.Equal(decimal.NewFromInt(100)))
	require.True(t, published[0].Ask.Equal(decimal.NewFromInt(101)))

	// Removing the ask leaves the last quote in place but publishes nothing new.
	v.applyDepth(depthEvent{Asks: [][2]string{{"101", "0"}}})
	require.Len(t, published, 1)

	q, ok := v.Quote()
	require.True(t, ok)
	require.True(t, q.Ask.Equal(decimal.NewFromInt(101)))
}

func TestFetchBestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/depth", r.URL.Path)
		require.Equal(t, "BTC_USDC_PERP", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{
			"bids": [["99", "1"], ["100", "2"]],
			"asks": [["101", "1"], ["102", "3"]],
			"lastUpdateId": "42"
		}`))
	}))
	defer srv.Close()

	v := newTestVenue(t, srv.URL)
	bid, ask, err := v.FetchBestQuote(context.Background())
	require.NoError(t, err)
	require.True(t, bid.Equal(decimal.NewFromInt(100)))
	require.True(t, ask.Equal(decimal.NewFromInt(101)))
}
