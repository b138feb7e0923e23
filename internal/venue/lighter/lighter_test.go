package lighter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yukaisun/crossarb/internal/domain"
)

func newTestVenue(t *testing.T, baseURL string) *Venue {
	t.Helper()
	v, err := New(Config{
		BaseURL:      baseURL,
		PrivateKey:   "test-private-key",
		AccountIndex: 42,
		APIKeyIndex:  1,
	}, "BTC", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return v
}

func TestNewRequiresPrivateKey(t *testing.T) {
	_, err := New(Config{AccountIndex: 42}, "BTC", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
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

func snapshotFrame(bids, asks []wsLevel) wsOrderBook {
	return wsOrderBook{Bids: bids, Asks: asks}
}

func TestApplyBookSnapshotThenDelta(t *testing.T) {
	var published []domain.Quote
	v, err := New(Config{
		BaseURL:    "http://example.test",
		PrivateKey: "test-private-key",
	}, "BTC", func(q domain.Quote) { published = append(published, q) }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	// Sizes clear the 10000 notional floor.
	v.applyBook(snapshotFrame(
		[]wsLevel{{Price: "100", Size: "200"}},
		[]wsLevel{{Price: "101", Size: "200"}},
	), true)
	require.True(t, v.FeedReady())
	require.Len(t, published, 1)
	require.True(t, published[0].Bid.Equal(decimal.NewFromInt(100)))

	// Delta removes the best bid; next level down becomes best.
	v.applyBook(snapshotFrame(
		[]wsLevel{{Price: "100", Size: "0"}, {Price: "99", Size: "200"}},
		nil,
	), false)
	require.Len(t, published, 2)
	require.True(t, published[1].Bid.Equal(decimal.NewFromInt(99)))

	// A fresh snapshot replaces everything.
	v.applyBook(snapshotFrame(
		[]wsLevel{{Price: "95", Size: "200"}},
		[]wsLevel{{Price: "96", Size: "200"}},
	), true)
	q, ok := v.Quote()
	require.True(t, ok)
	require.True(t, q.Bid.Equal(decimal.NewFromInt(95)))
	require.True(t, q.Ask.Equal(decimal.NewFromInt(96)))
}

func TestApplyBookFiltersDustLevels(t *testing.T) {
	v := newTestVenue(t, "http://example.test")

	// 100 * 5 = 500 notional, below the floor on both sides.
	v.applyBook(snapshotFrame(
		[]wsLevel{{Price: "100", Size: "5"}},
		[]wsLevel{{Price: "101", Size: "5"}},
	), true)
	require.False(t, v.FeedReady())
}

func TestPlaceMarketOrderPricesThroughTouch(t *testing.T) {
	var got orderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/order", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{
			"code": 200,
			"tx_hash": "0xabc",
			"order": {
				"order_id": "77",
				"status": "filled",
				"filled_base_amount": "0.5",
				"filled_quote_amount": "50.6"
			}
		}`))
	}))
	defer srv.Close()

	v := newTestVenue(t, srv.URL)
	v.mu.Lock()
	v.marketID = 3
	v.contract = domain.ContractInfo{TickSize: decimal.NewFromFloat(0.1)}
	v.mu.Unlock()
	v.applyBook(snapshotFrame(
		[]wsLevel{{Price: "100", Size: "200"}},
		[]wsLevel{{Price: "101", Size: "200"}},
	), true)

	res := v.PlaceMarketOrder(context.Background(), decimal.NewFromFloat(0.5), domain.OrderSideBuy)

	require.True(t, res.Success)
	require.Equal(t, "77", res.OrderID)
	require.True(t, res.FilledSize.Equal(decimal.NewFromFloat(0.5)))
	require.True(t, res.AvgPrice.Equal(decimal.NewFromFloat(101.2)))

	require.Equal(t, 3, got.MarketIndex)
	require.Equal(t, int64(42), got.AccountIndex)
	require.False(t, got.IsAsk)
	require.Equal(t, "immediate_or_cancel", got.TimeInForce)
	// 101 * 1.002 = 101.202, rounded up to the 0.1 grid.
	require.Equal(t, "101.3", got.Price)
}

func TestPlaceMarketOrderWithoutBookFails(t *testing.T) {
	v := newTestVenue(t, "http://example.test")
	res := v.PlaceMarketOrder(context.Background(), decimal.NewFromFloat(0.5), domain.OrderSideBuy)
	require.False(t, res.Success)
	require.Equal(t, domain.ErrFeedNotReady.Error(), res.Message)
}

func TestPositionAppliesSign(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/account", r.URL.Path)
		require.Equal(t, "index", r.URL.Query().Get("by"))
		require.Equal(t, "42", r.URL.Query().Get("value"))
		w.Write([]byte(`{
			"accounts": [{
				"positions": [
					{"market_id": 1, "sign": 1, "position": "9"},
					{"market_id": 3, "sign": -1, "position": "0.75"}
				]
			}]
		}`))
	}))
	defer srv.Close()

	v := newTestVenue(t, srv.URL)
	v.mu.Lock()
	v.marketID = 3
	v.mu.Unlock()

	pos, err := v.Position(context.Background())
	require.NoError(t, err)
	require.True(t, pos.Equal(decimal.NewFromFloat(-0.75)))
}

func TestConnectUnknownTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order_books": [{"symbol": "ETH", "market_id": 1, "min_base_amount": "0.01"}]}`))
	}))
	defer srv.Close()

	v := newTestVenue(t, srv.URL)
	err := v.Connect(context.Background())
	require.ErrorIs(t, err, domain.ErrTickerNotFound)
}

func TestRoundToTickStaysMarketable(t *testing.T) {
	tick := decimal.NewFromFloat(0.5)

	buy := roundToTick(decimal.NewFromFloat(101.2), tick, domain.OrderSideBuy)
	require.Equal(t, "101.5", buy.String())

	sell := roundToTick(decimal.NewFromFloat(99.8), tick, domain.OrderSideSell)
	require.Equal(t, "99.5", sell.String())
}
