// Package backpack adapts the Backpack perpetual futures exchange: a signed
// REST client for orders and positions, and a reconnecting websocket depth
// feed maintaining a local order book.
package backpack

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yukaisun/crossarb/internal/book"
	"github.com/yukaisun/crossarb/internal/domain"
)

// Config carries the adapter's connection settings and credentials.
type Config struct {
	BaseURL   string
	WSURL     string
	PublicKey string
	SecretKey string
}

// QuoteSink receives every accepted top-of-book update.
type QuoteSink func(domain.Quote)

// Venue implements domain.Venue for Backpack. Perp symbols are derived from
// the ticker as <TICKER>_USDC_PERP.
type Venue struct {
	client *Client
	ws     *wsClient
	book   *book.Book
	logger *slog.Logger

	ticker string
	symbol string
	sink   QuoteSink

	mu        sync.RWMutex
	contract  domain.ContractInfo
	lastQuote domain.Quote
	feedReady bool
	connected bool
}

// New builds the adapter. sink may be nil. Credentials are validated here:
// running without them is a configuration error, not a runtime condition.
func New(cfg Config, ticker string, sink QuoteSink, logger *slog.Logger) (*Venue, error) {
	client, err := NewClient(cfg.BaseURL, cfg.PublicKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	v := &Venue{
		client: client,
		book:   book.New(decimal.Zero),
		logger: logger.With(slog.String("component", "backpack")),
		ticker: ticker,
		symbol: ticker + "_USDC_PERP",
		sink:   sink,
	}
	v.ws = newWSClient(cfg.WSURL, v.logger)
	v.ws.onDepth = v.applyDepth
	v.ws.onReconnect = v.reseedBook
	v.ws.signer = client.signStream
	return v, nil
}

func (v *Venue) Name() string { return string(domain.VenueBackpack) }

// Connect resolves the contract, dials the stream and subscribes to depth
// plus a best-effort private order-update stream.
func (v *Venue) Connect(ctx context.Context) error {
	market, err := v.client.GetMarket(ctx, v.symbol)
	if err != nil {
		return err
	}
	contract, err := contractFromMarket(market)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.contract = contract
	v.connected = true
	v.mu.Unlock()

	if err := v.ws.connect(ctx); err != nil {
		return err
	}
	if err := v.ws.subscribe("depth." + v.symbol); err != nil {
		return err
	}
	v.ws.subscribeSigned("account.orderUpdate." + v.symbol)

	v.logger.Info("connected",
		slog.String("symbol", v.symbol),
		slog.String("tick_size", contract.TickSize.String()),
	)
	return nil
}

// Disconnect closes the stream. Idempotent.
func (v *Venue) Disconnect(_ context.Context) error {
	v.mu.Lock()
	v.connected = false
	v.feedReady = false
	v.mu.Unlock()
	return v.ws.close()
}

// FeedReady reports whether the local book has both sides populated.
func (v *Venue) FeedReady() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.feedReady
}

// Quote returns the latest complete top-of-book pair from the feed.
func (v *Venue) Quote() (domain.Quote, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastQuote, v.feedReady
}

// FetchBestQuote queries the REST depth snapshot, bypassing the feed.
func (v *Venue) FetchBestQuote(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	depth, err := v.client.GetDepth(ctx, v.symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	snapshot := book.New(decimal.Zero)
	bids, asks := parseLevels(depth.Bids), parseLevels(depth.Asks)
	snapshot.ApplySnapshot(bids, asks)
	bid, ask, ok := snapshot.Best()
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("backpack: empty depth for %s", v.symbol)
	}
	return bid, ask, nil
}

// PlaceMarketOrder submits a market order. All failure modes come back
// inside the result; the caller never retries.
func (v *Venue) PlaceMarketOrder(ctx context.Context, qty decimal.Decimal, side domain.OrderSide) domain.OrderResult {
	exchangeSide := "Bid"
	if side == domain.OrderSideSell {
		exchangeSide = "Ask"
	}

	resp, err := v.client.ExecuteOrder(ctx, orderRequest{
		Symbol:    v.symbol,
		Side:      exchangeSide,
		OrderType: "Market",
		Quantity:  qty.String(),
	})
	if err != nil {
		return domain.OrderResult{Side: side, Size: qty, Message: err.Error()}
	}

	result := domain.OrderResult{
		OrderID: resp.ID,
		Side:    side,
		Size:    qty,
		Status:  resp.Status,
	}
	result.FilledSize, _ = decimal.NewFromString(resp.ExecutedQuantity)
	if quote, err := decimal.NewFromString(resp.ExecutedQuoteQuantity); err == nil && result.FilledSize.IsPositive() {
		result.AvgPrice = quote.Div(result.FilledSize)
	}

	switch resp.Status {
	case "Filled", "PartiallyFilled":
		result.Success = result.FilledSize.IsPositive()
	default:
		result.Message = fmt.Sprintf("order not filled, status %s", resp.Status)
	}
	if !result.Success && result.Message == "" {
		result.Message = domain.ErrOrderRejected.Error()
	}
	return result
}

// Position returns the signed net position for this contract.
func (v *Venue) Position(ctx context.Context) (decimal.Decimal, error) {
	return v.client.GetPosition(ctx, v.symbol)
}

// ContractInfo returns the metadata resolved at Connect.
func (v *Venue) ContractInfo() domain.ContractInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.contract
}

// applyDepth folds one stream delta into the book and publishes the new
// top of book if both sides are present.
func (v *Venue) applyDepth(event depthEvent) {
	v.book.ApplyDelta(parseLevels(event.Bids), parseLevels(event.Asks))
	v.publishBest()
}

// reseedBook replaces the local book with a REST snapshot. The depth stream
// is delta-only, so every (re)connect needs a fresh base.
func (v *Venue) reseedBook() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	depth, err := v.client.GetDepth(ctx, v.symbol)
	if err != nil {
		v.logger.Warn("depth snapshot failed", slog.String("error", err.Error()))
		return
	}
	v.book.ApplySnapshot(parseLevels(depth.Bids), parseLevels(depth.Asks))
	v.publishBest()
}

func (v *Venue) publishBest() {
	bid, ask, ok := v.book.Best()
	if !ok {
		return
	}
	quote := domain.Quote{Bid: bid, Ask: ask, ObservedAt: time.Now()}

	v.mu.Lock()
	v.lastQuote = quote
	v.feedReady = true
	v.mu.Unlock()

	if v.sink != nil {
		v.sink(quote)
	}
}

func parseLevels(raw [][2]string) []book.Level {
	levels := make([]book.Level, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(pair[1])
		if err != nil {
			continue
		}
		levels = append(levels, book.Level{Price: price, Size: size})
	}
	return levels
}

func contractFromMarket(m marketResponse) (domain.ContractInfo, error) {
	tick, err := decimal.NewFromString(m.Filters.Price.TickSize)
	if err != nil {
		return domain.ContractInfo{}, fmt.Errorf("backpack: parse tick size %q: %w", m.Filters.Price.TickSize, err)
	}
	minQty, err := decimal.NewFromString(m.Filters.Quantity.MinQuantity)
	if err != nil {
		return domain.ContractInfo{}, fmt.Errorf("backpack: parse min quantity %q: %w", m.Filters.Quantity.MinQuantity, err)
	}
	return domain.ContractInfo{
		ContractID:  m.Symbol,
		TickSize:    tick,
		MinQuantity: minQty,
	}, nil
}
