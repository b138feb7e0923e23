// Package lighter adapts the Lighter zk-exchange: REST for account state and
// order submission, a reconnecting websocket order-book feed, and market
// orders emulated with immediate-or-cancel limit orders priced through the
// touch.
package lighter

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

// minBookNotional filters dust from the top of book: levels below this
// price*size threshold do not count as a best quote.
var minBookNotional = decimal.NewFromInt(10000)

// crossFraction prices the synthetic market order 0.2% through the touch so
// it fills immediately against resting liquidity.
var crossFraction = decimal.NewFromFloat(0.002)

// Config carries the adapter's connection settings and credentials.
type Config struct {
	BaseURL      string
	WSURL        string
	PrivateKey   string
	AccountIndex int64
	APIKeyIndex  int
}

// QuoteSink receives every accepted top-of-book update.
type QuoteSink func(domain.Quote)

// Venue implements domain.Venue for Lighter.
type Venue struct {
	client *Client
	ws     *wsClient
	book   *book.Book
	logger *slog.Logger

	ticker string
	sink   QuoteSink

	mu        sync.RWMutex
	marketID  int
	contract  domain.ContractInfo
	lastQuote domain.Quote
	feedReady bool
}

// New builds the adapter. sink may be nil.
func New(cfg Config, ticker string, sink QuoteSink, logger *slog.Logger) (*Venue, error) {
	client, err := NewClient(cfg.BaseURL, cfg.PrivateKey, cfg.AccountIndex, cfg.APIKeyIndex)
	if err != nil {
		return nil, err
	}

	v := &Venue{
		client: client,
		book:   book.New(minBookNotional),
		logger: logger.With(slog.String("component", "lighter")),
		ticker: ticker,
		sink:   sink,
	}
	v.ws = newWSClient(cfg.WSURL, v.logger)
	v.ws.onBook = v.applyBook
	v.ws.authFn = client.authToken
	return v, nil
}

func (v *Venue) Name() string { return string(domain.VenueLighter) }

// Connect resolves the market index for the ticker, dials the stream and
// subscribes. The snapshot frame arriving on subscription seeds the book.
func (v *Venue) Connect(ctx context.Context) error {
	markets, err := v.client.GetOrderBooks(ctx)
	if err != nil {
		return err
	}

	var meta *orderBookMeta
	for i := range markets {
		if markets[i].Symbol == v.ticker {
			meta = &markets[i]
			break
		}
	}
	if meta == nil {
		return fmt.Errorf("lighter: market %s: %w", v.ticker, domain.ErrTickerNotFound)
	}

	contract, err := contractFromMeta(*meta)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.marketID = meta.MarketID
	v.contract = contract
	v.mu.Unlock()

	if err := v.ws.connect(ctx); err != nil {
		return err
	}
	if err := v.ws.subscribe(fmt.Sprintf("order_book/%d", meta.MarketID)); err != nil {
		return err
	}
	v.ws.subscribePrivate(fmt.Sprintf("account_orders/%d", v.client.accountIndex))

	v.logger.Info("connected",
		slog.String("symbol", v.ticker),
		slog.Int("market_id", meta.MarketID),
	)
	return nil
}

// Disconnect closes the stream. Idempotent.
func (v *Venue) Disconnect(_ context.Context) error {
	v.mu.Lock()
	v.feedReady = false
	v.mu.Unlock()
	return v.ws.close()
}

func (v *Venue) FeedReady() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.feedReady
}

func (v *Venue) Quote() (domain.Quote, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastQuote, v.feedReady
}

// FetchBestQuote reads the feed's book directly; Lighter has no lightweight
// REST ticker endpoint worth a round trip.
func (v *Venue) FetchBestQuote(_ context.Context) (decimal.Decimal, decimal.Decimal, error) {
	bid, ask, ok := v.book.Best()
	if !ok {
		return decimal.Zero, decimal.Zero, domain.ErrFeedNotReady
	}
	return bid, ask, nil
}

// PlaceMarketOrder emulates a market order with an IOC limit order priced
// through the opposite touch. All failure modes come back inside the result.
func (v *Venue) PlaceMarketOrder(ctx context.Context, qty decimal.Decimal, side domain.OrderSide) domain.OrderResult {
	result := domain.OrderResult{Side: side, Size: qty}

	bid, ask, ok := v.book.Best()
	if !ok {
		result.Message = domain.ErrFeedNotReady.Error()
		return result
	}

	// Buys cross above the ask, sells below the bid.
	var price decimal.Decimal
	if side == domain.OrderSideBuy {
		price = ask.Mul(decimal.NewFromInt(1).Add(crossFraction))
	} else {
		price = bid.Mul(decimal.NewFromInt(1).Sub(crossFraction))
	}

	v.mu.RLock()
	marketID := v.marketID
	priceDecimals := v.contract.TickSize
	v.mu.RUnlock()
	price = roundToTick(price, priceDecimals, side)

	resp, err := v.client.CreateOrder(ctx, orderRequest{
		MarketIndex: marketID,
		IsAsk:       side == domain.OrderSideSell,
		Price:       price.String(),
		BaseAmount:  qty.String(),
		TimeInForce: "immediate_or_cancel",
	})
	if err != nil {
		result.Message = err.Error()
		return result
	}

	result.OrderID = resp.Order.ID
	if result.OrderID == "" {
		result.OrderID = resp.TxHash
	}
	result.Status = resp.Order.Status
	result.FilledSize, _ = decimal.NewFromString(resp.Order.FilledBase)
	if quote, err := decimal.NewFromString(resp.Order.FilledQuote); err == nil && result.FilledSize.IsPositive() {
		result.AvgPrice = quote.Div(result.FilledSize)
	}

	result.Success = result.FilledSize.IsPositive()
	if !result.Success {
		result.Message = fmt.Sprintf("order not filled, status %s", resp.Order.Status)
	}
	return result
}

// Position returns the signed net position for this market.
func (v *Venue) Position(ctx context.Context) (decimal.Decimal, error) {
	v.mu.RLock()
	marketID := v.marketID
	v.mu.RUnlock()
	return v.client.GetPosition(ctx, marketID)
}

func (v *Venue) ContractInfo() domain.ContractInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.contract
}

// applyBook folds one stream frame into the book. Snapshots replace, deltas
// merge with zero sizes deleting levels.
func (v *Venue) applyBook(ob wsOrderBook, snapshot bool) {
	bids, asks := parseLevels(ob.Bids), parseLevels(ob.Asks)
	if snapshot {
		v.book.ApplySnapshot(bids, asks)
	} else {
		v.book.ApplyDelta(bids, asks)
	}

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

// roundToTick snaps a crossing price onto the market's tick grid, always
// rounding further through the book so the order stays marketable.
func roundToTick(price, tick decimal.Decimal, side domain.OrderSide) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	ticks := price.Div(tick)
	if side == domain.OrderSideBuy {
		ticks = ticks.Ceil()
	} else {
		ticks = ticks.Floor()
	}
	return ticks.Mul(tick)
}

func parseLevels(raw []wsLevel) []book.Level {
	levels := make([]book.Level, 0, len(raw))
	for _, lvl := range raw {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			continue
		}
		levels = append(levels, book.Level{Price: price, Size: size})
	}
	return levels
}

func contractFromMeta(m orderBookMeta) (domain.ContractInfo, error) {
	minQty, err := decimal.NewFromString(m.MinBaseAmount)
	if err != nil {
		return domain.ContractInfo{}, fmt.Errorf("lighter: parse min base amount %q: %w", m.MinBaseAmount, err)
	}
	// Tick size is derived from the supported decimal places.
	tick := decimal.New(1, -m.SupportedPriceDecimals)
	return domain.ContractInfo{
		ContractID:  fmt.Sprintf("%d", m.MarketID),
		TickSize:    tick,
		MinQuantity: minQty,
	}, nil
}
