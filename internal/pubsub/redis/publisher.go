package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/yukaisun/crossarb/internal/domain"
)

const (
	quotesChannel = "crossarb:quotes"
	tradesChannel = "crossarb:trades"
)

// Publisher implements domain.QuotePublisher over Redis Pub/Sub.
type Publisher struct {
	rdb    *redis.Client
	ticker string
}

// NewPublisher creates a publisher tagging every message with the ticker.
func NewPublisher(c *Client, ticker string) *Publisher {
	return &Publisher{rdb: c.Underlying(), ticker: ticker}
}

type quoteMessage struct {
	Ticker      string          `json:"ticker"`
	Timestamp   time.Time       `json:"timestamp"`
	BackpackBid decimal.Decimal `json:"backpack_bid"`
	BackpackAsk decimal.Decimal `json:"backpack_ask"`
	LighterBid  decimal.Decimal `json:"lighter_bid"`
	LighterAsk  decimal.Decimal `json:"lighter_ask"`
	LongSpread  decimal.Decimal `json:"long_spread"`
	ShortSpread decimal.Decimal `json:"short_spread"`
	Signal      string          `json:"signal"`
}

type tradeMessage struct {
	Ticker      string          `json:"ticker"`
	Timestamp   time.Time       `json:"timestamp"`
	ExecutionID string          `json:"execution_id"`
	Direction   string          `json:"direction"`
	Quantity    decimal.Decimal `json:"quantity"`
	Outcome     string          `json:"outcome"`
	Unwound     bool            `json:"unwound"`
}

// PublishQuotes sends one BBO snapshot to the quotes channel.
func (p *Publisher) PublishQuotes(ctx context.Context, backpack, lighter domain.Quote, longSpread, shortSpread decimal.Decimal, signal domain.Direction) error {
	msg := quoteMessage{
		Ticker:      p.ticker,
		Timestamp:   time.Now().UTC(),
		BackpackBid: backpack.Bid,
		BackpackAsk: backpack.Ask,
		LighterBid:  lighter.Bid,
		LighterAsk:  lighter.Ask,
		LongSpread:  longSpread,
		ShortSpread: shortSpread,
		Signal:      string(signal),
	}
	return p.publish(ctx, quotesChannel, msg)
}

// PublishExecution sends one completed execution to the trades channel.
func (p *Publisher) PublishExecution(ctx context.Context, exec domain.Execution) error {
	msg := tradeMessage{
		Ticker:      p.ticker,
		Timestamp:   time.Now().UTC(),
		ExecutionID: exec.ID,
		Direction:   string(exec.Direction),
		Quantity:    exec.Quantity,
		Outcome:     string(exec.Outcome),
		Unwound:     exec.Unwound,
	}
	return p.publish(ctx, tradesChannel, msg)
}

func (p *Publisher) publish(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal %s message: %w", channel, err)
	}
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}
