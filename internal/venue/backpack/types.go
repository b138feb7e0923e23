package backpack

import "encoding/json"

// marketResponse is the subset of GET /api/v1/market we need for contract
// metadata.
type marketResponse struct {
	Symbol  string `json:"symbol"`
	Filters struct {
		Price struct {
			TickSize string `json:"tickSize"`
		} `json:"price"`
		Quantity struct {
			MinQuantity string `json:"minQuantity"`
			StepSize    string `json:"stepSize"`
		} `json:"quantity"`
	} `json:"filters"`
}

// depthResponse is GET /api/v1/depth. Levels are [price, quantity] string
// pairs, bids ascending, asks ascending.
type depthResponse struct {
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
	LastUpdateID string      `json:"lastUpdateId"`
}

// orderRequest is POST /api/v1/order. Quantities travel as strings to avoid
// float formatting surprises.
type orderRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"` // "Bid" buys, "Ask" sells
	OrderType string `json:"orderType"`
	Quantity  string `json:"quantity"`
}

type orderResponse struct {
	ID                    string `json:"id"`
	Status                string `json:"status"`
	Side                  string `json:"side"`
	Quantity              string `json:"quantity"`
	ExecutedQuantity      string `json:"executedQuantity"`
	ExecutedQuoteQuantity string `json:"executedQuoteQuantity"`
}

// positionResponse is one element of GET /api/v1/position. NetQuantity is
// signed, negative for shorts.
type positionResponse struct {
	Symbol      string `json:"symbol"`
	NetQuantity string `json:"netQuantity"`
}

// wsRequest is the subscribe/unsubscribe frame. Signature fields are set
// only for private streams.
type wsRequest struct {
	Method    string   `json:"method"`
	Params    []string `json:"params"`
	Signature []string `json:"signature,omitempty"`
}

// wsEnvelope wraps every stream message.
type wsEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// depthEvent is the payload of the depth.<symbol> stream. Deltas only: a
// zero quantity removes the level.
type depthEvent struct {
	Type string      `json:"e"`
	Bids [][2]string `json:"b"`
	Asks [][2]string `json:"a"`
}
