package lighter

// orderBookMeta describes one market from GET /api/v1/orderBooks.
type orderBookMeta struct {
	Symbol                 string `json:"symbol"`
	MarketID               int    `json:"market_id"`
	SupportedPriceDecimals int32  `json:"supported_price_decimals"`
	SupportedSizeDecimals  int32  `json:"supported_size_decimals"`
	MinBaseAmount          string `json:"min_base_amount"`
}

type orderBooksResponse struct {
	OrderBooks []orderBookMeta `json:"order_books"`
}

// accountResponse is GET /api/v1/account. Position magnitude and sign travel
// separately; sign is -1 for shorts.
type accountResponse struct {
	Accounts []struct {
		Positions []struct {
			MarketID int    `json:"market_id"`
			Sign     int    `json:"sign"`
			Position string `json:"position"`
		} `json:"positions"`
	} `json:"accounts"`
}

type orderRequest struct {
	MarketIndex int    `json:"market_index"`
	AccountIndex int64 `json:"account_index"`
	ApiKeyIndex int    `json:"api_key_index"`
	IsAsk       bool   `json:"is_ask"`
	Price       string `json:"price"`
	BaseAmount  string `json:"base_amount"`
	TimeInForce string `json:"time_in_force"`
	Nonce       int64  `json:"nonce"`
}

type orderResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TxHash  string `json:"tx_hash"`
	Order   struct {
		ID           string `json:"order_id"`
		Status       string `json:"status"`
		FilledBase   string `json:"filled_base_amount"`
		FilledQuote  string `json:"filled_quote_amount"`
		RemainingBase string `json:"remaining_base_amount"`
	} `json:"order"`
}

// wsMessage is the envelope for every stream frame. Snapshots arrive as
// subscribed/order_book, deltas as update/order_book.
type wsMessage struct {
	Type      string       `json:"type"`
	Channel   string       `json:"channel"`
	OrderBook *wsOrderBook `json:"order_book"`
}

type wsOrderBook struct {
	Bids []wsLevel `json:"bids"`
	Asks []wsLevel `json:"asks"`
}

type wsLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wsSubscribe struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Auth    string `json:"auth,omitempty"`
}
