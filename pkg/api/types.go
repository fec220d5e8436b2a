package api

// API response types for REST endpoints and WebSocket messages.

// MarketInfo is a market's static risk/fee configuration.
type MarketInfo struct {
	Symbol              string `json:"symbol"`
	Status              string `json:"status"` // active, paused, settling, settled
	ImBps               uint16 `json:"imBps"`
	MmBps               uint16 `json:"mmBps"`
	TakerFeeBps         uint16 `json:"takerFeeBps"`
	MakerFeeBps         uint16 `json:"makerFeeBps"`
	TickSize            uint16 `json:"tickSize"`
	StepSize            uint8  `json:"stepSize"`
	MinOrderNotional    uint64 `json:"minOrderNotional"`
	LastOraclePrice     int64  `json:"lastOraclePrice"`
	CumFunding          int64  `json:"cumFunding"`
	FundingIntervalSecs uint32 `json:"fundingIntervalSecs"`
}

// PriceLevel is one [price, size] resting-order aggregate.
type PriceLevel struct {
	Price uint64 `json:"price"`
	Size  uint64 `json:"size"`
}

// OrderbookSnapshot is the current resting depth for one market, every price
// level on both sides. The
// reference host reports only the current book, not historical fills
// (Non-goal: indexing of fill history).
type OrderbookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// AccountInfo is a user's collateral balance.
type AccountInfo struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

// PositionInfo is a user's open position in one market.
type PositionInfo struct {
	Symbol       string `json:"symbol"`
	BasePosition int64  `json:"basePosition"`
	EntryPrice   uint64 `json:"entryPrice"`
	RealizedPnL  int64  `json:"realizedPnl"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// WSMessage is the envelope for every message pushed over the fill stream.
type WSMessage struct {
	Type string      `json:"type"` // "fill"
	Data interface{} `json:"data"`
}

// WSSubscribeRequest is sent by a client to subscribe to a market's fill
// channel, e.g. {"op":"subscribe","channels":["fills:BTC-USDC"]}.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// FillUpdate is broadcast to subscribers of "fills:<symbol>" whenever
// PositionManager applies a new matched-order event.
type FillUpdate struct {
	Type      string `json:"type"` // "fill"
	Symbol    string `json:"symbol"`
	User      string `json:"user"`
	Side      string `json:"side"`
	Price     uint64 `json:"price"`
	Qty       uint64 `json:"qty"`
	IsMaker   bool   `json:"isMaker"`
	Timestamp int64  `json:"timestamp"`
}

// PlaceOrderRequest is the payload for POST /api/v1/orders.
type PlaceOrderRequest struct {
	Market     string `json:"market"`
	Address    string `json:"address"`
	Side       string `json:"side"`       // "buy" or "sell"
	Type       string `json:"type"`       // "limit" or "market"
	Qty        uint64 `json:"qty"`
	LimitPrice uint64 `json:"limitPrice"`
	Leverage   uint8  `json:"leverage"`
}

// PlaceOrderResponse reports the order id assigned to an accepted placement.
type PlaceOrderResponse struct {
	Status    string `json:"status"`
	OrderIDHi uint64 `json:"orderIdHi"`
	OrderIDLo uint64 `json:"orderIdLo"`
}

// CancelOrderRequest is the payload for POST /api/v1/orders/cancel.
type CancelOrderRequest struct {
	Market    string `json:"market"`
	Address   string `json:"address"`
	Side      string `json:"side"`
	OrderIDHi uint64 `json:"orderIdHi"`
	OrderIDLo uint64 `json:"orderIdLo"`
}

// DepositRequest is the payload for POST /api/v1/accounts/{address}/deposit.
type DepositRequest struct {
	Amount uint64 `json:"amount"`
}

// WithdrawRequest is the payload for POST /api/v1/accounts/{address}/withdraw.
type WithdrawRequest struct {
	Amount uint64 `json:"amount"`
}

// LiquidateRequest is the payload for POST /api/v1/liquidate, an admin-only
// operation in this reference host (no auth layer — out of scope per §1).
type LiquidateRequest struct {
	Market     string `json:"market"`
	Owner      string `json:"owner"`
	Liquidator string `json:"liquidator"`
}

// MarketStatusRequest is the payload for POST /api/v1/markets/{symbol}/status.
type MarketStatusRequest struct {
	Status string `json:"status"` // active, paused, settling, settled
}

// ErrorResponse is returned for every non-2xx REST response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
