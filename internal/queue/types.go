package queue

import "github.com/ethereum/go-ethereum/common"

// Side is the direction of an order or fill.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side, used when a maker event is derived from
// a taker's crossing side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType distinguishes resting limit orders from fill-or-drop market
// orders.
type OrderType uint8

const (
	Limit OrderType = iota
	Market
)

// Order is a fully populated placement request: the Place half of the
// request queue's tagged union.
type Order struct {
	User         common.Address
	OrderID      [2]uint64 // Hi/Lo halves of the 128-bit order id (see internal/orderid)
	Side         Side
	Qty          uint64
	Type         OrderType
	LimitPrice   uint64
	InitialMargin uint64
	Leverage     uint8
	Market       string
}

// CancelOrder is the Cancel half of the request queue's tagged union.
type CancelOrder struct {
	OrderID [2]uint64
	User    common.Address
	Side    Side
	Market  string
}

// RequestKind discriminates which variant a Request slot carries.
type RequestKind uint8

const (
	KindPlace RequestKind = iota
	KindCancel
)

// Request is the tagged union {Place(Order), Cancel(CancelOrder)} pushed
// onto the request queue.
type Request struct {
	Kind   RequestKind
	Place  Order
	Cancel CancelOrder
}

// MatchedOrder is one fill event: either the taker's or a maker's side of a
// single match_against_book iteration.
type MatchedOrder struct {
	IsMaker   bool
	OrderID   [2]uint64
	User      common.Address
	FillPrice uint64
	FillQty   uint64
	Side      Side
	Market    string
	Timestamp int64
}
