// Package matching implements the order book: a bid/ask pair of crit-bit
// slabs, the match_against_book fill loop, and the place/cancel request
// handlers, grounded on the matching engine's process_place_order /
// process_cancel_order and match_against_book routines.
package matching

import (
	"sync"

	"github.com/perplab/perpengine/internal/orderid"
	"github.com/perplab/perpengine/internal/perrors"
	"github.com/perplab/perpengine/internal/queue"
	"github.com/perplab/perpengine/internal/slab"
)

// Mode selects whether a fill must respect the taker's limit price (Normal)
// or is forced through regardless of price (Liquidation).
type Mode uint8

const (
	Normal Mode = iota
	Liquidation
)

// Book is one market's bid and ask crit-bit slabs.
type Book struct {
	Bids *slab.Slab
	Asks *slab.Slab
}

// NewBook allocates an empty book with the given per-side slab capacities.
func NewBook(bidCapacity, askCapacity int) *Book {
	return &Book{Bids: slab.New(bidCapacity), Asks: slab.New(askCapacity)}
}

func (b *Book) sideSlab(side queue.Side) *slab.Slab {
	if side == queue.Buy {
		return b.Bids
	}
	return b.Asks
}

// Engine owns one order book per market and the monotonic sequence counter
// used to break price ties when deriving order ids.
type Engine struct {
	mu       sync.Mutex
	books    map[string]*Book
	sequence uint64
}

// NewEngine creates an engine with no markets registered.
func NewEngine() *Engine {
	return &Engine{books: make(map[string]*Book)}
}

// RegisterMarket creates a fresh, empty book for symbol.
func (e *Engine) RegisterMarket(symbol string, bidCapacity, askCapacity int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.books[symbol] = NewBook(bidCapacity, askCapacity)
}

// NextSequence returns the next monotonically increasing sequence number,
// used by make_order_id to break price ties in submission order.
func (e *Engine) NextSequence() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sequence++
	return e.sequence
}

// BookFor exposes the book for symbol, used by the host to wire it into
// the liquidation engine and its own per-market state.
func (e *Engine) BookFor(symbol string) (*Book, error) {
	return e.book(symbol)
}

// ResetSide replaces one side of symbol's book with a fresh, empty slab of
// the given default capacities, discarding every resting order on that side.
func (e *Engine) ResetSide(symbol string, side queue.Side, bidCapacity, askCapacity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[symbol]
	if !ok {
		return perrors.ErrMarketNotFound
	}
	if side == queue.Buy {
		b.Bids = slab.New(bidCapacity)
	} else {
		b.Asks = slab.New(askCapacity)
	}
	return nil
}

func (e *Engine) book(market string) (*Book, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[market]
	if !ok {
		return nil, perrors.ErrMarketNotFound
	}
	return b, nil
}

// MatchResult summarizes one match_against_book run: how much of the
// taker's order is still unfilled, and the quantity/notional of what was
// filled (used by the liquidation engine to compute a weighted exit price
// without re-reading the event queue). In Liquidation mode the taker's own
// fills are never pushed to the shared event queue (the liquidatee's
// position is closed out synchronously by the caller, not via
// PositionManager) and are instead returned here.
type MatchResult struct {
	Remaining      uint64
	FilledQty      uint64
	FilledNotional uint64 // sum(fill_price * fill_qty) across all fills this run
	TakerFills     []queue.MatchedOrder
}

// MatchAgainstBook repeatedly crosses taker against the opposite side's
// best-priced resting order until the taker is filled, the book runs dry,
// or (in Normal mode) the taker's limit price no longer crosses. Every fill
// pushes the maker's event onto events. In Normal mode the taker's event is
// pushed too, taker-first then maker, so PositionManager sees an aggressor's
// own fill before the resting order it executed against. In Liquidation mode
// the taker event is never pushed to the shared queue — it is accumulated on
// the returned MatchResult instead, since the liquidatee's position is
// already being closed out synchronously by the caller and a queued event
// would let PositionManager reopen it on the next pass.
func MatchAgainstBook(book *Book, taker queue.Order, mode Mode, events *queue.EventQueue, now int64) (MatchResult, error) {
	remaining := taker.Qty
	opposite := book.sideSlab(taker.Side.Opposite())
	result := MatchResult{}

	for remaining > 0 {
		idx, ok, err := opposite.FindMin()
		if err != nil {
			result.Remaining = remaining
			return result, err
		}
		if !ok {
			break
		}
		maker, err := opposite.Leaf(idx)
		if err != nil {
			result.Remaining = remaining
			return result, err
		}
		makerSide := taker.Side.Opposite()
		makerPrice := orderid.PriceKey(makerSide, maker.Key.Price())

		if mode == Normal && taker.Type == queue.Limit {
			var crosses bool
			if taker.Side == queue.Buy {
				crosses = makerPrice <= taker.LimitPrice
			} else {
				crosses = makerPrice >= taker.LimitPrice
			}
			if !crosses {
				break
			}
		}

		fillQty := remaining
		if maker.Quantity < fillQty {
			fillQty = maker.Quantity
		}

		makerEvent := queue.MatchedOrder{
			IsMaker: true, OrderID: [2]uint64{maker.Key.Hi, maker.Key.Lo}, User: maker.Owner,
			FillPrice: makerPrice, FillQty: fillQty, Side: makerSide, Market: taker.Market, Timestamp: now,
		}
		takerEvent := queue.MatchedOrder{
			IsMaker: false, OrderID: taker.OrderID, User: taker.User,
			FillPrice: makerPrice, FillQty: fillQty, Side: taker.Side, Market: taker.Market, Timestamp: now,
		}
		if mode == Liquidation {
			result.TakerFills = append(result.TakerFills, takerEvent)
			if err := events.Push(makerEvent); err != nil {
				result.Remaining = remaining
				return result, err
			}
		} else {
			if err := events.Push(takerEvent); err != nil {
				result.Remaining = remaining
				return result, err
			}
			if err := events.Push(makerEvent); err != nil {
				result.Remaining = remaining
				return result, err
			}
		}

		remaining -= fillQty
		result.FilledQty += fillQty
		result.FilledNotional += makerPrice * fillQty
		if fillQty == maker.Quantity {
			if err := opposite.Remove(idx); err != nil {
				result.Remaining = remaining
				return result, err
			}
		} else if err := opposite.SetLeafQuantity(idx, maker.Quantity-fillQty); err != nil {
			result.Remaining = remaining
			return result, err
		}
	}
	result.Remaining = remaining
	return result, nil
}

// Place runs a placement request: match against the opposite book, then
// rest any unfilled Limit residual as a new leaf on the order's own side.
// A Market order keeps whatever it filled and its unfilled residual is
// dropped (immediate-or-cancel against the book).
func (e *Engine) Place(order queue.Order, events *queue.EventQueue, now int64) (MatchResult, error) {
	book, err := e.book(order.Market)
	if err != nil {
		return MatchResult{}, err
	}
	result, err := MatchAgainstBook(book, order, Normal, events, now)
	if err != nil {
		return result, err
	}
	if result.Remaining > 0 && order.Type == queue.Limit {
		own := book.sideSlab(order.Side)
		leaf := slab.NewLeaf(slab.Key128{Hi: order.OrderID[0], Lo: order.OrderID[1]}, order.User, result.Remaining, 0, now, 0)
		if _, err := own.Insert(leaf); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Cancel removes a resting order from its book by id. Returns
// OrderNotFound if no matching leaf is resting.
func (e *Engine) Cancel(c queue.CancelOrder) error {
	book, err := e.book(c.Market)
	if err != nil {
		return err
	}
	s := book.sideSlab(c.Side)
	key := slab.Key128{Hi: c.OrderID[0], Lo: c.OrderID[1]}
	idx, ok, err := s.FindByKey(key)
	if err != nil {
		return err
	}
	if !ok {
		return perrors.ErrOrderNotFound
	}
	return s.Remove(idx)
}
