package host

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/perplab/perpengine/internal/collateral"
	"github.com/perplab/perpengine/internal/market"
	"github.com/perplab/perpengine/internal/orderid"
	"github.com/perplab/perpengine/internal/position"
	"github.com/perplab/perpengine/internal/queue"
	"github.com/perplab/perpengine/internal/slab"
)

// DepthLevel is one aggregated price level of resting book depth.
type DepthLevel struct {
	Price uint64
	Size  uint64
}

// ListMarkets returns every registered market, sorted by symbol so responses
// are stable.
func (h *Host) ListMarkets() []*market.Market {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*market.Market, 0, len(h.markets))
	for _, ms := range h.markets {
		out = append(out, ms.market)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// GetMarket returns a snapshot of one market's configuration.
func (h *Host) GetMarket(symbol string) (*market.Market, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms, err := h.marketState(symbol)
	if err != nil {
		return nil, err
	}
	m := *ms.market
	return &m, nil
}

// OrderbookDepth returns every resting leaf on both sides of symbol's book,
// aggregated by price level and sorted best-price-first.
func (h *Host) OrderbookDepth(symbol string) (bids, asks []DepthLevel, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms, err := h.marketState(symbol)
	if err != nil {
		return nil, nil, err
	}
	bids = aggregateDepth(ms.book.Bids.Leaves(), queue.Buy)
	asks = aggregateDepth(ms.book.Asks.Leaves(), queue.Sell)
	return bids, asks, nil
}

// aggregateDepth decodes each leaf's raw price key back into its true limit
// price via orderid.PriceKey's self-inverse property, sums quantity per
// price, and sorts best-price-first (highest for bids, lowest for asks).
func aggregateDepth(leaves []slab.Node, side queue.Side) []DepthLevel {
	byPrice := make(map[uint64]uint64, len(leaves))
	for _, leaf := range leaves {
		price := orderid.PriceKey(side, leaf.Key.Price())
		byPrice[price] += leaf.Quantity
	}
	out := make([]DepthLevel, 0, len(byPrice))
	for price, size := range byPrice {
		out = append(out, DepthLevel{Price: price, Size: size})
	}
	if side == queue.Buy {
		sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	}
	return out
}

// GetAccount returns a snapshot of owner's collateral balance.
func (h *Host) GetAccount(owner common.Address) collateral.Account {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ledger.Get(owner)
}

// GetPosition returns owner's position in symbol, and whether one exists.
func (h *Host) GetPosition(symbol string, owner common.Address) (position.Position, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms, err := h.marketState(symbol)
	if err != nil {
		return position.Position{}, false, err
	}
	p, ok := ms.positions[owner]
	if !ok {
		return position.Position{}, false, nil
	}
	return *p, true, nil
}

// GetPositions returns every open (non-flat) position owner holds across
// all registered markets.
func (h *Host) GetPositions(owner common.Address) []position.Position {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]position.Position, 0)
	for _, ms := range h.markets {
		if p, ok := ms.positions[owner]; ok && !p.IsFlat() {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Market < out[j].Market })
	return out
}

// InsuranceBalance returns the current insurance fund balance.
func (h *Host) InsuranceBalance() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.insurance == nil {
		return 0
	}
	return h.insurance.Balance()
}
