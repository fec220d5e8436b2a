// Package position implements per-user position state and the apply_fill
// state machine that turns a fill event into an entry-price update,
// realized PnL, and a funding settlement.
package position

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/perplab/perpengine/internal/collateral"
	"github.com/perplab/perpengine/internal/perrors"
	"github.com/perplab/perpengine/internal/queue"
)

// FundingScale is the fixed-point scale of the market's cumulative funding
// index; a per-position funding payment is Δcum_funding * qty / FundingScale.
const FundingScale = 1_000_000_000

// Position is one user's open interest in one market.
type Position struct {
	Owner          common.Address
	Market         string
	OpenOrderID    [2]uint64
	LastSide       queue.Side
	BasePosition   int64 // +long, -short
	EntryPrice     uint64
	RealizedPnL    int64
	LastCumFunding int64
	InitialMargin  uint64
	Leverage       uint8
	UpdatedAt      int64
}

// IsFlat reports whether the position carries no open interest.
func (p *Position) IsFlat() bool { return p.BasePosition == 0 }

// SettleFunding applies the funding delta since the position's last
// snapshot, exported for the liquidation engine's pre-liquidation funding
// settlement step.
func SettleFunding(p *Position, ledger *collateral.Ledger, marketCumFunding int64, now int64) error {
	return settleFunding(p, ledger, marketCumFunding, now)
}

// settleFunding applies the funding delta since the position's last
// snapshot to both realized PnL and the owner's collateral, then advances
// the snapshot. A positive funding_payment means the position pays.
func settleFunding(p *Position, ledger *collateral.Ledger, marketCumFunding int64, now int64) error {
	delta := marketCumFunding - p.LastCumFunding
	fundingPayment := (delta * p.BasePosition) / FundingScale

	newRealized := int64(p.RealizedPnL) - fundingPayment
	if (fundingPayment > 0 && newRealized > p.RealizedPnL) || (fundingPayment < 0 && newRealized < p.RealizedPnL) {
		return perrors.ErrMathOverflow
	}
	p.RealizedPnL = newRealized
	p.LastCumFunding = marketCumFunding

	if err := ledger.Adjust(p.Owner, -fundingPayment, now); err != nil {
		return err
	}
	return nil
}

// ApplyFill consumes one MatchedOrder against the position, implementing
// the open / same-side-increase / partial-reduce / full-close / flip state
// machine. marketCumFunding is the market's funding index as of now.
func ApplyFill(p *Position, ledger *collateral.Ledger, marketCumFunding int64, ev queue.MatchedOrder, now int64) error {
	posQty := p.BasePosition
	var fillQty int64
	if ev.Side == queue.Buy {
		fillQty = int64(ev.FillQty)
	} else {
		fillQty = -int64(ev.FillQty)
	}
	fillPx := int64(ev.FillPrice)

	// Open from flat: no prior funding snapshot to settle against.
	if posQty == 0 {
		p.BasePosition = fillQty
		p.EntryPrice = ev.FillPrice
		p.RealizedPnL = 0
		p.LastCumFunding = marketCumFunding
		p.UpdatedAt = now
		return nil
	}

	if err := settleFunding(p, ledger, marketCumFunding, now); err != nil {
		return err
	}
	posQty = p.BasePosition // unchanged by settleFunding, kept for clarity
	entry := int64(p.EntryPrice)

	sameSign := (posQty > 0) == (fillQty > 0)
	if sameSign {
		oldAbs := abs64(posQty)
		addAbs := abs64(fillQty)
		newAbs := oldAbs + addAbs
		newEntry := (entry*oldAbs + fillPx*addAbs) / newAbs
		if newEntry < 0 {
			return perrors.ErrMathOverflow
		}
		p.EntryPrice = uint64(newEntry)
		p.BasePosition = posQty + fillQty
		p.UpdatedAt = now
		return nil
	}

	// Opposite sign: partial reduce, full close, or flip.
	oldAbs := abs64(posQty)
	fillAbs := abs64(fillQty)
	closed := min64(oldAbs, fillAbs)

	var priceDiff int64
	if posQty > 0 {
		priceDiff = fillPx - entry
	} else {
		priceDiff = entry - fillPx
	}
	realized := priceDiff * closed

	p.RealizedPnL += realized
	if err := ledger.Adjust(p.Owner, realized, now); err != nil {
		return err
	}

	switch {
	case fillAbs < oldAbs: // partial reduce
		p.BasePosition = posQty + fillQty
	case fillAbs == oldAbs: // full close
		p.BasePosition = 0
		p.EntryPrice = 0
	default: // flip
		remainder := fillAbs - oldAbs
		if fillQty > 0 {
			p.BasePosition = remainder
		} else {
			p.BasePosition = -remainder
		}
		p.EntryPrice = ev.FillPrice
		p.LastCumFunding = marketCumFunding
	}
	p.UpdatedAt = now
	return nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Key identifies a position by market and owner for the host's in-memory
// position table.
type Key struct {
	Market string
	Owner  common.Address
}

func (k Key) String() string { return fmt.Sprintf("%s:%s", k.Market, k.Owner.Hex()) }
