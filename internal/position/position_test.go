package position

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/perplab/perpengine/internal/collateral"
	"github.com/perplab/perpengine/internal/queue"
)

var owner = common.HexToAddress("0xabc")

func fill(side queue.Side, price, qty uint64) queue.MatchedOrder {
	return queue.MatchedOrder{Side: side, FillPrice: price, FillQty: qty}
}

func TestApplyFillOpenFromFlat(t *testing.T) {
	p := &Position{Owner: owner, Market: "BTC-USDC"}
	ledger := collateral.NewLedger()
	if err := ApplyFill(p, ledger, 0, fill(queue.Buy, 100, 10), 1); err != nil {
		t.Fatalf("apply_fill: %v", err)
	}
	if p.BasePosition != 10 || p.EntryPrice != 100 || p.RealizedPnL != 0 {
		t.Fatalf("open = %+v", p)
	}
	if ledger.Get(owner).Amount != 0 {
		t.Fatalf("collateral should be unchanged on open, got %d", ledger.Get(owner).Amount)
	}
}

func TestApplyFillSameSideAdd(t *testing.T) {
	p := &Position{Owner: owner, Market: "m", BasePosition: 10, EntryPrice: 100}
	ledger := collateral.NewLedger()
	if err := ApplyFill(p, ledger, 0, fill(queue.Buy, 120, 5), 1); err != nil {
		t.Fatalf("apply_fill: %v", err)
	}
	if p.BasePosition != 15 || p.EntryPrice != 106 || p.RealizedPnL != 0 {
		t.Fatalf("same-side add = %+v", p)
	}
}

func TestApplyFillPartialCloseProfit(t *testing.T) {
	p := &Position{Owner: owner, Market: "m", BasePosition: 10, EntryPrice: 100}
	ledger := collateral.NewLedger()
	if err := ApplyFill(p, ledger, 0, fill(queue.Sell, 120, 5), 1); err != nil {
		t.Fatalf("apply_fill: %v", err)
	}
	if p.BasePosition != 5 || p.EntryPrice != 100 || p.RealizedPnL != 100 {
		t.Fatalf("partial close = %+v", p)
	}
	if ledger.Get(owner).Amount != 100 {
		t.Fatalf("collateral += 100, got %d", ledger.Get(owner).Amount)
	}
}

func TestApplyFillFullClose(t *testing.T) {
	p := &Position{Owner: owner, Market: "m", BasePosition: 10, EntryPrice: 100}
	ledger := collateral.NewLedger()
	if err := ApplyFill(p, ledger, 0, fill(queue.Sell, 120, 10), 1); err != nil {
		t.Fatalf("apply_fill: %v", err)
	}
	if p.BasePosition != 0 || p.EntryPrice != 0 || p.RealizedPnL != 200 {
		t.Fatalf("full close = %+v", p)
	}
	if ledger.Get(owner).Amount != 200 {
		t.Fatalf("collateral += 200, got %d", ledger.Get(owner).Amount)
	}
}

func TestApplyFillFlip(t *testing.T) {
	p := &Position{Owner: owner, Market: "m", BasePosition: 10, EntryPrice: 100}
	ledger := collateral.NewLedger()
	if err := ApplyFill(p, ledger, 0, fill(queue.Sell, 120, 15), 1); err != nil {
		t.Fatalf("apply_fill: %v", err)
	}
	if p.BasePosition != -5 || p.EntryPrice != 120 || p.RealizedPnL != 200 {
		t.Fatalf("flip = %+v", p)
	}
	if ledger.Get(owner).Amount != 200 {
		t.Fatalf("collateral += 200, got %d", ledger.Get(owner).Amount)
	}
}

func TestApplyFillSettlesFundingOnTouch(t *testing.T) {
	p := &Position{Owner: owner, Market: "m", BasePosition: 10, EntryPrice: 100, LastCumFunding: 0}
	ledger := collateral.NewLedger()
	// Market's cum_funding has advanced by 2*FUNDING_SCALE since last touch;
	// funding_payment = delta * pos / FUNDING_SCALE = 2e9*10/1e9 = 20.
	marketCumFunding := int64(2 * FundingScale)
	if err := ApplyFill(p, ledger, marketCumFunding, fill(queue.Buy, 100, 1), 5); err != nil {
		t.Fatalf("apply_fill: %v", err)
	}
	if p.RealizedPnL != -20 {
		t.Fatalf("realized_pnl after funding settle = %d, want -20", p.RealizedPnL)
	}
	if ledger.Get(owner).Amount != -20 {
		t.Fatalf("collateral after funding settle = %d, want -20", ledger.Get(owner).Amount)
	}
	if p.LastCumFunding != marketCumFunding {
		t.Fatalf("last_cum_funding not advanced: %d != %d", p.LastCumFunding, marketCumFunding)
	}
}
