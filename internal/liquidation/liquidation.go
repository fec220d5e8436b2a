// Package liquidation forces an under-margined position flat: it checks
// account health, drives a forced taker order through the book, settles the
// realized loss, and splits the liquidation penalty between the liquidator
// and the insurance fund, covering any residual bad debt from the fund.
// Grounded on the liquidation instruction's process routine.
package liquidation

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/perplab/perpengine/internal/collateral"
	"github.com/perplab/perpengine/internal/market"
	"github.com/perplab/perpengine/internal/matching"
	"github.com/perplab/perpengine/internal/orderid"
	"github.com/perplab/perpengine/internal/perrors"
	"github.com/perplab/perpengine/internal/position"
	"github.com/perplab/perpengine/internal/queue"
	"github.com/perplab/perpengine/internal/risk"
)

// InsuranceFund backstops liquidations whose penalty can't cover the
// liquidatee's shortfall. Balance may go negative to record system-wide
// bad debt instead of silently failing the liquidation.
type InsuranceFund struct {
	mu      sync.Mutex
	balance int64
}

// NewInsuranceFund creates a fund seeded with the given balance.
func NewInsuranceFund(initial int64) *InsuranceFund {
	return &InsuranceFund{balance: initial}
}

// Balance returns the fund's current balance.
func (f *InsuranceFund) Balance() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance
}

// Credit adds amount to the fund, used for the insurance share of a
// liquidation penalty.
func (f *InsuranceFund) Credit(amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance += amount
}

// Debit subtracts amount from the fund, used to cover a liquidatee's bad
// debt; the fund itself may go negative.
func (f *InsuranceFund) Debit(amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance -= amount
}

// Result summarizes the outcome of one liquidation for logging/reporting.
type Result struct {
	ExitAveragePrice   uint64
	RealizedPnL        int64
	Penalty            int64
	LiquidatorReward   int64
	InsuranceShare     int64
	BadDebtCovered     int64
}

// Liquidate forces the owner's position in book flat: a market order is
// matched against the book first, and any quantity the book cannot fill is
// closed at the market's mark price. Returns NothingToLiquidate if the
// account is still healthy.
func Liquidate(
	pos *position.Position,
	ledger *collateral.Ledger,
	insurance *InsuranceFund,
	mkt *market.Market,
	book *matching.Book,
	engine *matching.Engine,
	events *queue.EventQueue,
	liquidator common.Address,
	mmr risk.Ratio,
	now int64,
) (Result, error) {
	if pos.IsFlat() {
		return Result{}, perrors.ErrNothingToLiquidate
	}

	// 1. Settle funding accrued since the position's last touch.
	if err := position.SettleFunding(pos, ledger, mkt.CumFunding, now); err != nil {
		return Result{}, err
	}

	mark, err := mkt.MarkPrice()
	if err != nil {
		return Result{}, err
	}

	// 2. Health check: only an under-margined account may be liquidated.
	acct := ledger.Get(pos.Owner)
	if !risk.IsLiquidatable(acct.Amount, pos.RealizedPnL, pos.BasePosition, pos.EntryPrice, mark, mmr) {
		return Result{}, perrors.ErrNothingToLiquidate
	}

	// 3. Construct the forced taker order: a market order that flattens the
	// position, opposite in side to the position itself.
	originalQty := pos.BasePosition
	absQty := originalQty
	var side queue.Side
	if originalQty > 0 {
		side = queue.Sell
		absQty = originalQty
	} else {
		side = queue.Buy
		absQty = -originalQty
	}
	orderID := orderid.Make(queue.Market, side, 0, engine.NextSequence())
	takerOrder := queue.Order{
		User: pos.Owner, OrderID: [2]uint64{orderID.Hi, orderID.Lo}, Side: side, Qty: uint64(absQty),
		Type: queue.Market, Market: pos.Market,
	}

	// 4. Force the taker through the book, ignoring price limits. Liquidation
	// mode keeps the liquidatee's own fills off the shared event queue (they
	// are accounted for directly below, steps 5-8); only the counterparties'
	// maker events reach PositionManager.
	matched, err := matching.MatchAgainstBook(book, takerOrder, matching.Liquidation, events, now)
	if err != nil {
		return Result{}, err
	}

	// 5. Exit price: book fills at their own prices, any unfilled remainder
	// closed at the mark price, weighted across the full original quantity.
	totalQty := uint64(absQty)
	weightedNotional := matched.FilledNotional + matched.Remaining*mark
	var exitAvg uint64
	if totalQty > 0 {
		exitAvg = weightedNotional / totalQty
	}

	// 6. Realize PnL on the full position against the exit average.
	var priceDiff int64
	if originalQty > 0 {
		priceDiff = int64(exitAvg) - int64(pos.EntryPrice)
	} else {
		priceDiff = int64(pos.EntryPrice) - int64(exitAvg)
	}
	realized := priceDiff * absQty
	pos.RealizedPnL += realized
	if err := ledger.Adjust(pos.Owner, realized, now); err != nil {
		return Result{}, err
	}
	pos.BasePosition = 0
	pos.EntryPrice = 0
	pos.LastCumFunding = mkt.CumFunding
	pos.UpdatedAt = now

	// 7. Penalty: a share of the closed notional, capped to the account's
	// remaining positive equity, split between liquidator and insurance fund.
	notional := risk.Notional(originalQty, exitAvg)
	rawPenalty := risk.FromBps(mkt.LiqPenaltyBps).Apply(int64(notional))
	equity := ledger.Get(pos.Owner).Amount
	penalty := rawPenalty
	if equity <= 0 {
		penalty = 0
	} else if penalty > equity {
		penalty = equity
	}
	liquidatorReward := risk.FromBps(mkt.LiquidatorShareBps).Apply(penalty)
	insuranceShare := penalty - liquidatorReward

	if penalty > 0 {
		if err := ledger.Adjust(pos.Owner, -penalty, now); err != nil {
			return Result{}, err
		}
		if err := ledger.Adjust(liquidator, liquidatorReward, now); err != nil {
			return Result{}, err
		}
		insurance.Credit(insuranceShare)
	}

	// 8. Bad debt: if the account is still negative after the penalty, the
	// insurance fund covers the shortfall and the account is brought to zero.
	var badDebtCovered int64
	finalBalance := ledger.Get(pos.Owner).Amount
	if finalBalance < 0 {
		badDebtCovered = -finalBalance
		insurance.Debit(badDebtCovered)
		if err := ledger.Adjust(pos.Owner, badDebtCovered, now); err != nil {
			return Result{}, err
		}
	}

	return Result{
		ExitAveragePrice: exitAvg,
		RealizedPnL:      realized,
		Penalty:          penalty,
		LiquidatorReward: liquidatorReward,
		InsuranceShare:   insuranceShare,
		BadDebtCovered:   badDebtCovered,
	}, nil
}
