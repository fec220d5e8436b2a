// Package risk implements the deterministic integer math behind margin
// requirements and the liquidation predicate: notional, unrealized PnL,
// maintenance margin, and account health.
package risk

import "github.com/perplab/perpengine/internal/perrors"

// Ratio is an integer basis-points fraction, used instead of floating point
// so health checks are reproducible across machines.
type Ratio struct {
	Num int64
	Den int64
}

// FromBps builds a Ratio out of a basis-points value (bps / 10_000).
func FromBps(bps uint16) Ratio {
	return Ratio{Num: int64(bps), Den: 10_000}
}

// Apply multiplies value by the ratio, truncating toward zero.
func (r Ratio) Apply(value int64) int64 {
	return (value * r.Num) / r.Den
}

// Notional returns the signed position's absolute dollar exposure at price.
func Notional(qtySigned int64, price uint64) uint64 {
	abs := qtySigned
	if abs < 0 {
		abs = -abs
	}
	return uint64(abs) * price
}

// UnrealizedPnL returns mark-to-entry PnL for a signed position: long gains
// when mark rises above entry, short gains when mark falls below entry.
func UnrealizedPnL(qtySigned int64, entryPrice, markPrice uint64) int64 {
	priceDiff := int64(markPrice) - int64(entryPrice)
	return priceDiff * qtySigned
}

// MaintenanceMargin returns the dollar maintenance margin requirement for a
// position of qtySigned at price, given the market's maintenance ratio.
func MaintenanceMargin(qtySigned int64, price uint64, mmr Ratio) uint64 {
	notional := Notional(qtySigned, price)
	return uint64(mmr.Apply(int64(notional)))
}

// AccountHealth returns collateral + realized_pnl + unrealized_pnl, the
// quantity compared against maintenance margin to decide liquidatability.
func AccountHealth(collateral, realizedPnL int64, qtySigned int64, entryPrice, markPrice uint64) int64 {
	return collateral + realizedPnL + UnrealizedPnL(qtySigned, entryPrice, markPrice)
}

// IsLiquidatable reports whether an account's equity has fallen to or below
// its maintenance margin requirement. A flat position is never liquidatable.
func IsLiquidatable(collateral, realizedPnL int64, qtySigned int64, entryPrice, markPrice uint64, mmr Ratio) bool {
	if qtySigned == 0 {
		return false
	}
	health := AccountHealth(collateral, realizedPnL, qtySigned, entryPrice, markPrice)
	mm := MaintenanceMargin(qtySigned, markPrice, mmr)
	return health <= int64(mm)
}

// ValidateMarkPrice enforces the data model's invariant that oracle and
// mark prices are strictly positive.
func ValidateMarkPrice(price int64) error {
	if price <= 0 {
		return perrors.ErrInvalidOraclePrice
	}
	return nil
}
