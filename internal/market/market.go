// Package market holds per-market configuration, risk parameters, the
// cumulative funding index, and the trading-lifecycle status (active,
// paused, settling, settled).
package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/perplab/perpengine/internal/perrors"
)

// Params is the full parameter set accepted by init_market, mirroring the
// source's MarketParams field-for-field (OraclePubkey becomes an opaque
// OracleKey address, since this repo has no on-chain pubkey concept).
type Params struct {
	OracleKey         common.Address
	LastOraclePrice   int64
	LastOracleTS      int64
	ImBps             uint16
	MmBps             uint16
	OracleBandBps     uint16
	TakerFeeBps       uint16
	MakerFeeBps       uint16
	LiqPenaltyBps     uint16
	LiquidatorShareBps uint16
	MaxFundingRate    int64
	CumFunding        int64
	LastFundingTS     int64
	FundingIntervalSecs uint32
	TickSize          uint16
	StepSize          uint8
	MinOrderNotional  uint64
}

// Status is a market's trading lifecycle state.
type Status uint8

const (
	// Active markets accept new orders and process funding/liquidation normally.
	Active Status = iota
	// Paused markets reject new order placement but still drain already-queued
	// cancels, so resting orders remain cancellable during a halt.
	Paused
	// Settling markets are winding down: no new orders, existing positions are
	// being closed out administratively.
	Settling
	// Settled is terminal: SetStatus rejects any transition out of it. Like
	// every non-Active status it blocks PlaceOrder; the other commands do not
	// check the status.
	Settled
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Paused:
		return "paused"
	case Settling:
		return "settling"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}

// validTransition reports whether a status change from -> to is allowed.
// Settled is terminal; every other transition is permitted, mirroring the
// registry's emergency-pause / resume / settle lifecycle.
func validTransition(from, to Status) error {
	if from == Settled {
		return fmt.Errorf("%w: market is settled (terminal state)", perrors.ErrInvalidMarketConfig)
	}
	return nil
}

// Market is the live, mutable state for one trading pair.
type Market struct {
	Symbol string
	Status Status
	Params
}

// New validates params and constructs an Active Market. mm_bps must not
// exceed im_bps and funding_interval must be positive, matching the data
// model's invariants.
func New(symbol string, p Params) (*Market, error) {
	if symbol == "" {
		return nil, perrors.ErrInvalidSymbol
	}
	if p.MmBps > p.ImBps {
		return nil, fmt.Errorf("%w: mm_bps %d exceeds im_bps %d", perrors.ErrInvalidMarketConfig, p.MmBps, p.ImBps)
	}
	if p.FundingIntervalSecs == 0 {
		return nil, fmt.Errorf("%w: funding_interval must be positive", perrors.ErrInvalidMarketConfig)
	}
	return &Market{Symbol: symbol, Status: Active, Params: p}, nil
}

// SetStatus transitions the market to status, rejecting any transition out
// of Settled.
func (m *Market) SetStatus(status Status) error {
	if err := validTransition(m.Status, status); err != nil {
		return err
	}
	m.Status = status
	return nil
}

// MarkPrice returns the current mark price, sourced from the last oracle
// read. For simplicity the mark price equals the last oracle price.
func (m *Market) MarkPrice() (uint64, error) {
	if m.LastOraclePrice <= 0 {
		return 0, perrors.ErrInvalidAmount
	}
	return uint64(m.LastOraclePrice), nil
}

// ComputeInitialMargin returns the initial margin required to open an
// order of the given quantity at the current mark price, rejecting orders
// below the market's minimum notional.
func (m *Market) ComputeInitialMargin(qty uint64) (uint64, error) {
	mark, err := m.MarkPrice()
	if err != nil {
		return 0, err
	}
	notional := qty * mark
	if notional/mark != qty { // overflow check for the checked_mul equivalent
		return 0, perrors.ErrMathOverflow
	}
	if notional < m.MinOrderNotional {
		return 0, perrors.ErrOrderNotionalTooSmall
	}
	imRequired := (notional * uint64(m.ImBps)) / 10_000
	return imRequired, nil
}

