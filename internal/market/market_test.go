package market

import (
	"errors"
	"testing"

	"github.com/perplab/perpengine/internal/perrors"
)

func validParams() Params {
	return Params{ImBps: 1000, MmBps: 500, LastOraclePrice: 100, FundingIntervalSecs: 28_800, MinOrderNotional: 1}
}

func TestNewDefaultsToActive(t *testing.T) {
	m, err := New("BTC-USDC", validParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if m.Status != Active {
		t.Fatalf("status = %v, want Active", m.Status)
	}
}

func TestNewRejectsInvertedMargins(t *testing.T) {
	p := validParams()
	p.MmBps, p.ImBps = 1000, 500
	if _, err := New("BTC-USDC", p); !errors.Is(err, perrors.ErrInvalidMarketConfig) {
		t.Fatalf("err = %v, want ErrInvalidMarketConfig", err)
	}
}

func TestSetStatusSettledIsTerminal(t *testing.T) {
	m, err := New("BTC-USDC", validParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := m.SetStatus(Paused); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := m.SetStatus(Active); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := m.SetStatus(Settled); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := m.SetStatus(Active); !errors.Is(err, perrors.ErrInvalidMarketConfig) {
		t.Fatalf("resuming settled market: err = %v, want ErrInvalidMarketConfig", err)
	}
}

func TestComputeInitialMarginRejectsBelowMinNotional(t *testing.T) {
	p := validParams()
	p.MinOrderNotional = 10_000
	m, err := New("BTC-USDC", p)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := m.ComputeInitialMargin(1); !errors.Is(err, perrors.ErrOrderNotionalTooSmall) {
		t.Fatalf("err = %v, want ErrOrderNotionalTooSmall", err)
	}
}
