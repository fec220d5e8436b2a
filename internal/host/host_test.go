package host

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/perplab/perpengine/internal/hostconfig"
	"github.com/perplab/perpengine/internal/market"
	"github.com/perplab/perpengine/internal/perrors"
	"github.com/perplab/perpengine/internal/queue"
)

type fakeClock struct{ t int64 }

func (c *fakeClock) Now() int64 { return c.t }

func newTestHost(t *testing.T) *Host {
	t.Helper()
	cfg := hostconfig.Default()
	cfg.BidSlabCapacity, cfg.AskSlabCapacity = 16, 16
	cfg.RequestQueueCapacity, cfg.EventQueueCapacity = 16, 16
	h := New(cfg, nil, &fakeClock{t: 1}, nil)
	if err := h.InitGlobalConfig(0); err != nil {
		t.Fatalf("init_global_config: %v", err)
	}
	if err := h.InitMarket("BTC-USDC", market.Params{
		ImBps: 1000, MmBps: 500, LastOraclePrice: 100, FundingIntervalSecs: 28_800,
	}); err != nil {
		t.Fatalf("init_market: %v", err)
	}
	return h
}

func TestEndToEndPlaceMatchApply(t *testing.T) {
	h := newTestHost(t)
	maker := common.HexToAddress("0x1")
	taker := common.HexToAddress("0x2")

	if err := h.Deposit(maker, 100_000); err != nil {
		t.Fatalf("deposit maker: %v", err)
	}
	if err := h.Deposit(taker, 100_000); err != nil {
		t.Fatalf("deposit taker: %v", err)
	}

	if _, err := h.PlaceOrder("BTC-USDC", maker, queue.Sell, 5, queue.Limit, 100, 1); err != nil {
		t.Fatalf("place maker ask 1: %v", err)
	}
	if _, err := h.PlaceOrder("BTC-USDC", maker, queue.Sell, 10, queue.Limit, 101, 1); err != nil {
		t.Fatalf("place maker ask 2: %v", err)
	}
	if processed, err := h.ProcessOrders("BTC-USDC"); err != nil || processed != 2 {
		t.Fatalf("process resting orders: processed=%d err=%v", processed, err)
	}

	if _, err := h.PlaceOrder("BTC-USDC", taker, queue.Buy, 8, queue.Market, 0, 1); err != nil {
		t.Fatalf("place taker: %v", err)
	}
	if processed, err := h.ProcessOrders("BTC-USDC"); err != nil || processed != 1 {
		t.Fatalf("process taker: processed=%d err=%v", processed, err)
	}

	applied, err := h.DrainEvents("BTC-USDC")
	if err != nil {
		t.Fatalf("position_manager: %v", err)
	}
	if applied != 4 { // 2 maker fills + 2 taker fills across two price levels
		t.Fatalf("applied = %d, want 4", applied)
	}

	ms, err := h.marketState("BTC-USDC")
	if err != nil {
		t.Fatalf("market_state: %v", err)
	}
	takerPos := ms.positions[taker]
	if takerPos.BasePosition != 8 {
		t.Fatalf("taker base position = %d, want 8", takerPos.BasePosition)
	}
	makerPos := ms.positions[maker]
	if makerPos.BasePosition != -8 {
		t.Fatalf("maker base position = %d, want -8", makerPos.BasePosition)
	}
}

func TestPositionManagerStopsAtForeignEvent(t *testing.T) {
	h := newTestHost(t)
	maker := common.HexToAddress("0x1")
	taker := common.HexToAddress("0x2")

	if err := h.Deposit(maker, 100_000); err != nil {
		t.Fatalf("deposit maker: %v", err)
	}
	if err := h.Deposit(taker, 100_000); err != nil {
		t.Fatalf("deposit taker: %v", err)
	}
	if _, err := h.PlaceOrder("BTC-USDC", maker, queue.Sell, 5, queue.Limit, 100, 1); err != nil {
		t.Fatalf("place maker: %v", err)
	}
	if _, err := h.ProcessOrders("BTC-USDC"); err != nil {
		t.Fatalf("process resting: %v", err)
	}
	if _, err := h.PlaceOrder("BTC-USDC", taker, queue.Buy, 5, queue.Market, 0, 1); err != nil {
		t.Fatalf("place taker: %v", err)
	}
	if _, err := h.ProcessOrders("BTC-USDC"); err != nil {
		t.Fatalf("process taker: %v", err)
	}

	// Normal-mode fills push taker-then-maker, so the queue head belongs to
	// taker; asking for maker's events should stop immediately instead of
	// draining taker's fill under maker's key.
	if applied, err := h.PositionManager("BTC-USDC", maker); applied != 0 || err != perrors.ErrEventNotForUser {
		t.Fatalf("position_manager(maker) = (%d, %v), want (0, ErrEventNotForUser)", applied, err)
	}
	if applied, err := h.PositionManager("BTC-USDC", taker); applied != 1 || err != perrors.ErrEventNotForUser {
		t.Fatalf("position_manager(taker) = (%d, %v), want (1, ErrEventNotForUser)", applied, err)
	}
	if applied, err := h.PositionManager("BTC-USDC", maker); applied != 1 || err != nil {
		t.Fatalf("position_manager(maker) = (%d, %v), want (1, nil)", applied, err)
	}
}

func TestWithdrawRejectedWhenItWouldLiquidate(t *testing.T) {
	h := newTestHost(t)
	maker := common.HexToAddress("0x1")
	taker := common.HexToAddress("0x2")

	if err := h.Deposit(maker, 1_000); err != nil {
		t.Fatalf("deposit maker: %v", err)
	}
	if err := h.Deposit(taker, 1_000); err != nil {
		t.Fatalf("deposit taker: %v", err)
	}
	if _, err := h.PlaceOrder("BTC-USDC", maker, queue.Sell, 5, queue.Limit, 100, 1); err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := h.ProcessOrders("BTC-USDC"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := h.PlaceOrder("BTC-USDC", taker, queue.Buy, 5, queue.Market, 0, 1); err != nil {
		t.Fatalf("place taker: %v", err)
	}
	if _, err := h.ProcessOrders("BTC-USDC"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := h.DrainEvents("BTC-USDC"); err != nil {
		t.Fatalf("position_manager: %v", err)
	}

	if err := h.Withdraw(taker, 999); err == nil {
		t.Fatalf("expected WithdrawWouldLiquidate for a near-total withdrawal against an open position")
	}
}
