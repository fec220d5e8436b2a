package risk

import "testing"

func TestNotional(t *testing.T) {
	if got := Notional(10, 100); got != 1000 {
		t.Fatalf("notional = %d, want 1000", got)
	}
	if got := Notional(-10, 100); got != 1000 {
		t.Fatalf("notional (short) = %d, want 1000", got)
	}
}

func TestUnrealizedPnL(t *testing.T) {
	if got := UnrealizedPnL(10, 100, 120); got != 200 {
		t.Fatalf("long unrealized = %d, want 200", got)
	}
	if got := UnrealizedPnL(-10, 100, 120); got != -200 {
		t.Fatalf("short unrealized = %d, want -200", got)
	}
}

func TestMaintenanceMargin(t *testing.T) {
	mmr := FromBps(500) // 5%
	if got := MaintenanceMargin(10, 100, mmr); got != 50 {
		t.Fatalf("maintenance margin = %d, want 50", got)
	}
}

func TestIsLiquidatable(t *testing.T) {
	mmr := FromBps(500) // 5%, mm = 50 at mark 100 for qty 10
	// health = collateral + realized + unrealized; equity just above mm survives
	if IsLiquidatable(51, 0, 10, 100, 100, mmr) {
		t.Fatalf("should not be liquidatable when health (51) > mm (50)")
	}
	if !IsLiquidatable(50, 0, 10, 100, 100, mmr) {
		t.Fatalf("should be liquidatable when health (50) == mm (50)")
	}
	if !IsLiquidatable(0, 0, 10, 100, 100, mmr) {
		t.Fatalf("should be liquidatable when health (0) < mm (50)")
	}
	if IsLiquidatable(1_000_000, 0, 0, 100, 100, mmr) {
		t.Fatalf("flat position must never be liquidatable")
	}
}
