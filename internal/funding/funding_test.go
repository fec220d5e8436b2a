package funding

import "testing"

func TestComputeFundingRateAtParity(t *testing.T) {
	rate, err := ComputeFundingRate(100, 100, StandardFundingPeriod)
	if err != nil {
		t.Fatalf("compute_funding_rate: %v", err)
	}
	if rate != 33_300_000 {
		t.Fatalf("rate = %d, want 33_300_000", rate)
	}
}

func TestClampFundingRate(t *testing.T) {
	if got := ClampFundingRate(33_300_000, 100); got != 10_000_000 {
		t.Fatalf("clamp(33_300_000, max=100bps) = %d, want 10_000_000", got)
	}
	if got := ClampFundingRate(-33_300_000, 100); got != -10_000_000 {
		t.Fatalf("clamp(-33_300_000, max=100bps) = %d, want -10_000_000", got)
	}
	if got := ClampFundingRate(5_000_000, 100); got != 5_000_000 {
		t.Fatalf("clamp should pass through values under the cap, got %d", got)
	}
}

func TestUpdateFundingAccumulates(t *testing.T) {
	newCum, applied, err := UpdateFunding(0, 100, 100, StandardFundingPeriod, 100)
	if err != nil {
		t.Fatalf("update_funding: %v", err)
	}
	if applied != 10_000_000 {
		t.Fatalf("applied rate = %d, want clamped 10_000_000", applied)
	}
	if newCum != 10_000_000 {
		t.Fatalf("cum_funding = %d, want 10_000_000", newCum)
	}
}

func TestFundingDue(t *testing.T) {
	if FundingDue(1000, 1000+StandardFundingPeriod-1, StandardFundingPeriod) {
		t.Fatalf("should not be due one second early")
	}
	if !FundingDue(1000, 1000+StandardFundingPeriod, StandardFundingPeriod) {
		t.Fatalf("should be due exactly at the interval")
	}
}

func TestComputeFundingRateRejectsNonPositivePrice(t *testing.T) {
	if _, err := ComputeFundingRate(0, 100, StandardFundingPeriod); err == nil {
		t.Fatalf("expected error for zero mark price")
	}
	if _, err := ComputeFundingRate(100, -5, StandardFundingPeriod); err == nil {
		t.Fatalf("expected error for negative oracle price")
	}
}
