// Package funding computes and applies the periodic funding rate that
// settles the gap between mark and oracle price across all open positions
// in a market, grounded on the funding engine's interest-rate-anchored,
// clamped formula.
package funding

import "github.com/perplab/perpengine/internal/perrors"

// FundingScale is the fixed-point scale shared with the position package's
// cumulative funding index.
const FundingScale = 1_000_000_000

// StandardFundingPeriod is the reference funding interval (8 hours, in
// seconds) that the raw premium rate is normalized against.
const StandardFundingPeriod = 28_800

// InterestRateBps is the baseline interest-rate anchor added to the mark/
// oracle premium, expressed in basis points.
const InterestRateBps = 333

// ComputeFundingRate returns the raw, unclamped per-interval funding rate
// (scaled by FundingScale) for a market whose funding fires every
// intervalSecs seconds: the mark/oracle premium plus the interest-rate
// anchor, normalized from the 8-hour standard period to this market's
// interval.
func ComputeFundingRate(markPrice, oraclePrice int64, intervalSecs uint32) (int64, error) {
	if err := validatePrice(markPrice); err != nil {
		return 0, err
	}
	if err := validatePrice(oraclePrice); err != nil {
		return 0, err
	}
	if intervalSecs == 0 {
		return 0, perrors.ErrInvalidMarketConfig
	}

	premium := ((markPrice - oraclePrice) * FundingScale) / oraclePrice
	interestRate := int64((InterestRateBps * FundingScale) / 10_000)
	rate := premium + interestRate

	// Normalize from the 8h standard period to this market's funding interval.
	rate = (rate * int64(intervalSecs)) / StandardFundingPeriod
	return rate, nil
}

// ClampFundingRate bounds rate to ± maxRateBps (expressed against
// FundingScale), matching the market's configured max_funding_rate cap.
func ClampFundingRate(rate int64, maxRateBps int64) int64 {
	cap := (maxRateBps * FundingScale) / 10_000
	if rate > cap {
		return cap
	}
	if rate < -cap {
		return -cap
	}
	return rate
}

// UpdateFunding computes this period's clamped funding rate and folds it
// into the market's cumulative funding index, returning the new index and
// rate. Callers must check FundingDue before invoking this.
func UpdateFunding(cumFunding int64, markPrice, oraclePrice int64, intervalSecs uint32, maxFundingRateBps int64) (newCumFunding, appliedRate int64, err error) {
	rate, err := ComputeFundingRate(markPrice, oraclePrice, intervalSecs)
	if err != nil {
		return 0, 0, err
	}
	clamped := ClampFundingRate(rate, maxFundingRateBps)
	return cumFunding + clamped, clamped, nil
}

// FundingDue reports whether at least intervalSecs have elapsed since the
// market's last funding settlement.
func FundingDue(lastFundingTS, now int64, intervalSecs uint32) bool {
	return now-lastFundingTS >= int64(intervalSecs)
}

func validatePrice(p int64) error {
	if p <= 0 {
		return perrors.ErrInvalidOraclePrice
	}
	return nil
}
