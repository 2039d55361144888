package assets

import "math"

// MonthlyAmount computes the depreciation charge for one month given the
// asset's current book value. Amounts are in minor units and rounded half
// up; the result is capped so book value never drops below salvage value.
// A zero result means the asset is skipped for the period.
func MonthlyAmount(a FixedAsset) int64 {
	headroom := a.BookValue - a.SalvageValue
	if headroom <= 0 || a.UsefulLifeMonths <= 0 {
		return 0
	}

	var amount int64
	switch a.Method {
	case MethodDecliningBalance:
		amount = decliningBalanceAmount(a)
	default:
		amount = straightLineAmount(a)
	}

	if amount <= 0 {
		return 0
	}
	if amount > headroom {
		// Final month takes the remainder, not the full charge.
		amount = headroom
	}
	return amount
}

func straightLineAmount(a FixedAsset) int64 {
	net := a.AcquisitionCost - a.SalvageValue
	if net <= 0 {
		return 0
	}
	life := int64(a.UsefulLifeMonths)
	return (net + life/2) / life
}

func decliningBalanceAmount(a FixedAsset) int64 {
	rate := a.DecliningRate
	if rate <= 0 {
		rate = 2.0
	}
	years := float64(a.UsefulLifeMonths) / 12.0
	monthly := float64(a.BookValue) * (rate / years) / 12.0
	return int64(math.Round(monthly))
}
