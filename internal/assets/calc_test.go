package assets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func forklift() FixedAsset {
	return FixedAsset{
		AcquisitionCost:  12_000_000,
		SalvageValue:     2_000_000,
		UsefulLifeMonths: 60,
		Method:           MethodStraightLine,
		BookValue:        12_000_000,
		Status:           AssetStatusActive,
	}
}

func TestMonthlyAmountStraightLine(t *testing.T) {
	// (12,000,000 - 2,000,000) / 60 rounds half up.
	require.Equal(t, int64(166_667), MonthlyAmount(forklift()))
}

func TestMonthlyAmountStraightLineIsConstant(t *testing.T) {
	a := forklift()
	a.BookValue = 5_000_000
	a.AccumulatedDepreciation = 7_000_000
	require.Equal(t, int64(166_667), MonthlyAmount(a), "straight line charges off acquisition cost, not book value")
}

func TestMonthlyAmountCapsAtSalvage(t *testing.T) {
	a := forklift()
	a.BookValue = 2_100_000
	require.Equal(t, int64(100_000), MonthlyAmount(a), "final month takes the remainder")

	a.BookValue = 2_000_000
	require.Zero(t, MonthlyAmount(a), "fully depreciated assets charge nothing")
}

func TestMonthlyAmountDecliningBalance(t *testing.T) {
	a := forklift()
	a.Method = MethodDecliningBalance
	a.DecliningRate = 2.0

	// 12,000,000 x (2.0 / 5 years) / 12 months.
	require.Equal(t, int64(400_000), MonthlyAmount(a))

	a.BookValue = 11_600_000
	require.Equal(t, int64(386_667), MonthlyAmount(a), "charge declines with book value")
}

func TestMonthlyAmountDecliningBalanceDefaultsToDouble(t *testing.T) {
	a := forklift()
	a.Method = MethodDecliningBalance
	a.DecliningRate = 0
	require.Equal(t, int64(400_000), MonthlyAmount(a))
}

func TestMonthlyAmountZeroLife(t *testing.T) {
	a := forklift()
	a.UsefulLifeMonths = 0
	require.Zero(t, MonthlyAmount(a))
}
