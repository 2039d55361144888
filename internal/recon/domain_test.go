package recon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFingerprintIdentity(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	a := Fingerprint(1, date, -45_000, "CHECK 1042")
	b := Fingerprint(1, date, -45_000, "CHECK 1042")
	require.Equal(t, a, b)
	require.Len(t, a, 64)

	require.NotEqual(t, a, Fingerprint(2, date, -45_000, "CHECK 1042"))
	require.NotEqual(t, a, Fingerprint(1, date.AddDate(0, 0, 1), -45_000, "CHECK 1042"))
	require.NotEqual(t, a, Fingerprint(1, date, -45_001, "CHECK 1042"))
	require.NotEqual(t, a, Fingerprint(1, date, -45_000, "CHECK 1043"))
}

func TestFingerprintIgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 14, 20, 30, 0, 0, time.UTC)
	require.Equal(t,
		Fingerprint(1, morning, 100, "DEPOSIT"),
		Fingerprint(1, evening, 100, "DEPOSIT"),
		"statement rows carry dates, not timestamps")
}

func TestItemKindSides(t *testing.T) {
	require.Equal(t, SideBank, KindOutstandingCheck.Side())
	require.Equal(t, SideBank, KindDepositInTransit.Side())
	require.Equal(t, SideBook, KindBankFee.Side())
	require.Equal(t, SideBook, KindInterestEarned.Side())
	require.Equal(t, SideBook, KindNSFCheck.Side())
	require.Equal(t, SideBook, KindBookError.Side())
}

func TestAdjustedBalances(t *testing.T) {
	items := []ReconcilingItem{
		{Kind: KindOutstandingCheck, Amount: 30_000, Status: ItemStatusOpen},
		{Kind: KindDepositInTransit, Amount: 20_000, Status: ItemStatusOpen},
		{Kind: KindBankFee, Amount: 5_000, Status: ItemStatusOpen},
		{Kind: KindInterestEarned, Amount: 2_500, Status: ItemStatusOpen},
		{Kind: KindNSFCheck, Amount: 7_500, Status: ItemStatusOpen},
		{Kind: KindBookError, Amount: -1_000, Status: ItemStatusOpen},
	}

	bank, book := AdjustedBalances(100_000, 101_000, items)
	require.Equal(t, int64(100_000-30_000+20_000), bank)
	require.Equal(t, int64(101_000-5_000+2_500-7_500-1_000), book)
}

func TestAdjustedBalancesSkipsClearedItems(t *testing.T) {
	items := []ReconcilingItem{
		{Kind: KindOutstandingCheck, Amount: 30_000, Status: ItemStatusCleared},
	}
	bank, book := AdjustedBalances(100_000, 100_000, items)
	require.Equal(t, int64(100_000), bank)
	require.Equal(t, int64(100_000), book)
}

func TestAdjustedBalancesAgreeWhenExplained(t *testing.T) {
	// Statement 90,000 vs books 100,000: a 30,000 outstanding check, a
	// 20,000 deposit in transit, and a 10,000 bank fee explain the gap.
	items := []ReconcilingItem{
		{Kind: KindOutstandingCheck, Amount: 30_000, Status: ItemStatusOpen},
		{Kind: KindDepositInTransit, Amount: 20_000, Status: ItemStatusOpen},
		{Kind: KindBankFee, Amount: 10_000, Status: ItemStatusOpen},
	}
	bank, book := AdjustedBalances(100_000, 100_000, items)
	require.Equal(t, bank, book)
	require.Equal(t, int64(90_000), bank)
}
