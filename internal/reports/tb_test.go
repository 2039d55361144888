package reports

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-commerce/atlas-ledger/internal/accounts"
)

func TestBuildTrialBalancePlacesBalancesByNormalSide(t *testing.T) {
	balances := []AccountBalance{
		{AccountID: 2, Code: "4010", Name: "Sales Revenue", Type: accounts.AccountTypeRevenue, NormalBalance: accounts.NormalBalanceCredit, Credit: 100_000},
		{AccountID: 1, Code: "1010", Name: "Cash", Type: accounts.AccountTypeAsset, NormalBalance: accounts.NormalBalanceDebit, Debit: 100_000},
	}

	tb := BuildTrialBalance(2026, 3, SourceLive, balances)

	require.Equal(t, SourceLive, tb.Source)
	require.Len(t, tb.Rows, 2)
	require.Equal(t, "1010", tb.Rows[0].AccountCode, "rows sort by account code")
	require.Equal(t, "4010", tb.Rows[1].AccountCode)

	cash := tb.Rows[0]
	require.Equal(t, int64(100_000), cash.DebitBalance)
	require.Zero(t, cash.CreditBalance)

	revenue := tb.Rows[1]
	require.Equal(t, int64(100_000), revenue.CreditBalance)
	require.Zero(t, revenue.DebitBalance)

	require.Equal(t, int64(100_000), tb.TotalDebits)
	require.Equal(t, int64(100_000), tb.TotalCredits)
	require.Zero(t, tb.Difference)
	require.True(t, tb.IsBalanced)
}

func TestBuildTrialBalanceKeepsColumnOnNetOppositePosition(t *testing.T) {
	// A debit-normal account driven net-credit stays in the debit column
	// with a negative value rather than flipping sides.
	balances := []AccountBalance{
		{Code: "1110", Name: "Accounts Receivable", Type: accounts.AccountTypeAsset, NormalBalance: accounts.NormalBalanceDebit, Opening: 5_000, Credit: 8_000},
	}

	tb := BuildTrialBalance(2026, 3, SourceSnapshot, balances)

	row := tb.Rows[0]
	require.Equal(t, int64(-3_000), row.Closing)
	require.Equal(t, int64(-3_000), row.DebitBalance)
	require.Zero(t, row.CreditBalance)
}

func TestBuildTrialBalanceSurfacesImbalance(t *testing.T) {
	balances := []AccountBalance{
		{Code: "1010", NormalBalance: accounts.NormalBalanceDebit, Debit: 10_500},
		{Code: "4010", NormalBalance: accounts.NormalBalanceCredit, Credit: 10_000},
	}

	tb := BuildTrialBalance(2026, 3, SourceLive, balances)

	require.Equal(t, int64(500), tb.Difference)
	require.False(t, tb.IsBalanced)
}

func TestBuildTrialBalanceOpeningChains(t *testing.T) {
	balances := []AccountBalance{
		{Code: "1010", NormalBalance: accounts.NormalBalanceDebit, Opening: 40_000, Debit: 5_000, Credit: 2_000},
		{Code: "3010", NormalBalance: accounts.NormalBalanceCredit, Opening: 40_000, Debit: 2_000, Credit: 5_000},
	}

	tb := BuildTrialBalance(2026, 4, SourceSnapshot, balances)

	require.Equal(t, int64(43_000), tb.Rows[0].Closing)
	require.Equal(t, int64(43_000), tb.Rows[1].Closing)
	require.True(t, tb.IsBalanced)
}
