package reports

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildCashFlowStatementIndirectMethod(t *testing.T) {
	statement := BuildCashFlowStatement(CashFlowInput{
		FiscalYear:  2026,
		FiscalMonth: 3,

		NetIncome:      500_000,
		Depreciation:   80_000,
		GainOnDisposal: 10_000,

		ReceivablesChange: 120_000,
		InventoryChange:   -30_000,
		PayablesChange:    50_000,

		CapitalExpenditure: 200_000,
		DisposalProceeds:   25_000,

		NewBorrowings:  100_000,
		DebtRepayments: 40_000,
		DividendsPaid:  60_000,

		BeginningCash: 1_000_000,
	})

	// 500000 + 80000 - 10000 - 120000 + 30000 + 50000
	require.Equal(t, int64(530_000), statement.Operating)
	require.Equal(t, int64(-175_000), statement.Investing)
	require.Equal(t, int64(0), statement.Financing)
	require.Equal(t, int64(355_000), statement.NetChangeInCash)
	require.Equal(t, int64(1_355_000), statement.EndingCash)
}

func TestBuildCashFlowStatementWorkingCapitalSigns(t *testing.T) {
	// Growing receivables consume cash; growing payables supply it.
	grewReceivables := BuildCashFlowStatement(CashFlowInput{NetIncome: 100, ReceivablesChange: 40})
	require.Equal(t, int64(60), grewReceivables.Operating)

	grewPayables := BuildCashFlowStatement(CashFlowInput{NetIncome: 100, PayablesChange: 40})
	require.Equal(t, int64(140), grewPayables.Operating)

	shrankInventory := BuildCashFlowStatement(CashFlowInput{NetIncome: 100, InventoryChange: -25})
	require.Equal(t, int64(125), shrankInventory.Operating)
}

func TestValidateReconciliation(t *testing.T) {
	statement := BuildCashFlowStatement(CashFlowInput{NetIncome: 300, BeginningCash: 700})
	require.Equal(t, int64(1_000), statement.EndingCash)

	ok := ValidateReconciliation(statement, 1_000)
	require.True(t, ok.Reconciled)
	require.Zero(t, ok.Difference)

	off := ValidateReconciliation(statement, 950)
	require.False(t, off.Reconciled)
	require.Equal(t, int64(50), off.Difference)
	require.Equal(t, int64(1_000), off.ExpectedEndingCash)
	require.Equal(t, int64(950), off.ActualEndingCash)
}
