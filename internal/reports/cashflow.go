package reports

// CashFlowInput carries the period aggregates the indirect method adjusts.
// Working-capital fields are deltas for the period: positive means the
// balance increased.
type CashFlowInput struct {
	FiscalYear  int
	FiscalMonth int

	NetIncome      int64
	Depreciation   int64
	Amortization   int64
	GainOnDisposal int64
	LossOnDisposal int64

	ReceivablesChange int64
	InventoryChange   int64
	PrepaidChange     int64
	PayablesChange    int64
	AccrualsChange    int64

	CapitalExpenditure int64
	DisposalProceeds   int64

	NewBorrowings     int64
	DebtRepayments    int64
	DividendsPaid     int64
	CapitalInjections int64

	BeginningCash int64
}

// CashFlowStatement is the indirect-method result.
type CashFlowStatement struct {
	FiscalYear      int
	FiscalMonth     int
	Operating       int64
	Investing       int64
	Financing       int64
	NetChangeInCash int64
	BeginningCash   int64
	EndingCash      int64
}

// ReconciliationCheck reports how the derived ending cash compares against an
// independently observed balance.
type ReconciliationCheck struct {
	ExpectedEndingCash int64
	ActualEndingCash   int64
	Difference         int64
	Reconciled         bool
}

// BuildCashFlowStatement derives the statement from period aggregates.
// Increases in receivables, inventory, and prepaid balances consume cash;
// increases in payables and accruals supply it.
func BuildCashFlowStatement(in CashFlowInput) CashFlowStatement {
	operating := in.NetIncome +
		in.Depreciation + in.Amortization -
		in.GainOnDisposal + in.LossOnDisposal -
		in.ReceivablesChange - in.InventoryChange - in.PrepaidChange +
		in.PayablesChange + in.AccrualsChange

	investing := -in.CapitalExpenditure + in.DisposalProceeds

	financing := in.NewBorrowings - in.DebtRepayments - in.DividendsPaid + in.CapitalInjections

	net := operating + investing + financing
	return CashFlowStatement{
		FiscalYear:      in.FiscalYear,
		FiscalMonth:     in.FiscalMonth,
		Operating:       operating,
		Investing:       investing,
		Financing:       financing,
		NetChangeInCash: net,
		BeginningCash:   in.BeginningCash,
		EndingCash:      in.BeginningCash + net,
	}
}

// ValidateReconciliation cross-checks the statement against the observed cash
// balance. A non-zero difference means a missed or misclassified transaction.
func ValidateReconciliation(statement CashFlowStatement, actualEndingCash int64) ReconciliationCheck {
	diff := statement.EndingCash - actualEndingCash
	return ReconciliationCheck{
		ExpectedEndingCash: statement.EndingCash,
		ActualEndingCash:   actualEndingCash,
		Difference:         diff,
		Reconciled:         diff == 0,
	}
}
