package reports

import (
	"sort"

	"github.com/atlas-commerce/atlas-ledger/internal/accounts"
)

// Trial balance sources.
const (
	SourceSnapshot = "SNAPSHOT"
	SourceLive     = "LIVE"
)

// AccountBalance models an account with aggregated period balances.
type AccountBalance struct {
	AccountID     int64
	Code          string
	Name          string
	Type          accounts.AccountType
	NormalBalance accounts.NormalBalance
	Opening       int64
	Debit         int64
	Credit        int64
}

// Closing computes the closing balance adjusted by normal-balance direction.
func (a AccountBalance) Closing() int64 {
	if a.NormalBalance == accounts.NormalBalanceCredit {
		return a.Opening + a.Credit - a.Debit
	}
	return a.Opening + a.Debit - a.Credit
}

// TrialBalanceRow is one account line of the report. The balance column is
// chosen by the account's normal balance, not by sign: a debit-normal account
// with a net credit position reports a negative value in the debit column.
type TrialBalanceRow struct {
	AccountCode   string
	AccountName   string
	AccountType   accounts.AccountType
	NormalBalance accounts.NormalBalance
	Opening       int64
	Debit         int64
	Credit        int64
	Closing       int64
	DebitBalance  int64
	CreditBalance int64
}

// TrialBalance is the full report for one fiscal period.
type TrialBalance struct {
	FiscalYear   int
	FiscalMonth  int
	Source       string
	Rows         []TrialBalanceRow
	TotalDebits  int64
	TotalCredits int64
	Difference   int64
	IsBalanced   bool
}

// BuildTrialBalance converts account balances into the report, sorted by
// account code. Integer-cent arithmetic means any non-zero difference is a
// real imbalance and is surfaced, never hidden.
func BuildTrialBalance(fiscalYear, fiscalMonth int, source string, balances []AccountBalance) TrialBalance {
	tb := TrialBalance{FiscalYear: fiscalYear, FiscalMonth: fiscalMonth, Source: source}
	for _, b := range balances {
		row := TrialBalanceRow{
			AccountCode:   b.Code,
			AccountName:   b.Name,
			AccountType:   b.Type,
			NormalBalance: b.NormalBalance,
			Opening:       b.Opening,
			Debit:         b.Debit,
			Credit:        b.Credit,
			Closing:       b.Closing(),
		}
		if b.NormalBalance == accounts.NormalBalanceCredit {
			row.CreditBalance = row.Closing
		} else {
			row.DebitBalance = row.Closing
		}
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebits += b.Debit
		tb.TotalCredits += b.Credit
	}
	sort.Slice(tb.Rows, func(i, j int) bool {
		return tb.Rows[i].AccountCode < tb.Rows[j].AccountCode
	})
	tb.Difference = tb.TotalDebits - tb.TotalCredits
	tb.IsBalanced = tb.Difference == 0
	return tb
}
