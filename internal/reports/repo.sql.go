package reports

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-commerce/atlas-ledger/internal/periods"
)

// Repository reads snapshot and ledger data for reporting.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PeriodStatus returns the period status, or empty when no row exists yet.
func (r *Repository) PeriodStatus(ctx context.Context, fiscalYear, fiscalMonth int) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM fiscal_periods WHERE fiscal_year=$1 AND fiscal_month=$2`, fiscalYear, fiscalMonth).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return status, err
}

// balanceColumns is the accounts projection shared by both balance queries.
const balanceColumns = `a.id, a.code, a.name, a.account_type, a.normal_balance`

// SnapshotBalances reads closed-period balances; O(accounts), no raw lines.
func (r *Repository) SnapshotBalances(ctx context.Context, fiscalYear, fiscalMonth int) ([]AccountBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+balanceColumns+`,
s.opening_balance, s.debit_total, s.credit_total
FROM account_balance_snapshots s
JOIN accounts a ON a.id = s.account_id
WHERE s.fiscal_year=$1 AND s.fiscal_month=$2 AND s.invalidated_at IS NULL
ORDER BY a.code`, fiscalYear, fiscalMonth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBalances(rows)
}

// LiveBalances aggregates posted lines for the exact period and joins each
// account's opening balance from the prior period's snapshot, so cumulative
// balances stay correct without scanning all history.
func (r *Repository) LiveBalances(ctx context.Context, fiscalYear, fiscalMonth int) ([]AccountBalance, error) {
	prevYear, prevMonth := periods.Previous(fiscalYear, fiscalMonth)
	rows, err := r.pool.Query(ctx, `WITH activity AS (
	SELECT l.account_id,
		COALESCE(SUM(l.amount) FILTER (WHERE l.direction='DEBIT'), 0) AS debit_total,
		COALESCE(SUM(l.amount) FILTER (WHERE l.direction='CREDIT'), 0) AS credit_total
	FROM journal_lines l
	JOIN journal_entries e ON e.id = l.entry_id
	WHERE e.fiscal_year=$1 AND e.fiscal_month=$2 AND e.status='POSTED'
	GROUP BY l.account_id
), opening AS (
	SELECT account_id, closing_balance AS opening_balance
	FROM account_balance_snapshots
	WHERE fiscal_year=$3 AND fiscal_month=$4 AND invalidated_at IS NULL
)
SELECT `+balanceColumns+`,
	COALESCE(o.opening_balance, 0), COALESCE(t.debit_total, 0), COALESCE(t.credit_total, 0)
FROM accounts a
LEFT JOIN activity t ON t.account_id = a.id
LEFT JOIN opening o ON o.account_id = a.id
WHERE t.account_id IS NOT NULL OR o.account_id IS NOT NULL
ORDER BY a.code`, fiscalYear, fiscalMonth, prevYear, prevMonth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBalances(rows)
}

// AccountLedger returns posted entry lines for one account in a date range.
func (r *Repository) AccountLedger(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.id, e.entry_number, e.entry_date, e.description, l.direction, l.amount
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id=$1 AND e.status='POSTED' AND e.entry_date >= $2 AND e.entry_date <= $3
ORDER BY e.entry_date, e.entry_number, l.seq`, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerLine
	for rows.Next() {
		var l LedgerLine
		if err := rows.Scan(&l.EntryID, &l.EntryNumber, &l.EntryDate, &l.Description, &l.Direction, &l.Amount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanBalances(rows pgx.Rows) ([]AccountBalance, error) {
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.NormalBalance, &b.Opening, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
