package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-commerce/atlas-ledger/internal/accounts"
)

// Repository persists fiscal periods and balance snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetForUpdate(ctx context.Context, fiscalYear, fiscalMonth int) (FiscalPeriod, error)
	CreateOpen(ctx context.Context, fiscalYear, fiscalMonth int) (FiscalPeriod, error)
	SetStatus(ctx context.Context, fiscalYear, fiscalMonth int, status Status) error
	MarkClosed(ctx context.Context, fiscalYear, fiscalMonth int, closedBy int64, at time.Time) error
	MarkReopened(ctx context.Context, fiscalYear, fiscalMonth int, reopenedBy int64, reason string, at time.Time) error
	MarkLocked(ctx context.Context, fiscalYear, fiscalMonth int, lockedBy int64, at time.Time) error
	CountDraftEntries(ctx context.Context, fiscalYear, fiscalMonth int) (int, error)
	AccountActivity(ctx context.Context, fiscalYear, fiscalMonth int) ([]AccountActivity, error)
	PriorClosings(ctx context.Context, fiscalYear, fiscalMonth int) (map[int64]int64, error)
	NormalBalances(ctx context.Context) (map[int64]accounts.NormalBalance, error)
	InsertSnapshots(ctx context.Context, snapshots []AccountBalanceSnapshot) error
	InvalidateSnapshots(ctx context.Context, fiscalYear, fiscalMonth int, at time.Time) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("periods repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const periodColumns = `id, fiscal_year, fiscal_month, status, closed_by, closed_at, reopened_by, reopened_at, reopen_reason, locked_by, locked_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (FiscalPeriod, error) {
	var p FiscalPeriod
	var reason *string
	err := row.Scan(&p.ID, &p.FiscalYear, &p.FiscalMonth, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.ReopenedBy, &p.ReopenedAt, &reason, &p.LockedBy, &p.LockedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return FiscalPeriod{}, err
	}
	if reason != nil {
		p.ReopenReason = *reason
	}
	return p, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, fiscalYear, fiscalMonth int) (FiscalPeriod, error) {
	period, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE fiscal_year=$1 AND fiscal_month=$2 FOR UPDATE`, fiscalYear, fiscalMonth))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalPeriod{}, ErrPeriodNotFound
		}
		return FiscalPeriod{}, err
	}
	return period, nil
}

func (r *txRepository) CreateOpen(ctx context.Context, fiscalYear, fiscalMonth int) (FiscalPeriod, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO fiscal_periods (fiscal_year, fiscal_month, status)
VALUES ($1,$2,'OPEN')
ON CONFLICT (fiscal_year, fiscal_month) DO UPDATE SET updated_at=NOW()
RETURNING `+periodColumns, fiscalYear, fiscalMonth)
	return scanPeriod(row)
}

func (r *txRepository) SetStatus(ctx context.Context, fiscalYear, fiscalMonth int, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE fiscal_periods SET status=$3, updated_at=NOW() WHERE fiscal_year=$1 AND fiscal_month=$2`, fiscalYear, fiscalMonth, status)
	return err
}

func (r *txRepository) MarkClosed(ctx context.Context, fiscalYear, fiscalMonth int, closedBy int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE fiscal_periods SET status='CLOSED', closed_by=$3, closed_at=$4, updated_at=NOW()
WHERE fiscal_year=$1 AND fiscal_month=$2`, fiscalYear, fiscalMonth, closedBy, at)
	return err
}

func (r *txRepository) MarkReopened(ctx context.Context, fiscalYear, fiscalMonth int, reopenedBy int64, reason string, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE fiscal_periods SET status='OPEN', reopened_by=$3, reopened_at=$4, reopen_reason=$5, updated_at=NOW()
WHERE fiscal_year=$1 AND fiscal_month=$2`, fiscalYear, fiscalMonth, reopenedBy, at, reason)
	return err
}

func (r *txRepository) MarkLocked(ctx context.Context, fiscalYear, fiscalMonth int, lockedBy int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE fiscal_periods SET status='LOCKED', locked_by=$3, locked_at=$4, updated_at=NOW()
WHERE fiscal_year=$1 AND fiscal_month=$2`, fiscalYear, fiscalMonth, lockedBy, at)
	return err
}

func (r *txRepository) CountDraftEntries(ctx context.Context, fiscalYear, fiscalMonth int) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE fiscal_year=$1 AND fiscal_month=$2 AND status='DRAFT'`, fiscalYear, fiscalMonth).Scan(&count)
	return count, err
}

func (r *txRepository) AccountActivity(ctx context.Context, fiscalYear, fiscalMonth int) ([]AccountActivity, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.account_id,
COALESCE(SUM(l.amount) FILTER (WHERE l.direction='DEBIT'), 0),
COALESCE(SUM(l.amount) FILTER (WHERE l.direction='CREDIT'), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.fiscal_year=$1 AND e.fiscal_month=$2 AND e.status='POSTED'
GROUP BY l.account_id
ORDER BY l.account_id`, fiscalYear, fiscalMonth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountActivity
	for rows.Next() {
		var a AccountActivity
		if err := rows.Scan(&a.AccountID, &a.DebitTotal, &a.CreditTotal); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *txRepository) PriorClosings(ctx context.Context, fiscalYear, fiscalMonth int) (map[int64]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT account_id, closing_balance FROM account_balance_snapshots
WHERE fiscal_year=$1 AND fiscal_month=$2 AND invalidated_at IS NULL`, fiscalYear, fiscalMonth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var accountID, closing int64
		if err := rows.Scan(&accountID, &closing); err != nil {
			return nil, err
		}
		out[accountID] = closing
	}
	return out, rows.Err()
}

func (r *txRepository) NormalBalances(ctx context.Context) (map[int64]accounts.NormalBalance, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, normal_balance FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]accounts.NormalBalance)
	for rows.Next() {
		var id int64
		var nb accounts.NormalBalance
		if err := rows.Scan(&id, &nb); err != nil {
			return nil, err
		}
		out[id] = nb
	}
	return out, rows.Err()
}

func (r *txRepository) InsertSnapshots(ctx context.Context, snapshots []AccountBalanceSnapshot) error {
	for _, s := range snapshots {
		if _, err := r.tx.Exec(ctx, `INSERT INTO account_balance_snapshots
(fiscal_year, fiscal_month, account_id, opening_balance, debit_total, credit_total, closing_balance)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			s.FiscalYear, s.FiscalMonth, s.AccountID, s.OpeningBalance, s.DebitTotal, s.CreditTotal, s.ClosingBalance); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InvalidateSnapshots(ctx context.Context, fiscalYear, fiscalMonth int, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE account_balance_snapshots SET invalidated_at=$3
WHERE fiscal_year=$1 AND fiscal_month=$2 AND invalidated_at IS NULL`, fiscalYear, fiscalMonth, at)
	return err
}

// Get returns a single period.
func (r *Repository) Get(ctx context.Context, fiscalYear, fiscalMonth int) (FiscalPeriod, error) {
	period, err := scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE fiscal_year=$1 AND fiscal_month=$2`, fiscalYear, fiscalMonth))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalPeriod{}, ErrPeriodNotFound
		}
		return FiscalPeriod{}, err
	}
	return period, nil
}

// List returns all periods in chronological order.
func (r *Repository) List(ctx context.Context) ([]FiscalPeriod, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods ORDER BY fiscal_year, fiscal_month`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FiscalPeriod
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, period)
	}
	return out, rows.Err()
}

// Snapshots returns the valid snapshots for a period ordered by account.
func (r *Repository) Snapshots(ctx context.Context, fiscalYear, fiscalMonth int) ([]AccountBalanceSnapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, fiscal_year, fiscal_month, account_id, opening_balance, debit_total, credit_total, closing_balance, invalidated_at, created_at
FROM account_balance_snapshots
WHERE fiscal_year=$1 AND fiscal_month=$2 AND invalidated_at IS NULL
ORDER BY account_id`, fiscalYear, fiscalMonth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalanceSnapshot
	for rows.Next() {
		var s AccountBalanceSnapshot
		if err := rows.Scan(&s.ID, &s.FiscalYear, &s.FiscalMonth, &s.AccountID, &s.OpeningBalance, &s.DebitTotal, &s.CreditTotal, &s.ClosingBalance, &s.InvalidatedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
