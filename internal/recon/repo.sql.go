package recon

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists bank accounts, transactions and reconciliations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("recon repository not initialised")
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

const txnColumns = `id, bank_account_id, txn_date, amount, description, fingerprint, match_status, matched_line_id, matched_by, matched_at, imported_at`

func scanTxn(row pgx.Row) (BankTransaction, error) {
	var t BankTransaction
	err := row.Scan(&t.ID, &t.BankAccountID, &t.TxnDate, &t.Amount, &t.Description, &t.Fingerprint,
		&t.MatchStatus, &t.MatchedLineID, &t.MatchedBy, &t.MatchedAt, &t.ImportedAt)
	if err != nil {
		return BankTransaction{}, err
	}
	return t, nil
}

const reconColumns = `id, bank_account_id, fiscal_year, fiscal_month, status, statement_ending_balance, book_ending_balance, adjusted_bank_balance, adjusted_book_balance, is_balanced, created_by, created_at, started_by, started_at, completed_by, completed_at, approved_by, approved_at`

func scanRecon(row pgx.Row) (BankReconciliation, error) {
	var rec BankReconciliation
	err := row.Scan(&rec.ID, &rec.BankAccountID, &rec.FiscalYear, &rec.FiscalMonth, &rec.Status,
		&rec.StatementEndingBalance, &rec.BookEndingBalance, &rec.AdjustedBankBalance, &rec.AdjustedBookBalance,
		&rec.IsBalanced, &rec.CreatedBy, &rec.CreatedAt, &rec.StartedBy, &rec.StartedAt,
		&rec.CompletedBy, &rec.CompletedAt, &rec.ApprovedBy, &rec.ApprovedAt)
	if err != nil {
		return BankReconciliation{}, err
	}
	return rec, nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn BankTransaction) (BankTransaction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO bank_transactions
(bank_account_id, txn_date, amount, description, fingerprint, match_status, imported_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING `+txnColumns,
		txn.BankAccountID, txn.TxnDate, txn.Amount, txn.Description, txn.Fingerprint, txn.MatchStatus, txn.ImportedAt)
	inserted, err := scanTxn(row)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return BankTransaction{}, ErrDuplicateTransaction
		}
		return BankTransaction{}, err
	}
	return inserted, nil
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error) {
	txn, err := scanTxn(r.tx.QueryRow(ctx, `SELECT `+txnColumns+` FROM bank_transactions WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankTransaction{}, ErrTransactionNotFound
		}
		return BankTransaction{}, err
	}
	return txn, nil
}

func (r *txRepository) MarkMatched(ctx context.Context, txnID, lineID, matchedBy int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_transactions
SET match_status='MATCHED', matched_line_id=$2, matched_by=$3, matched_at=$4 WHERE id=$1`, txnID, lineID, matchedBy, at)
	return err
}

func (r *txRepository) MarkUnmatched(ctx context.Context, txnID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_transactions
SET match_status='UNMATCHED', matched_line_id=NULL, matched_by=NULL, matched_at=NULL WHERE id=$1`, txnID)
	return err
}

func (r *txRepository) JournalLineExists(ctx context.Context, lineID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE l.id=$1 AND e.status='POSTED')`, lineID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertReconciliation(ctx context.Context, rec BankReconciliation) (BankReconciliation, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO bank_reconciliations
(bank_account_id, fiscal_year, fiscal_month, status, statement_ending_balance, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING `+reconColumns,
		rec.BankAccountID, rec.FiscalYear, rec.FiscalMonth, rec.Status, rec.StatementEndingBalance, rec.CreatedBy, rec.CreatedAt)
	return scanRecon(row)
}

func (r *txRepository) GetReconciliationForUpdate(ctx context.Context, id int64) (BankReconciliation, error) {
	rec, err := scanRecon(r.tx.QueryRow(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankReconciliation{}, ErrReconNotFound
		}
		return BankReconciliation{}, err
	}
	return rec, nil
}

func (r *txRepository) MarkStarted(ctx context.Context, id, startedBy int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_reconciliations
SET status='IN_PROGRESS', started_by=$2, started_at=$3 WHERE id=$1`, id, startedBy, at)
	return err
}

func (r *txRepository) MarkCompleted(ctx context.Context, rec BankReconciliation) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_reconciliations
SET status='COMPLETED', book_ending_balance=$2, adjusted_bank_balance=$3, adjusted_book_balance=$4,
is_balanced=$5, completed_by=$6, completed_at=$7 WHERE id=$1`,
		rec.ID, rec.BookEndingBalance, rec.AdjustedBankBalance, rec.AdjustedBookBalance,
		rec.IsBalanced, rec.CompletedBy, rec.CompletedAt)
	return err
}

func (r *txRepository) MarkApproved(ctx context.Context, id, approvedBy int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_reconciliations
SET status='APPROVED', approved_by=$2, approved_at=$3 WHERE id=$1`, id, approvedBy, at)
	return err
}

func (r *txRepository) InsertItem(ctx context.Context, item ReconcilingItem) (ReconcilingItem, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO reconciling_items
(reconciliation_id, kind, amount, description, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id, reconciliation_id, kind, amount, description, status, created_by, created_at`,
		item.ReconciliationID, item.Kind, item.Amount, item.Description, item.Status, item.CreatedBy, item.CreatedAt)
	var out ReconcilingItem
	if err := row.Scan(&out.ID, &out.ReconciliationID, &out.Kind, &out.Amount, &out.Description, &out.Status, &out.CreatedBy, &out.CreatedAt); err != nil {
		return ReconcilingItem{}, err
	}
	return out, nil
}

func (r *txRepository) ClearItem(ctx context.Context, reconciliationID, itemID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE reconciling_items SET status='CLEARED'
WHERE id=$1 AND reconciliation_id=$2`, itemID, reconciliationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) Items(ctx context.Context, reconciliationID int64) ([]ReconcilingItem, error) {
	return itemsQuery(ctx, r.tx, reconciliationID)
}

// BookBalance is the GL cash account's debit-minus-credit total over posted
// entries dated before the cutoff.
func (r *txRepository) BookBalance(ctx context.Context, glAccountID int64, through time.Time) (int64, error) {
	var balance int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN l.direction='DEBIT' THEN l.amount ELSE -l.amount END), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id=$1 AND e.status='POSTED' AND e.entry_date < $2`, glAccountID, through).Scan(&balance)
	return balance, err
}

func (r *txRepository) UpdateLastReconciled(ctx context.Context, bankAccountID int64, date time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE bank_accounts SET last_reconciled_date=$2, updated_at=NOW() WHERE id=$1`, bankAccountID, date)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func itemsQuery(ctx context.Context, q querier, reconciliationID int64) ([]ReconcilingItem, error) {
	rows, err := q.Query(ctx, `SELECT id, reconciliation_id, kind, amount, description, status, created_by, created_at
FROM reconciling_items WHERE reconciliation_id=$1 ORDER BY id`, reconciliationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReconcilingItem
	for rows.Next() {
		var item ReconcilingItem
		if err := rows.Scan(&item.ID, &item.ReconciliationID, &item.Kind, &item.Amount, &item.Description, &item.Status, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// GetReconciliation returns one reconciliation.
func (r *Repository) GetReconciliation(ctx context.Context, id int64) (BankReconciliation, error) {
	rec, err := scanRecon(r.pool.QueryRow(ctx, `SELECT `+reconColumns+` FROM bank_reconciliations WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankReconciliation{}, ErrReconNotFound
		}
		return BankReconciliation{}, err
	}
	return rec, nil
}

// Items returns a reconciliation's items ordered by id.
func (r *Repository) Items(ctx context.Context, reconciliationID int64) ([]ReconcilingItem, error) {
	return itemsQuery(ctx, r.pool, reconciliationID)
}

// GetBankAccount returns one bank account.
func (r *Repository) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	var a BankAccount
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, gl_account_id, last_reconciled_date, created_at, updated_at
FROM bank_accounts WHERE id=$1`, id).Scan(&a.ID, &a.Code, &a.Name, &a.GLAccountID, &a.LastReconciledDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, ErrBankAccountNotFound
		}
		return BankAccount{}, err
	}
	return a, nil
}

// ListBankAccounts returns all bank accounts ordered by code.
func (r *Repository) ListBankAccounts(ctx context.Context) ([]BankAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, gl_account_id, last_reconciled_date, created_at, updated_at
FROM bank_accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankAccount
	for rows.Next() {
		var a BankAccount
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.GLAccountID, &a.LastReconciledDate, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UnmatchedTransactions returns unmatched rows oldest first.
func (r *Repository) UnmatchedTransactions(ctx context.Context, bankAccountID int64) ([]BankTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+txnColumns+` FROM bank_transactions
WHERE bank_account_id=$1 AND match_status='UNMATCHED' ORDER BY txn_date, id`, bankAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankTransaction
	for rows.Next() {
		txn, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}
