package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists chart of accounts rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Account, error)
	Insert(ctx context.Context, in CreateInput) (Account, error)
	Update(ctx context.Context, in UpdateInput) (Account, error)
	Delete(ctx context.Context, id int64) error
	HasPostings(ctx context.Context, id int64) (bool, error)
	HasChildren(ctx context.Context, id int64) (bool, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounts repository not initialised")
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

const accountColumns = `id, code, name, account_type, normal_balance, parent_id, is_detail, is_system, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.IsDetail, &a.IsSystem, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Account, error) {
	account, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) Insert(ctx context.Context, in CreateInput) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, account_type, normal_balance, parent_id, is_detail, is_system, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE) RETURNING `+accountColumns, in.Code, in.Name, in.Type, in.NormalBalance, in.ParentID, in.IsDetail, in.IsSystem)
	account, err := scanAccount(row)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return Account{}, ErrCodeTaken
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) Update(ctx context.Context, in UpdateInput) (Account, error) {
	row := r.tx.QueryRow(ctx, `UPDATE accounts
SET code=COALESCE(NULLIF($2,''), code), name=COALESCE(NULLIF($3,''), name), parent_id=$4, is_active=$5, updated_at=NOW()
WHERE id=$1 RETURNING `+accountColumns, in.ID, in.Code, in.Name, in.ParentID, in.IsActive)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return Account{}, ErrCodeTaken
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) HasPostings(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_lines WHERE account_id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *txRepository) HasChildren(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE parent_id=$1)`, id).Scan(&exists)
	return exists, err
}

// Get returns a single account by id.
func (r *Repository) Get(ctx context.Context, id int64) (Account, error) {
	account, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

// GetByCode returns a single account by code.
func (r *Repository) GetByCode(ctx context.Context, code string) (Account, error) {
	account, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

// List returns all accounts ordered by code.
func (r *Repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.IsDetail, &a.IsSystem, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DetailAccounts loads the requested accounts keyed by id.
func (r *Repository) DetailAccounts(ctx context.Context, ids []int64) (map[int64]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Account, len(ids))
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.IsDetail, &a.IsSystem, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}
