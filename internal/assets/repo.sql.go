package assets

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists fixed assets, depreciation runs and schedules.
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
		return errors.New("assets repository not initialised")
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

const runColumns = `id, fiscal_year, fiscal_month, status, source_ref, depreciated_count, skipped_count, total_amount, journal_entry_id, created_by, created_at, posted_by, posted_at, reversed_by, reversed_at, reversal_reason`

func scanRun(row pgx.Row) (DepreciationRun, error) {
	var run DepreciationRun
	var reason *string
	err := row.Scan(&run.ID, &run.FiscalYear, &run.FiscalMonth, &run.Status, &run.SourceRef,
		&run.DepreciatedCount, &run.SkippedCount, &run.TotalAmount, &run.JournalEntryID,
		&run.CreatedBy, &run.CreatedAt, &run.PostedBy, &run.PostedAt, &run.ReversedBy, &run.ReversedAt, &reason)
	if err != nil {
		return DepreciationRun{}, err
	}
	if reason != nil {
		run.ReversalReason = *reason
	}
	return run, nil
}

const assetColumns = `id, code, name, category_id, acquisition_cost, salvage_value, useful_life_months, method, declining_rate, book_value, accumulated_depreciation, depreciation_start_date, status, created_at, updated_at`

func scanAsset(row pgx.Row) (FixedAsset, error) {
	var a FixedAsset
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.CategoryID, &a.AcquisitionCost, &a.SalvageValue,
		&a.UsefulLifeMonths, &a.Method, &a.DecliningRate, &a.BookValue, &a.AccumulatedDepreciation,
		&a.DepreciationStartDate, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return FixedAsset{}, err
	}
	return a, nil
}

func (r *txRepository) FindRunForUpdate(ctx context.Context, fiscalYear, fiscalMonth int) (DepreciationRun, error) {
	run, err := scanRun(r.tx.QueryRow(ctx, `SELECT `+runColumns+` FROM depreciation_runs
WHERE fiscal_year=$1 AND fiscal_month=$2 FOR UPDATE`, fiscalYear, fiscalMonth))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepreciationRun{}, ErrRunNotFound
		}
		return DepreciationRun{}, err
	}
	return run, nil
}

func (r *txRepository) GetRunForUpdate(ctx context.Context, id int64) (DepreciationRun, error) {
	run, err := scanRun(r.tx.QueryRow(ctx, `SELECT `+runColumns+` FROM depreciation_runs WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepreciationRun{}, ErrRunNotFound
		}
		return DepreciationRun{}, err
	}
	return run, nil
}

func (r *txRepository) DeleteRun(ctx context.Context, runID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM depreciation_schedules WHERE run_id=$1`, runID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM depreciation_runs WHERE id=$1`, runID)
	return err
}

func (r *txRepository) InsertRun(ctx context.Context, run DepreciationRun) (DepreciationRun, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO depreciation_runs
(fiscal_year, fiscal_month, status, source_ref, depreciated_count, skipped_count, total_amount, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING `+runColumns,
		run.FiscalYear, run.FiscalMonth, run.Status, run.SourceRef,
		run.DepreciatedCount, run.SkippedCount, run.TotalAmount, run.CreatedBy, run.CreatedAt)
	return scanRun(row)
}

func (r *txRepository) InsertSchedules(ctx context.Context, runID int64, schedules []DepreciationSchedule) error {
	for _, s := range schedules {
		if _, err := r.tx.Exec(ctx, `INSERT INTO depreciation_schedules
(run_id, asset_id, fiscal_year, fiscal_month, amount, opening_book_value, closing_book_value, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			runID, s.AssetID, s.FiscalYear, s.FiscalMonth, s.Amount, s.OpeningBookValue, s.ClosingBookValue, s.Status); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) DepreciableAssets(ctx context.Context, before time.Time) ([]FixedAsset, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+assetColumns+` FROM fixed_assets
WHERE status='ACTIVE' AND depreciation_start_date < $1
ORDER BY code FOR UPDATE`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FixedAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, asset)
	}
	return out, rows.Err()
}

func (r *txRepository) ApplyDepreciation(ctx context.Context, assetID, amount, closingBookValue int64, fullyDepreciated bool) error {
	status := AssetStatusActive
	if fullyDepreciated {
		status = AssetStatusFullyDepreciated
	}
	_, err := r.tx.Exec(ctx, `UPDATE fixed_assets
SET book_value=$2, accumulated_depreciation=accumulated_depreciation+$3, status=$4, updated_at=NOW()
WHERE id=$1`, assetID, closingBookValue, amount, status)
	return err
}

func (r *txRepository) RestoreAsset(ctx context.Context, assetID, bookValue, amount int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE fixed_assets
SET book_value=$2, accumulated_depreciation=accumulated_depreciation-$3, status='ACTIVE', updated_at=NOW()
WHERE id=$1 AND status <> 'DISPOSED'`, assetID, bookValue, amount)
	return err
}

func (r *txRepository) MarkSchedulesPosted(ctx context.Context, runID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE depreciation_schedules SET status='POSTED', journal_entry_id=$2 WHERE run_id=$1`, runID, entryID)
	return err
}

func (r *txRepository) MarkSchedulesReversed(ctx context.Context, runID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE depreciation_schedules SET status='REVERSED' WHERE run_id=$1`, runID)
	return err
}

func (r *txRepository) MarkRunPosted(ctx context.Context, runID, entryID, postedBy int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE depreciation_runs
SET status='POSTED', journal_entry_id=$2, posted_by=$3, posted_at=$4 WHERE id=$1`, runID, entryID, postedBy, at)
	return err
}

func (r *txRepository) MarkRunReversed(ctx context.Context, runID, reversedBy int64, reason string, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE depreciation_runs
SET status='REVERSED', reversed_by=$2, reversed_at=$3, reversal_reason=$4 WHERE id=$1`, runID, reversedBy, at, reason)
	return err
}

// GetRun returns a run by id.
func (r *Repository) GetRun(ctx context.Context, id int64) (DepreciationRun, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM depreciation_runs WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepreciationRun{}, ErrRunNotFound
		}
		return DepreciationRun{}, err
	}
	return run, nil
}

// FindRun returns the run for a fiscal period if one exists.
func (r *Repository) FindRun(ctx context.Context, fiscalYear, fiscalMonth int) (DepreciationRun, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM depreciation_runs
WHERE fiscal_year=$1 AND fiscal_month=$2`, fiscalYear, fiscalMonth))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepreciationRun{}, ErrRunNotFound
		}
		return DepreciationRun{}, err
	}
	return run, nil
}

// ListRuns returns recent runs, newest first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]DepreciationRun, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM depreciation_runs
ORDER BY fiscal_year DESC, fiscal_month DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DepreciationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Schedules returns a run's schedule rows ordered by asset.
func (r *Repository) Schedules(ctx context.Context, runID int64) ([]DepreciationSchedule, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, run_id, asset_id, fiscal_year, fiscal_month, amount, opening_book_value, closing_book_value, status, journal_entry_id
FROM depreciation_schedules WHERE run_id=$1 ORDER BY asset_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DepreciationSchedule
	for rows.Next() {
		var s DepreciationSchedule
		if err := rows.Scan(&s.ID, &s.RunID, &s.AssetID, &s.FiscalYear, &s.FiscalMonth, &s.Amount, &s.OpeningBookValue, &s.ClosingBookValue, &s.Status, &s.JournalEntryID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Categories maps asset ids to their category, including the ledger accounts
// depreciation posts against.
func (r *Repository) Categories(ctx context.Context, assetIDs []int64) (map[int64]AssetCategory, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, c.id, c.name, c.expense_account_id, c.accum_depreciation_account_id
FROM fixed_assets a
JOIN asset_categories c ON c.id = a.category_id
WHERE a.id = ANY($1)`, assetIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]AssetCategory, len(assetIDs))
	for rows.Next() {
		var assetID int64
		var cat AssetCategory
		if err := rows.Scan(&assetID, &cat.ID, &cat.Name, &cat.ExpenseAccountID, &cat.AccumDepreciationAccount); err != nil {
			return nil, err
		}
		out[assetID] = cat
	}
	return out, rows.Err()
}

// AssetsByID returns the named assets keyed by id.
func (r *Repository) AssetsByID(ctx context.Context, ids []int64) (map[int64]FixedAsset, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assetColumns+` FROM fixed_assets WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]FixedAsset, len(ids))
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out[asset.ID] = asset
	}
	return out, rows.Err()
}
