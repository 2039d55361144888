package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

// Repository persists journal entries and lines.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockPeriod(ctx context.Context, fiscalYear, fiscalMonth int) (string, error)
	NextEntrySeq(ctx context.Context, fiscalYear, fiscalMonth int) (int, error)
	InsertEntry(ctx context.Context, in DraftInput, seq int, status EntryStatus, postedBy *int64) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) error
	LinkSource(ctx context.Context, service string, ref uuid.UUID, entryID int64) error
	GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	MarkPosted(ctx context.Context, id, postedBy int64, at time.Time) error
	MarkVoided(ctx context.Context, id, voidedBy int64, reason string, at time.Time) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
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

// LockPeriod takes a shared lock on the period row so a posting cannot race
// a close transaction that holds the row exclusively.
func (r *txRepository) LockPeriod(ctx context.Context, fiscalYear, fiscalMonth int) (string, error) {
	var status string
	err := r.tx.QueryRow(ctx, `SELECT status FROM fiscal_periods WHERE fiscal_year=$1 AND fiscal_month=$2 FOR SHARE`, fiscalYear, fiscalMonth).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.NotFoundf("ledger: fiscal period %04d-%02d not found", fiscalYear, fiscalMonth)
		}
		return "", err
	}
	return status, nil
}

func (r *txRepository) NextEntrySeq(ctx context.Context, fiscalYear, fiscalMonth int) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM journal_entries WHERE fiscal_year=$1 AND fiscal_month=$2`, fiscalYear, fiscalMonth).Scan(&seq)
	return seq, err
}

const entryColumns = `id, entry_number, seq, fiscal_year, fiscal_month, entry_date, status, entry_type, description, source_service, source_reference_id, created_by, created_at, posted_by, posted_at, voided_by, voided_at, void_reason`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var sourceRef *uuid.UUID
	var voidReason *string
	err := row.Scan(&e.ID, &e.EntryNumber, &e.Seq, &e.FiscalYear, &e.FiscalMonth, &e.EntryDate, &e.Status, &e.Type, &e.Description, &e.SourceService, &sourceRef, &e.CreatedBy, &e.CreatedAt, &e.PostedBy, &e.PostedAt, &e.VoidedBy, &e.VoidedAt, &voidReason)
	if err != nil {
		return JournalEntry{}, err
	}
	if sourceRef != nil {
		e.SourceReferenceID = *sourceRef
	}
	if voidReason != nil {
		e.VoidReason = *voidReason
	}
	return e, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, in DraftInput, seq int, status EntryStatus, postedBy *int64) (JournalEntry, error) {
	number := EntryNumber(in.FiscalYear, in.FiscalMonth, seq)
	var postedAt any
	if postedBy != nil {
		postedAt = time.Now()
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(entry_number, seq, fiscal_year, fiscal_month, entry_date, status, entry_type, description, source_service, source_reference_id, created_by, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
RETURNING `+entryColumns,
		number, seq, in.FiscalYear, in.FiscalMonth, in.EntryDate, status, in.Type, in.Description,
		in.SourceService, nullUUID(in.SourceReferenceID), in.CreatedBy, postedBy, postedAt)
	entry, err := scanEntry(row)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "uq_journal_entries_period_seq" {
			return JournalEntry{}, ErrEntryNumberTaken
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for idx, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines
(entry_id, seq, account_id, direction, amount, cost_center, warehouse, channel, customer_id, vendor_id, product_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			entryID, idx+1, line.AccountID, line.Direction, line.Amount,
			line.CostCenter, line.Warehouse, line.Channel, line.CustomerID, line.VendorID, line.ProductID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, service string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (source_service, source_reference_id, entry_id) VALUES ($1,$2,$3)`, service, ref, entryID)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) MarkPosted(ctx context.Context, id, postedBy int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='POSTED', posted_by=$2, posted_at=$3 WHERE id=$1`, id, postedBy, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) MarkVoided(ctx context.Context, id, voidedBy int64, reason string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='VOIDED', voided_by=$2, voided_at=$3, void_reason=$4 WHERE id=$1`, id, voidedBy, at, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// GetEntry returns an entry with its lines.
func (r *Repository) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	lines, err := r.linesFor(ctx, []int64{id})
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines[id]
	return entry, nil
}

// FindByAccount returns entries touching the account within the date range,
// ordered by entry date then number.
func (r *Repository) FindByAccount(ctx context.Context, accountID int64, from, to time.Time) ([]JournalEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE id IN (SELECT entry_id FROM journal_lines WHERE account_id=$1)
AND entry_date >= $2 AND entry_date <= $3
ORDER BY entry_date, seq`, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	var ids []int64
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		ids = append(ids, entry.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return entries, nil
	}
	lines, err := r.linesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Lines = lines[entries[i].ID]
	}
	return entries, nil
}

func (r *Repository) linesFor(ctx context.Context, entryIDs []int64) (map[int64][]JournalLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, entry_id, seq, account_id, direction, amount, cost_center, warehouse, channel, customer_id, vendor_id, product_id
FROM journal_lines WHERE entry_id = ANY($1) ORDER BY entry_id, seq`, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]JournalLine)
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.Seq, &l.AccountID, &l.Direction, &l.Amount, &l.CostCenter, &l.Warehouse, &l.Channel, &l.CustomerID, &l.VendorID, &l.ProductID); err != nil {
			return nil, err
		}
		out[l.EntryID] = append(out[l.EntryID], l)
	}
	return out, rows.Err()
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
