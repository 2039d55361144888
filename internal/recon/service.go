package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

// Sentinel errors surfaced by the reconciliation service.
var (
	ErrReconNotFound        = shared.NotFound("recon: reconciliation not found")
	ErrBankAccountNotFound  = shared.NotFound("recon: bank account not found")
	ErrTransactionNotFound  = shared.NotFound("recon: bank transaction not found")
	ErrDuplicateTransaction = shared.Conflict("recon: identical statement row already imported")
	ErrAlreadyMatched       = shared.Conflict("recon: bank transaction is already matched")
	ErrNotMatched           = shared.Conflict("recon: bank transaction is not matched")
	ErrLineNotFound         = shared.NotFound("recon: journal line not found")
	ErrItemNotFound         = shared.NotFound("recon: reconciling item not found")
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReconciliation(ctx context.Context, id int64) (BankReconciliation, error)
	Items(ctx context.Context, reconciliationID int64) ([]ReconcilingItem, error)
	GetBankAccount(ctx context.Context, id int64) (BankAccount, error)
	ListBankAccounts(ctx context.Context) ([]BankAccount, error)
	UnmatchedTransactions(ctx context.Context, bankAccountID int64) ([]BankTransaction, error)
}

// TxRepository is the transaction-scoped slice of the repository.
type TxRepository interface {
	InsertTransaction(ctx context.Context, txn BankTransaction) (BankTransaction, error)
	GetTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error)
	MarkMatched(ctx context.Context, txnID, lineID, matchedBy int64, at time.Time) error
	MarkUnmatched(ctx context.Context, txnID int64) error
	JournalLineExists(ctx context.Context, lineID int64) (bool, error)
	InsertReconciliation(ctx context.Context, rec BankReconciliation) (BankReconciliation, error)
	GetReconciliationForUpdate(ctx context.Context, id int64) (BankReconciliation, error)
	MarkStarted(ctx context.Context, id, startedBy int64, at time.Time) error
	MarkCompleted(ctx context.Context, rec BankReconciliation) error
	MarkApproved(ctx context.Context, id, approvedBy int64, at time.Time) error
	InsertItem(ctx context.Context, item ReconcilingItem) (ReconcilingItem, error)
	ClearItem(ctx context.Context, reconciliationID, itemID int64) error
	Items(ctx context.Context, reconciliationID int64) ([]ReconcilingItem, error)
	BookBalance(ctx context.Context, glAccountID int64, through time.Time) (int64, error)
	UpdateLastReconciled(ctx context.Context, bankAccountID int64, date time.Time) error
}

// AuditPort records reconciliation events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives statement import and the reconciliation state machine.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the reconciliation service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ImportRow is one statement line to ingest.
type ImportRow struct {
	TxnDate     time.Time
	Amount      int64
	Description string
}

// ImportResult summarises a statement import.
type ImportResult struct {
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
}

// ImportStatement ingests statement rows. Each row is fingerprinted; rows
// whose fingerprint is already stored are counted as duplicates and skipped,
// so re-uploading a statement is harmless. An import of a single row that
// already exists reports a conflict instead.
func (s *Service) ImportStatement(ctx context.Context, bankAccountID int64, rows []ImportRow, importedBy int64) (ImportResult, error) {
	if len(rows) == 0 {
		return ImportResult{}, shared.Validation("recon: statement has no rows")
	}
	if _, err := s.repo.GetBankAccount(ctx, bankAccountID); err != nil {
		return ImportResult{}, err
	}
	var result ImportResult
	for _, row := range rows {
		if row.TxnDate.IsZero() {
			return result, shared.Validation("recon: statement row missing date")
		}
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := tx.InsertTransaction(ctx, BankTransaction{
				BankAccountID: bankAccountID,
				TxnDate:       row.TxnDate,
				Amount:        row.Amount,
				Description:   row.Description,
				Fingerprint:   Fingerprint(bankAccountID, row.TxnDate, row.Amount, row.Description),
				MatchStatus:   MatchStatusUnmatched,
				ImportedAt:    s.now(),
			})
			return err
		})
		switch {
		case err == nil:
			result.Imported++
		case errors.Is(err, shared.ErrConflict):
			result.Duplicates++
			if len(rows) == 1 {
				return result, ErrDuplicateTransaction
			}
		default:
			return result, err
		}
	}
	s.record(ctx, importedBy, "recon.import", bankAccountID, map[string]any{
		"imported":   result.Imported,
		"duplicates": result.Duplicates,
	})
	return result, nil
}

// Create opens a Draft reconciliation for a bank account and period.
func (s *Service) Create(ctx context.Context, bankAccountID int64, fiscalYear, fiscalMonth int, statementEndingBalance, createdBy int64) (BankReconciliation, error) {
	if fiscalMonth < 1 || fiscalMonth > 12 {
		return BankReconciliation{}, shared.Validationf("recon: fiscal month %d out of range", fiscalMonth)
	}
	if _, err := s.repo.GetBankAccount(ctx, bankAccountID); err != nil {
		return BankReconciliation{}, err
	}
	var rec BankReconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rec, err = tx.InsertReconciliation(ctx, BankReconciliation{
			BankAccountID:          bankAccountID,
			FiscalYear:             fiscalYear,
			FiscalMonth:            fiscalMonth,
			Status:                 StatusDraft,
			StatementEndingBalance: statementEndingBalance,
			CreatedBy:              createdBy,
			CreatedAt:              s.now(),
		})
		return err
	})
	if err != nil {
		return BankReconciliation{}, err
	}
	s.record(ctx, createdBy, "recon.create", rec.ID, map[string]any{
		"period": fmt.Sprintf("%04d-%02d", fiscalYear, fiscalMonth),
	})
	return rec, nil
}

// Start moves a Draft reconciliation into InProgress, the only state that
// accepts matching and reconciling items.
func (s *Service) Start(ctx context.Context, id, startedBy int64) (BankReconciliation, error) {
	var rec BankReconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetReconciliationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return shared.Conflictf("recon: cannot start a %s reconciliation", current.Status)
		}
		ts := s.now()
		if err := tx.MarkStarted(ctx, id, startedBy, ts); err != nil {
			return err
		}
		rec = current
		rec.Status = StatusInProgress
		rec.StartedBy = &startedBy
		rec.StartedAt = &ts
		return nil
	})
	if err != nil {
		return BankReconciliation{}, err
	}
	s.record(ctx, startedBy, "recon.start", id, nil)
	return rec, nil
}

// MatchTransaction pairs one bank transaction with one journal line.
// Matching is one-to-one: a Matched transaction must be unmatched explicitly
// before it can be paired again.
func (s *Service) MatchTransaction(ctx context.Context, reconciliationID, bankTransactionID, journalLineID, matchedBy int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconciliationForUpdate(ctx, reconciliationID)
		if err != nil {
			return err
		}
		if rec.Status != StatusInProgress {
			return shared.Conflictf("recon: reconciliation is %s, matching requires IN_PROGRESS", rec.Status)
		}
		txn, err := tx.GetTransactionForUpdate(ctx, bankTransactionID)
		if err != nil {
			return err
		}
		if txn.BankAccountID != rec.BankAccountID {
			return shared.Validation("recon: transaction belongs to a different bank account")
		}
		if txn.MatchStatus == MatchStatusMatched {
			return ErrAlreadyMatched
		}
		ok, err := tx.JournalLineExists(ctx, journalLineID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLineNotFound
		}
		return tx.MarkMatched(ctx, bankTransactionID, journalLineID, matchedBy, s.now())
	})
	if err != nil {
		return err
	}
	s.record(ctx, matchedBy, "recon.match", reconciliationID, map[string]any{
		"transaction": bankTransactionID,
		"line":        journalLineID,
	})
	return nil
}

// UnmatchTransaction releases a matched transaction so it can be re-paired.
func (s *Service) UnmatchTransaction(ctx context.Context, reconciliationID, bankTransactionID, unmatchedBy int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconciliationForUpdate(ctx, reconciliationID)
		if err != nil {
			return err
		}
		if rec.Status != StatusInProgress {
			return shared.Conflictf("recon: reconciliation is %s, unmatching requires IN_PROGRESS", rec.Status)
		}
		txn, err := tx.GetTransactionForUpdate(ctx, bankTransactionID)
		if err != nil {
			return err
		}
		if txn.MatchStatus != MatchStatusMatched {
			return ErrNotMatched
		}
		return tx.MarkUnmatched(ctx, bankTransactionID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, unmatchedBy, "recon.unmatch", reconciliationID, map[string]any{"transaction": bankTransactionID})
	return nil
}

// AddItem records a reconciling item explaining part of the bank/book gap.
func (s *Service) AddItem(ctx context.Context, reconciliationID int64, kind ItemKind, amount int64, description string, createdBy int64) (ReconcilingItem, error) {
	switch kind {
	case KindOutstandingCheck, KindDepositInTransit, KindBankFee, KindInterestEarned, KindNSFCheck, KindBookError:
	default:
		return ReconcilingItem{}, shared.Validationf("recon: unknown item kind %q", kind)
	}
	if amount == 0 {
		return ReconcilingItem{}, shared.Validation("recon: item amount must be non-zero")
	}
	if kind != KindBookError && amount < 0 {
		return ReconcilingItem{}, shared.Validationf("recon: %s amount must be positive", kind)
	}
	var item ReconcilingItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconciliationForUpdate(ctx, reconciliationID)
		if err != nil {
			return err
		}
		if rec.Status != StatusInProgress {
			return shared.Conflictf("recon: reconciliation is %s, items require IN_PROGRESS", rec.Status)
		}
		item, err = tx.InsertItem(ctx, ReconcilingItem{
			ReconciliationID: reconciliationID,
			Kind:             kind,
			Amount:           amount,
			Description:      description,
			Status:           ItemStatusOpen,
			CreatedBy:        createdBy,
			CreatedAt:        s.now(),
		})
		return err
	})
	if err != nil {
		return ReconcilingItem{}, err
	}
	s.record(ctx, createdBy, "recon.item.add", reconciliationID, map[string]any{
		"kind":   kind,
		"amount": amount,
	})
	return item, nil
}

// ClearItem marks an item Cleared, removing it from the adjustment.
func (s *Service) ClearItem(ctx context.Context, reconciliationID, itemID, clearedBy int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetReconciliationForUpdate(ctx, reconciliationID)
		if err != nil {
			return err
		}
		if rec.Status != StatusInProgress {
			return shared.Conflictf("recon: reconciliation is %s, items require IN_PROGRESS", rec.Status)
		}
		return tx.ClearItem(ctx, reconciliationID, itemID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, clearedBy, "recon.item.clear", reconciliationID, map[string]any{"item": itemID})
	return nil
}

// Complete computes adjusted balances from open items and records the
// outcome. An out-of-balance reconciliation still completes; IsBalanced is
// stored so the approver can see the gap.
func (s *Service) Complete(ctx context.Context, id, completedBy int64) (BankReconciliation, error) {
	account := BankAccount{}
	var rec BankReconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetReconciliationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusInProgress {
			return shared.Conflictf("recon: cannot complete a %s reconciliation", current.Status)
		}
		account, err = s.repo.GetBankAccount(ctx, current.BankAccountID)
		if err != nil {
			return err
		}
		periodEnd := time.Date(current.FiscalYear, time.Month(current.FiscalMonth)+1, 1, 0, 0, 0, 0, time.UTC)
		book, err := tx.BookBalance(ctx, account.GLAccountID, periodEnd)
		if err != nil {
			return err
		}
		items, err := tx.Items(ctx, id)
		if err != nil {
			return err
		}
		ts := s.now()
		current.BookEndingBalance = book
		current.AdjustedBankBalance, current.AdjustedBookBalance = AdjustedBalances(current.StatementEndingBalance, book, items)
		current.IsBalanced = current.AdjustedBankBalance == current.AdjustedBookBalance
		current.Status = StatusCompleted
		current.CompletedBy = &completedBy
		current.CompletedAt = &ts
		if err := tx.MarkCompleted(ctx, current); err != nil {
			return err
		}
		rec = current
		return nil
	})
	if err != nil {
		return BankReconciliation{}, err
	}
	s.record(ctx, completedBy, "recon.complete", id, map[string]any{
		"adjusted_bank": rec.AdjustedBankBalance,
		"adjusted_book": rec.AdjustedBookBalance,
		"balanced":      rec.IsBalanced,
	})
	return rec, nil
}

// Approve signs off a Completed reconciliation and stamps the bank account's
// last reconciled date, which the dashboard uses to flag stale accounts.
func (s *Service) Approve(ctx context.Context, id, approvedBy int64) (BankReconciliation, error) {
	var rec BankReconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetReconciliationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusCompleted {
			return shared.Conflictf("recon: cannot approve a %s reconciliation", current.Status)
		}
		ts := s.now()
		if err := tx.MarkApproved(ctx, id, approvedBy, ts); err != nil {
			return err
		}
		periodEnd := time.Date(current.FiscalYear, time.Month(current.FiscalMonth)+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		if err := tx.UpdateLastReconciled(ctx, current.BankAccountID, periodEnd); err != nil {
			return err
		}
		rec = current
		rec.Status = StatusApproved
		rec.ApprovedBy = &approvedBy
		rec.ApprovedAt = &ts
		return nil
	})
	if err != nil {
		return BankReconciliation{}, err
	}
	s.record(ctx, approvedBy, "recon.approve", id, nil)
	return rec, nil
}

// Get returns a reconciliation with its items.
func (s *Service) Get(ctx context.Context, id int64) (BankReconciliation, []ReconcilingItem, error) {
	rec, err := s.repo.GetReconciliation(ctx, id)
	if err != nil {
		return BankReconciliation{}, nil, err
	}
	items, err := s.repo.Items(ctx, id)
	if err != nil {
		return BankReconciliation{}, nil, err
	}
	return rec, items, nil
}

// UnmatchedTransactions lists a bank account's unmatched statement rows.
func (s *Service) UnmatchedTransactions(ctx context.Context, bankAccountID int64) ([]BankTransaction, error) {
	if _, err := s.repo.GetBankAccount(ctx, bankAccountID); err != nil {
		return nil, err
	}
	return s.repo.UnmatchedTransactions(ctx, bankAccountID)
}

// StaleAccount flags a bank account that has not been reconciled recently.
type StaleAccount struct {
	Account            BankAccount `json:"account"`
	LastReconciledDate *time.Time  `json:"lastReconciledDate"`
}

// StaleAccounts returns accounts with no approved reconciliation covering
// this period or the previous one.
func (s *Service) StaleAccounts(ctx context.Context) ([]StaleAccount, error) {
	accounts, err := s.repo.ListBankAccounts(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	threshold := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	var out []StaleAccount
	for _, account := range accounts {
		if account.LastReconciledDate == nil || account.LastReconciledDate.Before(threshold) {
			out = append(out, StaleAccount{Account: account, LastReconciledDate: account.LastReconciledDate})
		}
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "bank_reconciliation",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}
