package recon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

type memoryReconRepo struct {
	accounts     map[int64]BankAccount
	txns         map[int64]BankTransaction
	fingerprints map[string]bool
	recs         map[int64]BankReconciliation
	items        map[int64][]ReconcilingItem
	lines        map[int64]bool
	bookBalances map[int64]int64
	nextTxnID    int64
	nextRecID    int64
	nextItemID   int64
}

func newMemoryReconRepo() *memoryReconRepo {
	return &memoryReconRepo{
		accounts:     make(map[int64]BankAccount),
		txns:         make(map[int64]BankTransaction),
		fingerprints: make(map[string]bool),
		recs:         make(map[int64]BankReconciliation),
		items:        make(map[int64][]ReconcilingItem),
		lines:        make(map[int64]bool),
		bookBalances: make(map[int64]int64),
	}
}

type memoryReconTx struct {
	repo *memoryReconRepo
}

func (r *memoryReconRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryReconTx{repo: r})
}

func (r *memoryReconRepo) GetReconciliation(ctx context.Context, id int64) (BankReconciliation, error) {
	rec, ok := r.recs[id]
	if !ok {
		return BankReconciliation{}, ErrReconNotFound
	}
	return rec, nil
}

func (r *memoryReconRepo) Items(ctx context.Context, reconciliationID int64) ([]ReconcilingItem, error) {
	return append([]ReconcilingItem(nil), r.items[reconciliationID]...), nil
}

func (r *memoryReconRepo) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	account, ok := r.accounts[id]
	if !ok {
		return BankAccount{}, ErrBankAccountNotFound
	}
	return account, nil
}

func (r *memoryReconRepo) ListBankAccounts(ctx context.Context) ([]BankAccount, error) {
	var out []BankAccount
	for _, account := range r.accounts {
		out = append(out, account)
	}
	return out, nil
}

func (r *memoryReconRepo) UnmatchedTransactions(ctx context.Context, bankAccountID int64) ([]BankTransaction, error) {
	var out []BankTransaction
	for _, txn := range r.txns {
		if txn.BankAccountID == bankAccountID && txn.MatchStatus == MatchStatusUnmatched {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (t *memoryReconTx) InsertTransaction(ctx context.Context, txn BankTransaction) (BankTransaction, error) {
	if t.repo.fingerprints[txn.Fingerprint] {
		return BankTransaction{}, ErrDuplicateTransaction
	}
	t.repo.fingerprints[txn.Fingerprint] = true
	t.repo.nextTxnID++
	txn.ID = t.repo.nextTxnID
	t.repo.txns[txn.ID] = txn
	return txn, nil
}

func (t *memoryReconTx) GetTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error) {
	txn, ok := t.repo.txns[id]
	if !ok {
		return BankTransaction{}, ErrTransactionNotFound
	}
	return txn, nil
}

func (t *memoryReconTx) MarkMatched(ctx context.Context, txnID, lineID, matchedBy int64, at time.Time) error {
	txn := t.repo.txns[txnID]
	txn.MatchStatus = MatchStatusMatched
	txn.MatchedLineID = &lineID
	txn.MatchedBy = &matchedBy
	txn.MatchedAt = &at
	t.repo.txns[txnID] = txn
	return nil
}

func (t *memoryReconTx) MarkUnmatched(ctx context.Context, txnID int64) error {
	txn := t.repo.txns[txnID]
	txn.MatchStatus = MatchStatusUnmatched
	txn.MatchedLineID = nil
	txn.MatchedBy = nil
	txn.MatchedAt = nil
	t.repo.txns[txnID] = txn
	return nil
}

func (t *memoryReconTx) JournalLineExists(ctx context.Context, lineID int64) (bool, error) {
	return t.repo.lines[lineID], nil
}

func (t *memoryReconTx) InsertReconciliation(ctx context.Context, rec BankReconciliation) (BankReconciliation, error) {
	t.repo.nextRecID++
	rec.ID = t.repo.nextRecID
	t.repo.recs[rec.ID] = rec
	return rec, nil
}

func (t *memoryReconTx) GetReconciliationForUpdate(ctx context.Context, id int64) (BankReconciliation, error) {
	return t.repo.GetReconciliation(ctx, id)
}

func (t *memoryReconTx) MarkStarted(ctx context.Context, id, startedBy int64, at time.Time) error {
	rec := t.repo.recs[id]
	rec.Status = StatusInProgress
	rec.StartedBy = &startedBy
	rec.StartedAt = &at
	t.repo.recs[id] = rec
	return nil
}

func (t *memoryReconTx) MarkCompleted(ctx context.Context, rec BankReconciliation) error {
	t.repo.recs[rec.ID] = rec
	return nil
}

func (t *memoryReconTx) MarkApproved(ctx context.Context, id, approvedBy int64, at time.Time) error {
	rec := t.repo.recs[id]
	rec.Status = StatusApproved
	rec.ApprovedBy = &approvedBy
	rec.ApprovedAt = &at
	t.repo.recs[id] = rec
	return nil
}

func (t *memoryReconTx) InsertItem(ctx context.Context, item ReconcilingItem) (ReconcilingItem, error) {
	t.repo.nextItemID++
	item.ID = t.repo.nextItemID
	t.repo.items[item.ReconciliationID] = append(t.repo.items[item.ReconciliationID], item)
	return item, nil
}

func (t *memoryReconTx) ClearItem(ctx context.Context, reconciliationID, itemID int64) error {
	items := t.repo.items[reconciliationID]
	for i := range items {
		if items[i].ID == itemID {
			items[i].Status = ItemStatusCleared
			return nil
		}
	}
	return ErrItemNotFound
}

func (t *memoryReconTx) Items(ctx context.Context, reconciliationID int64) ([]ReconcilingItem, error) {
	return t.repo.Items(ctx, reconciliationID)
}

func (t *memoryReconTx) BookBalance(ctx context.Context, glAccountID int64, through time.Time) (int64, error) {
	return t.repo.bookBalances[glAccountID], nil
}

func (t *memoryReconTx) UpdateLastReconciled(ctx context.Context, bankAccountID int64, date time.Time) error {
	account := t.repo.accounts[bankAccountID]
	d := date
	account.LastReconciledDate = &d
	t.repo.accounts[bankAccountID] = account
	return nil
}

func seedBankAccount(repo *memoryReconRepo) {
	repo.accounts[1] = BankAccount{ID: 1, Code: "OPS-01", Name: "Operating", GLAccountID: 10}
}

func marchRows() []ImportRow {
	return []ImportRow{
		{TxnDate: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), Amount: 150_000, Description: "DEPOSIT"},
		{TxnDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), Amount: -45_000, Description: "CHECK 1042"},
		{TxnDate: time.Date(2026, 3, 28, 0, 0, 0, 0, time.UTC), Amount: -2_500, Description: "SERVICE FEE"},
	}
}

func TestImportStatementSkipsDuplicates(t *testing.T) {
	repo := newMemoryReconRepo()
	seedBankAccount(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	first, err := svc.ImportStatement(ctx, 1, marchRows(), 7)
	require.NoError(t, err)
	require.Equal(t, ImportResult{Imported: 3}, first)

	again, err := svc.ImportStatement(ctx, 1, marchRows(), 7)
	require.NoError(t, err, "re-uploading a statement is harmless")
	require.Equal(t, ImportResult{Duplicates: 3}, again)
	require.Len(t, repo.txns, 3)
}

func TestImportSingleDuplicateReportsConflict(t *testing.T) {
	repo := newMemoryReconRepo()
	seedBankAccount(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	rows := marchRows()[:1]
	_, err := svc.ImportStatement(ctx, 1, rows, 7)
	require.NoError(t, err)

	_, err = svc.ImportStatement(ctx, 1, rows, 7)
	require.ErrorIs(t, err, ErrDuplicateTransaction)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestImportStatementValidation(t *testing.T) {
	repo := newMemoryReconRepo()
	seedBankAccount(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.ImportStatement(ctx, 1, nil, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ImportStatement(ctx, 99, marchRows(), 7)
	require.ErrorIs(t, err, ErrBankAccountNotFound)

	_, err = svc.ImportStatement(ctx, 1, []ImportRow{{Amount: 100}}, 7)
	require.ErrorIs(t, err, shared.ErrValidation, "rows need a date")
}

func TestMatchingStateMachine(t *testing.T) {
	repo := newMemoryReconRepo()
	seedBankAccount(repo)
	repo.lines[500] = true
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.ImportStatement(ctx, 1, marchRows(), 7)
	require.NoError(t, err)

	rec, err := svc.Create(ctx, 1, 2026, 3, 102_500, 7)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, rec.Status)

	err = svc.MatchTransaction(ctx, rec.ID, 1, 500, 7)
	require.ErrorIs(t, err, shared.ErrConflict, "matching requires IN_PROGRESS")

	rec, err = svc.Start(ctx, rec.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, rec.Status)

	_, err = svc.Start(ctx, rec.ID, 7)
	require.ErrorIs(t, err, shared.ErrConflict, "start is not repeatable")

	err = svc.MatchTransaction(ctx, rec.ID, 1, 999, 7)
	require.ErrorIs(t, err, ErrLineNotFound)

	require.NoError(t, svc.MatchTransaction(ctx, rec.ID, 1, 500, 7))
	require.Equal(t, MatchStatusMatched, repo.txns[1].MatchStatus)
	require.Equal(t, int64(500), *repo.txns[1].MatchedLineID)

	err = svc.MatchTransaction(ctx, rec.ID, 1, 500, 7)
	require.ErrorIs(t, err, ErrAlreadyMatched)

	require.NoError(t, svc.UnmatchTransaction(ctx, rec.ID, 1, 7))
	require.Equal(t, MatchStatusUnmatched, repo.txns[1].MatchStatus)
	require.Nil(t, repo.txns[1].MatchedLineID)

	err = svc.UnmatchTransaction(ctx, rec.ID, 1, 7)
	require.ErrorIs(t, err, ErrNotMatched)
}

func TestMatchRejectsForeignAccountTransaction(t *testing.T) {
	repo := newMemoryReconRepo()
	seedBankAccount(repo)
	repo.accounts[2] = BankAccount{ID: 2, Code: "PAY-01", Name: "Payroll", GLAccountID: 11}
	repo.lines[500] = true
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.ImportStatement(ctx, 2, marchRows()[:1], 7)
	require.NoError(t, err)

	rec, err := svc.Create(ctx, 1, 2026, 3, 0, 7)
	require.NoError(t, err)
	_, err = svc.Start(ctx, rec.ID, 7)
	require.NoError(t, err)

	err = svc.MatchTransaction(ctx, rec.ID, 1, 500, 7)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAddItemValidation(t *testing.T) {
	repo := newMemoryReconRepo()
	seedBankAccount(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, 1, 2026, 3, 0, 7)
	require.NoError(t, err)
	_, err = svc.Start(ctx, rec.ID, 7)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, rec.ID, "MYSTERY", 100, "", 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.AddItem(ctx, rec.ID, KindBankFee, 0, "", 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.AddItem(ctx, rec.ID, KindOutstandingCheck, -100, "", 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	item, err := svc.AddItem(ctx, rec.ID, KindBookError, -100, "transposed digits", 7)
	require.NoError(t, err, "book errors may be negative")
	require.Equal(t, ItemStatusOpen, item.Status)
}

func TestCompleteRecordsOutcomeEvenWhenUnbalanced(t *testing.T) {
	repo := newMemoryReconRepo()
	seedBankAccount(repo)
	repo.bookBalances[10] = 130_000
	svc := NewService(repo, nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, 1, 2026, 3, 100_000, 7)
	require.NoError(t, err)
	_, err = svc.Start(ctx, rec.ID, 7)
	require.NoError(t, err)

	// Only 20,000 of the 30,000 gap is explained.
	_, err = svc.AddItem(ctx, rec.ID, KindOutstandingCheck, 20_000, "check 1042", 7)
	require.NoError(t, err)

	completed, err := svc.Complete(ctx, rec.ID, 7)
	require.NoError(t, err, "an unbalanced reconciliation still completes")
	require.Equal(t, StatusCompleted, completed.Status)
	require.Equal(t, int64(130_000), completed.BookEndingBalance)
	require.Equal(t, int64(80_000), completed.AdjustedBankBalance)
	require.Equal(t, int64(130_000), completed.AdjustedBookBalance)
	require.False(t, completed.IsBalanced)
}

func TestCompleteBalancedAndApprove(t *testing.T) {
	repo := newMemoryReconRepo()
	seedBankAccount(repo)
	repo.bookBalances[10] = 130_000
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC) })
	ctx := context.Background()

	rec, err := svc.Create(ctx, 1, 2026, 3, 100_000, 7)
	require.NoError(t, err)
	_, err = svc.Start(ctx, rec.ID, 7)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, rec.ID, KindDepositInTransit, 30_000, "late deposit", 7)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, rec.ID, 9)
	require.ErrorIs(t, err, shared.ErrConflict, "only completed reconciliations can be approved")

	completed, err := svc.Complete(ctx, rec.ID, 7)
	require.NoError(t, err)
	require.True(t, completed.IsBalanced)
	require.Equal(t, completed.AdjustedBankBalance, completed.AdjustedBookBalance)

	approved, err := svc.Approve(ctx, rec.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)

	account, err := repo.GetBankAccount(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, account.LastReconciledDate)
	require.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), *account.LastReconciledDate, "approval stamps the period's last day")

	_, err = svc.Approve(ctx, rec.ID, 9)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestStaleAccounts(t *testing.T) {
	repo := newMemoryReconRepo()
	july := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	june := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	repo.accounts[1] = BankAccount{ID: 1, Code: "OPS-01", LastReconciledDate: &july}
	repo.accounts[2] = BankAccount{ID: 2, Code: "PAY-01", LastReconciledDate: &june}
	repo.accounts[3] = BankAccount{ID: 3, Code: "SAV-01"}
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC) })

	stale, err := svc.StaleAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, stale, 2)
	codes := map[string]bool{}
	for _, s := range stale {
		codes[s.Account.Code] = true
	}
	require.True(t, codes["PAY-01"], "reconciled two periods ago is stale")
	require.True(t, codes["SAV-01"], "never reconciled is stale")
	require.False(t, codes["OPS-01"])
}
