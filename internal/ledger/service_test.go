package ledger

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

type memoryLedgerRepo struct {
	entries   map[int64]JournalEntry
	lines     map[int64][]JournalLine
	links     map[string]int64
	periods   map[string]string
	takenSeqs map[string]bool
	nextID    int64

	// stealSeqs simulates a concurrent allocator grabbing the sequence
	// between NextEntrySeq and InsertEntry.
	stealSeqs int
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		entries:   make(map[int64]JournalEntry),
		lines:     make(map[int64][]JournalLine),
		links:     make(map[string]int64),
		periods:   make(map[string]string),
		takenSeqs: make(map[string]bool),
	}
}

type memoryLedgerTx struct {
	repo *memoryLedgerRepo
}

func periodKey(year, month int) string { return fmt.Sprintf("%04d-%02d", year, month) }

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryLedgerTx{repo: r})
}

func (r *memoryLedgerRepo) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	entry, ok := r.entries[id]
	if !ok {
		return JournalEntry{}, ErrEntryNotFound
	}
	entry.Lines = append([]JournalLine(nil), r.lines[id]...)
	return entry, nil
}

func (r *memoryLedgerRepo) FindByAccount(ctx context.Context, accountID int64, from, to time.Time) ([]JournalEntry, error) {
	var out []JournalEntry
	for id, entry := range r.entries {
		for _, line := range r.lines[id] {
			if line.AccountID == accountID {
				out = append(out, entry)
				break
			}
		}
	}
	return out, nil
}

func (t *memoryLedgerTx) LockPeriod(ctx context.Context, fiscalYear, fiscalMonth int) (string, error) {
	if status, ok := t.repo.periods[periodKey(fiscalYear, fiscalMonth)]; ok {
		return status, nil
	}
	return "OPEN", nil
}

func (t *memoryLedgerTx) NextEntrySeq(ctx context.Context, fiscalYear, fiscalMonth int) (int, error) {
	max := 0
	for _, entry := range t.repo.entries {
		if entry.FiscalYear == fiscalYear && entry.FiscalMonth == fiscalMonth && entry.Seq > max {
			max = entry.Seq
		}
	}
	for seq := max + 1; ; seq++ {
		if !t.repo.takenSeqs[fmt.Sprintf("%s#%d", periodKey(fiscalYear, fiscalMonth), seq)] {
			return seq, nil
		}
	}
}

func (t *memoryLedgerTx) InsertEntry(ctx context.Context, in DraftInput, seq int, status EntryStatus, postedBy *int64) (JournalEntry, error) {
	key := fmt.Sprintf("%s#%d", periodKey(in.FiscalYear, in.FiscalMonth), seq)
	if t.repo.stealSeqs > 0 {
		t.repo.stealSeqs--
		t.repo.takenSeqs[key] = true
	}
	if t.repo.takenSeqs[key] {
		return JournalEntry{}, ErrEntryNumberTaken
	}
	t.repo.takenSeqs[key] = true
	t.repo.nextID++
	entry := JournalEntry{
		ID:                t.repo.nextID,
		EntryNumber:       EntryNumber(in.FiscalYear, in.FiscalMonth, seq),
		Seq:               seq,
		FiscalYear:        in.FiscalYear,
		FiscalMonth:       in.FiscalMonth,
		EntryDate:         in.EntryDate,
		Status:            status,
		Type:              in.Type,
		Description:       in.Description,
		SourceService:     in.SourceService,
		SourceReferenceID: in.SourceReferenceID,
		CreatedBy:         in.CreatedBy,
		PostedBy:          postedBy,
	}
	t.repo.entries[entry.ID] = entry
	return entry, nil
}

func (t *memoryLedgerTx) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	t.repo.lines[entryID] = toLines(entryID, lines)
	return nil
}

func (t *memoryLedgerTx) LinkSource(ctx context.Context, service string, ref uuid.UUID, entryID int64) error {
	key := service + "|" + ref.String()
	if _, exists := t.repo.links[key]; exists {
		return ErrSourceAlreadyLinked
	}
	t.repo.links[key] = entryID
	return nil
}

func (t *memoryLedgerTx) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	entry, ok := t.repo.entries[id]
	if !ok {
		return JournalEntry{}, ErrEntryNotFound
	}
	return entry, nil
}

func (t *memoryLedgerTx) MarkPosted(ctx context.Context, id, postedBy int64, at time.Time) error {
	entry := t.repo.entries[id]
	entry.Status = EntryStatusPosted
	entry.PostedBy = &postedBy
	entry.PostedAt = &at
	t.repo.entries[id] = entry
	return nil
}

func (t *memoryLedgerTx) MarkVoided(ctx context.Context, id, voidedBy int64, reason string, at time.Time) error {
	entry := t.repo.entries[id]
	entry.Status = EntryStatusVoided
	entry.VoidedBy = &voidedBy
	entry.VoidedAt = &at
	entry.VoidReason = reason
	t.repo.entries[id] = entry
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func draft(lines ...LineInput) DraftInput {
	return DraftInput{
		FiscalYear:  2026,
		FiscalMonth: 3,
		EntryDate:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Description: "test entry",
		CreatedBy:   7,
		Lines:       lines,
	}
}

func TestCreateEntryAssignsSequentialNumbers(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	first, err := svc.CreateEntry(ctx, draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 10_000},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: 10_000},
	))
	require.NoError(t, err)
	require.Equal(t, "JE-202603-0001", first.EntryNumber)
	require.Equal(t, EntryStatusDraft, first.Status)
	require.Len(t, first.Lines, 2)

	second, err := svc.CreateEntry(ctx, draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 500},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: 500},
	))
	require.NoError(t, err)
	require.Equal(t, "JE-202603-0002", second.EntryNumber)
}

func TestCreateEntryRejectsImbalance(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.CreateEntry(context.Background(), draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 10_500},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: 10_000},
	))
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorContains(t, err, "out of balance by 500")
	require.Empty(t, repo.entries, "nothing may persist on validation failure")
}

func TestCreateEntryRejectsStructuralFaults(t *testing.T) {
	svc := NewService(newMemoryLedgerRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 100},
	))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateEntry(ctx, draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 100},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: -100},
	))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateEntry(ctx, draft(
		LineInput{AccountID: 1, Direction: "SIDEWAYS", Amount: 100},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: 100},
	))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateEntryBalancedRandomLines(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil, nil)
	rng := rand.New(rand.NewSource(42))

	var lines []LineInput
	var total int64
	for i := 0; i < 20; i++ {
		amount := rng.Int63n(1_000_000) + 1
		total += amount
		lines = append(lines, LineInput{AccountID: int64(i%5 + 1), Direction: DirectionDebit, Amount: amount})
	}
	lines = append(lines, LineInput{AccountID: 9, Direction: DirectionCredit, Amount: total})

	entry, err := svc.CreateEntry(context.Background(), draft(lines...))
	require.NoError(t, err)
	require.Len(t, entry.Lines, 21)

	lines[0].Amount++
	_, err = svc.CreateEntry(context.Background(), draft(lines...))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateEntryClosedPeriod(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.periods["2026-03"] = "CLOSED"
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.CreateEntry(context.Background(), draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 100},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: 100},
	))
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	require.Empty(t, repo.entries)
}

func TestCreateEntryRetriesOnNumberRace(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.stealSeqs = 1
	svc := NewService(repo, nil, nil, nil)

	entry, err := svc.CreateEntry(context.Background(), draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 100},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: 100},
	))
	require.NoError(t, err)
	require.Equal(t, 2, entry.Seq, "loser of the allocation race takes the next sequence")
	require.Equal(t, "JE-202603-0002", entry.EntryNumber)
}

func TestCreateAndPostSourceIdempotency(t *testing.T) {
	repo := newMemoryLedgerRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, nil, nil, audit)
	ctx := context.Background()

	input := draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 25_000},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: 25_000},
	)
	input.SourceService = "events"
	input.SourceReferenceID = uuid.New()

	entry, err := svc.CreateAndPost(ctx, input)
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, entry.Status)
	require.NotNil(t, entry.PostedBy)

	_, err = svc.CreateAndPost(ctx, input)
	require.ErrorIs(t, err, ErrSourceAlreadyLinked)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, repo.entries, 1, "duplicate source reference must not create a second entry")
	require.Len(t, audit.logs, 1)
}

func TestPostEntryIsIdempotent(t *testing.T) {
	repo := newMemoryLedgerRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, nil, nil, audit)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC) })
	ctx := context.Background()

	entry, err := svc.CreateEntry(ctx, draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 100},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: 100},
	))
	require.NoError(t, err)

	posted, err := svc.PostEntry(ctx, entry.ID, 11)
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, posted.Status)
	require.Equal(t, int64(11), *posted.PostedBy)

	again, err := svc.PostEntry(ctx, entry.ID, 12)
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, again.Status)
	require.Equal(t, int64(11), *again.PostedBy, "re-post must not reassign the poster")

	postActions := 0
	for _, log := range audit.logs {
		if log.Action == "journal.post" {
			postActions++
		}
	}
	require.Equal(t, 1, postActions, "idempotent re-post writes no second audit row")
}

func TestPostEntryClosedPeriod(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	entry, err := svc.CreateEntry(ctx, draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 100},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: 100},
	))
	require.NoError(t, err)

	repo.periods["2026-03"] = "LOCKED"
	_, err = svc.PostEntry(ctx, entry.ID, 11)
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
}

func TestVoidEntryRules(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	entry, err := svc.CreateEntry(ctx, draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 100},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: 100},
	))
	require.NoError(t, err)

	_, err = svc.VoidEntry(ctx, entry.ID, "", 11)
	require.ErrorIs(t, err, ErrVoidNeedsReason)

	_, err = svc.VoidEntry(ctx, entry.ID, "duplicate", 11)
	require.ErrorIs(t, err, shared.ErrConflict, "drafts cannot be voided")

	_, err = svc.PostEntry(ctx, entry.ID, 11)
	require.NoError(t, err)

	voided, err := svc.VoidEntry(ctx, entry.ID, "duplicate booking", 11)
	require.NoError(t, err)
	require.Equal(t, EntryStatusVoided, voided.Status)
	require.Equal(t, "duplicate booking", voided.VoidReason)

	_, err = svc.VoidEntry(ctx, entry.ID, "again", 11)
	require.ErrorIs(t, err, shared.ErrConflict, "voiding twice is a conflict")

	_, err = svc.PostEntry(ctx, entry.ID, 11)
	require.ErrorIs(t, err, shared.ErrConflict, "voided entries never return to posted")
}

type rejectingDirectory struct{}

func (rejectingDirectory) EnsureDetailAccounts(ctx context.Context, ids []int64) error {
	return shared.Validationf("accounts: account %d is not a detail account", ids[0])
}

func TestCreateEntryChecksAccountDirectory(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, rejectingDirectory{}, nil, nil)

	_, err := svc.CreateEntry(context.Background(), draft(
		LineInput{AccountID: 3, Direction: DirectionDebit, Amount: 100},
		LineInput{AccountID: 4, Direction: DirectionCredit, Amount: 100},
	))
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.entries)
}

type countingMeter struct {
	sources []string
}

func (m *countingMeter) CountPosting(source string) {
	m.sources = append(m.sources, source)
}

func TestPostingMeterCountsEachPostOnce(t *testing.T) {
	repo := newMemoryLedgerRepo()
	meter := &countingMeter{}
	svc := NewService(repo, nil, nil, nil)
	svc.WithMeter(meter)
	ctx := context.Background()

	entry, err := svc.CreateEntry(ctx, draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 100},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: 100},
	))
	require.NoError(t, err)
	require.Empty(t, meter.sources, "drafts do not count until posted")

	_, err = svc.PostEntry(ctx, entry.ID, 11)
	require.NoError(t, err)
	_, err = svc.PostEntry(ctx, entry.ID, 11)
	require.NoError(t, err)
	require.Equal(t, []string{"manual"}, meter.sources, "idempotent re-post must not double count")

	input := draft(
		LineInput{AccountID: 1, Direction: DirectionDebit, Amount: 500},
		LineInput{AccountID: 2, Direction: DirectionCredit, Amount: 500},
	)
	input.SourceService = "events"
	input.SourceReferenceID = uuid.New()
	_, err = svc.CreateAndPost(ctx, input)
	require.NoError(t, err)
	require.Equal(t, []string{"manual", "events"}, meter.sources)
}
