package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

// Sentinel errors surfaced by the ledger service.
var (
	ErrEntryNotFound       = shared.NotFound("ledger: journal entry not found")
	ErrEntryNumberTaken    = errors.New("ledger: entry number already allocated")
	ErrSourceAlreadyLinked = shared.Conflict("ledger: source reference already posted")
	ErrVoidNeedsReason     = shared.Validation("ledger: void requires a non-empty reason")
)

// Entry-number allocation races lose on the unique constraint and retry with
// a fresh read.
const maxNumberRetries = 5

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, id int64) (JournalEntry, error)
	FindByAccount(ctx context.Context, accountID int64, from, to time.Time) ([]JournalEntry, error)
}

// AccountDirectory validates account references before an entry is accepted.
type AccountDirectory interface {
	EnsureDetailAccounts(ctx context.Context, ids []int64) error
}

// PeriodGuard gates whether the target fiscal period accepts postings.
type PeriodGuard interface {
	EnsureOpenForPosting(ctx context.Context, fiscalYear, fiscalMonth int) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PostingMeter counts posted entries by originating source.
type PostingMeter interface {
	CountPosting(source string)
}

// Service coordinates creating, posting, and voiding journal entries.
type Service struct {
	repo     RepositoryPort
	accounts AccountDirectory
	guard    PeriodGuard
	audit    AuditPort
	meter    PostingMeter
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, accounts AccountDirectory, guard PeriodGuard, audit AuditPort) *Service {
	return &Service{repo: repo, accounts: accounts, guard: guard, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMeter attaches a posting counter.
func (s *Service) WithMeter(meter PostingMeter) {
	s.meter = meter
}

// CreateEntry validates and persists a draft journal entry. The header and
// all lines commit in a single transaction.
func (s *Service) CreateEntry(ctx context.Context, input DraftInput) (JournalEntry, error) {
	return s.create(ctx, input, EntryStatusDraft, nil)
}

// CreateAndPost persists an entry directly in Posted status. Used by system
// posters (event consumer, depreciation) whose entries need no review step.
func (s *Service) CreateAndPost(ctx context.Context, input DraftInput) (JournalEntry, error) {
	postedBy := input.CreatedBy
	return s.create(ctx, input, EntryStatusPosted, &postedBy)
}

func (s *Service) create(ctx context.Context, input DraftInput, status EntryStatus, postedBy *int64) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if input.Type == "" {
		input.Type = EntryTypeManual
	}
	if s.accounts != nil {
		if err := s.accounts.EnsureDetailAccounts(ctx, input.AccountIDs()); err != nil {
			return JournalEntry{}, err
		}
	}
	if s.guard != nil {
		if err := s.guard.EnsureOpenForPosting(ctx, input.FiscalYear, input.FiscalMonth); err != nil {
			return JournalEntry{}, err
		}
	}
	var entry JournalEntry
	var err error
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			periodStatus, err := tx.LockPeriod(ctx, input.FiscalYear, input.FiscalMonth)
			if err != nil {
				return err
			}
			if periodStatus != "OPEN" {
				return shared.PeriodClosed("ledger: fiscal period %04d-%02d is %s", input.FiscalYear, input.FiscalMonth, periodStatus)
			}
			seq, err := tx.NextEntrySeq(ctx, input.FiscalYear, input.FiscalMonth)
			if err != nil {
				return err
			}
			inserted, err := tx.InsertEntry(ctx, input, seq, status, postedBy)
			if err != nil {
				return err
			}
			if err := tx.InsertLines(ctx, inserted.ID, input.Lines); err != nil {
				return err
			}
			if input.SourceService != "" && input.SourceReferenceID != uuid.Nil {
				if err := tx.LinkSource(ctx, input.SourceService, input.SourceReferenceID, inserted.ID); err != nil {
					return err
				}
			}
			inserted.Lines = toLines(inserted.ID, input.Lines)
			entry = inserted
			return nil
		})
		if errors.Is(err, ErrEntryNumberTaken) {
			continue
		}
		break
	}
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, input.CreatedBy, "journal.create", entry.ID, map[string]any{
		"entry_number": entry.EntryNumber,
		"status":       entry.Status,
		"source":       entry.SourceService,
	})
	if status == EntryStatusPosted {
		s.countPosting(entry.SourceService)
	}
	return entry, nil
}

// PostEntry transitions a draft to Posted, the only state that counts toward
// balances. Re-posting an already Posted entry succeeds without effect so
// callers can retry safely.
func (s *Service) PostEntry(ctx context.Context, id, postedBy int64) (JournalEntry, error) {
	if id == 0 {
		return JournalEntry{}, shared.Validation("ledger: entry id required")
	}
	var entry JournalEntry
	var already bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch current.Status {
		case EntryStatusPosted:
			entry = current
			already = true
			return nil
		case EntryStatusVoided:
			return shared.Conflictf("ledger: entry %s is voided and cannot be posted", current.EntryNumber)
		}
		periodStatus, err := tx.LockPeriod(ctx, current.FiscalYear, current.FiscalMonth)
		if err != nil {
			return err
		}
		if periodStatus != "OPEN" {
			return shared.PeriodClosed("ledger: fiscal period %04d-%02d is %s", current.FiscalYear, current.FiscalMonth, periodStatus)
		}
		ts := s.now()
		if err := tx.MarkPosted(ctx, id, postedBy, ts); err != nil {
			return err
		}
		entry = current
		entry.Status = EntryStatusPosted
		entry.PostedBy = &postedBy
		entry.PostedAt = &ts
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if !already {
		s.record(ctx, postedBy, "journal.post", entry.ID, map[string]any{"entry_number": entry.EntryNumber})
		s.countPosting(entry.SourceService)
	}
	return entry, nil
}

// VoidEntry marks a posted entry Voided. Rows are never deleted; the entry
// simply stops counting toward balances and carries the reason for audit.
func (s *Service) VoidEntry(ctx context.Context, id int64, reason string, voidedBy int64) (JournalEntry, error) {
	if id == 0 {
		return JournalEntry{}, shared.Validation("ledger: entry id required")
	}
	if reason == "" {
		return JournalEntry{}, ErrVoidNeedsReason
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusPosted {
			return shared.Conflictf("ledger: cannot void a %s entry", current.Status)
		}
		ts := s.now()
		if err := tx.MarkVoided(ctx, id, voidedBy, reason, ts); err != nil {
			return err
		}
		entry = current
		entry.Status = EntryStatusVoided
		entry.VoidedBy = &voidedBy
		entry.VoidedAt = &ts
		entry.VoidReason = reason
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, voidedBy, "journal.void", entry.ID, map[string]any{
		"entry_number": entry.EntryNumber,
		"reason":       reason,
	})
	return entry, nil
}

// GetEntry returns an entry with its lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

// FindByAccount returns entries touching the account within the date range.
func (s *Service) FindByAccount(ctx context.Context, accountID int64, from, to time.Time) ([]JournalEntry, error) {
	if accountID == 0 {
		return nil, shared.Validation("ledger: account id required")
	}
	return s.repo.FindByAccount(ctx, accountID, from, to)
}

func toLines(entryID int64, lines []LineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for idx, line := range lines {
		out = append(out, JournalLine{
			EntryID:    entryID,
			Seq:        idx + 1,
			AccountID:  line.AccountID,
			Direction:  line.Direction,
			Amount:     line.Amount,
			CostCenter: line.CostCenter,
			Warehouse:  line.Warehouse,
			Channel:    line.Channel,
			CustomerID: line.CustomerID,
			VendorID:   line.VendorID,
			ProductID:  line.ProductID,
		})
	}
	return out
}

func (s *Service) countPosting(source string) {
	if s.meter == nil {
		return
	}
	if source == "" {
		source = "manual"
	}
	s.meter.CountPosting(source)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}
