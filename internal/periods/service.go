package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlas-commerce/atlas-ledger/internal/accounts"
	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

// Sentinel errors surfaced by the period service.
var (
	ErrPeriodNotFound = shared.NotFound("periods: fiscal period not found")
	ErrPeriodLocked   = shared.Conflict("periods: locked periods cannot be reopened")
	ErrReopenReason   = shared.Validation("periods: reopen requires a non-empty reason")
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, fiscalYear, fiscalMonth int) (FiscalPeriod, error)
	List(ctx context.Context) ([]FiscalPeriod, error)
	Snapshots(ctx context.Context, fiscalYear, fiscalMonth int) ([]AccountBalanceSnapshot, error)
}

// AuditPort records period lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheInvalidator drops cached reports when a period's data changes shape.
type CacheInvalidator interface {
	InvalidateTrialBalance(ctx context.Context, fiscalYear, fiscalMonth int) error
}

// Service owns the fiscal period state machine and balance snapshotting.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache CacheInvalidator
	now   func() time.Time
}

// NewService constructs the period service.
func NewService(repo RepositoryPort, audit AuditPort, cache CacheInvalidator) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// EnsureOpenForPosting gates the ledger: the target period must be Open. A
// period never referenced before is created Open on first use.
func (s *Service) EnsureOpenForPosting(ctx context.Context, fiscalYear, fiscalMonth int) error {
	period, err := s.repo.Get(ctx, fiscalYear, fiscalMonth)
	if errors.Is(err, shared.ErrNotFound) {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := tx.CreateOpen(ctx, fiscalYear, fiscalMonth)
			return err
		})
	}
	if err != nil {
		return err
	}
	if period.Status != StatusOpen {
		return shared.PeriodClosed("periods: fiscal period %s is %s", Label(fiscalYear, fiscalMonth), period.Status)
	}
	return nil
}

// Close runs the close checklist, aggregating every unmet condition, then
// snapshots balances and marks the period Closed. The whole close commits as
// one transaction holding the period row exclusively, so postings racing the
// close either land before the checklist reads or fail against the closed
// status afterwards.
func (s *Service) Close(ctx context.Context, fiscalYear, fiscalMonth int, closedBy int64) (FiscalPeriod, error) {
	label := Label(fiscalYear, fiscalMonth)
	var period FiscalPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, fiscalYear, fiscalMonth)
		if err != nil {
			return err
		}
		switch current.Status {
		case StatusClosed, StatusLocked:
			return shared.Conflictf("periods: fiscal period %s is already %s", label, current.Status)
		case StatusClosing:
			return shared.Conflictf("periods: close of fiscal period %s already in progress", label)
		}
		if err := tx.SetStatus(ctx, fiscalYear, fiscalMonth, StatusClosing); err != nil {
			return err
		}

		var failures []string
		prevYear, prevMonth := Previous(fiscalYear, fiscalMonth)
		prev, err := tx.GetForUpdate(ctx, prevYear, prevMonth)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			// First period on record; nothing to close before it.
		case err != nil:
			return err
		default:
			if prev.Status != StatusClosed && prev.Status != StatusLocked {
				failures = append(failures, fmt.Sprintf("previous period %s must be closed first", Label(prevYear, prevMonth)))
			}
		}

		draftCount, err := tx.CountDraftEntries(ctx, fiscalYear, fiscalMonth)
		if err != nil {
			return err
		}
		if draftCount > 0 {
			failures = append(failures, fmt.Sprintf("%d draft journal entries remain in the period", draftCount))
		}

		activity, err := tx.AccountActivity(ctx, fiscalYear, fiscalMonth)
		if err != nil {
			return err
		}
		var totalDebits, totalCredits int64
		for _, a := range activity {
			totalDebits += a.DebitTotal
			totalCredits += a.CreditTotal
		}
		if diff := totalDebits - totalCredits; diff != 0 {
			failures = append(failures, fmt.Sprintf("trial balance is out of balance by %d", diff))
		}

		if len(failures) > 0 {
			return &shared.ChecklistError{Subject: "close of fiscal period " + label, Failures: failures}
		}

		snapshots, err := s.buildSnapshots(ctx, tx, fiscalYear, fiscalMonth, activity)
		if err != nil {
			return err
		}
		if err := tx.InsertSnapshots(ctx, snapshots); err != nil {
			return err
		}
		if err := tx.MarkClosed(ctx, fiscalYear, fiscalMonth, closedBy, s.now()); err != nil {
			return err
		}
		period, err = tx.GetForUpdate(ctx, fiscalYear, fiscalMonth)
		return err
	})
	if err != nil {
		return FiscalPeriod{}, err
	}
	s.record(ctx, closedBy, "period.close", label, nil)
	s.invalidate(ctx, fiscalYear, fiscalMonth)
	return period, nil
}

// buildSnapshots computes one snapshot per account with in-period activity or
// a prior-period snapshot. Untouched accounts carry their prior closing
// forward so opening balances chain across periods without re-scanning
// history.
func (s *Service) buildSnapshots(ctx context.Context, tx TxRepository, fiscalYear, fiscalMonth int, activity []AccountActivity) ([]AccountBalanceSnapshot, error) {
	prevYear, prevMonth := Previous(fiscalYear, fiscalMonth)
	priorClosings, err := tx.PriorClosings(ctx, prevYear, prevMonth)
	if err != nil {
		return nil, err
	}
	normals, err := tx.NormalBalances(ctx)
	if err != nil {
		return nil, err
	}

	byAccount := make(map[int64]AccountActivity, len(activity))
	accountIDs := make([]int64, 0, len(activity)+len(priorClosings))
	for _, a := range activity {
		byAccount[a.AccountID] = a
		accountIDs = append(accountIDs, a.AccountID)
	}
	for accountID := range priorClosings {
		if _, seen := byAccount[accountID]; !seen {
			accountIDs = append(accountIDs, accountID)
		}
	}

	snapshots := make([]AccountBalanceSnapshot, 0, len(accountIDs))
	for _, accountID := range accountIDs {
		a := byAccount[accountID]
		opening := priorClosings[accountID]
		closing := opening + a.DebitTotal - a.CreditTotal
		if normals[accountID] == accounts.NormalBalanceCredit {
			closing = opening + a.CreditTotal - a.DebitTotal
		}
		snapshots = append(snapshots, AccountBalanceSnapshot{
			FiscalYear:     fiscalYear,
			FiscalMonth:    fiscalMonth,
			AccountID:      accountID,
			OpeningBalance: opening,
			DebitTotal:     a.DebitTotal,
			CreditTotal:    a.CreditTotal,
			ClosingBalance: closing,
		})
	}
	return snapshots, nil
}

// Reopen returns a Closed period to Open with an audited reason. Snapshots
// are invalidated because open-period reporting recomputes live.
func (s *Service) Reopen(ctx context.Context, fiscalYear, fiscalMonth int, reopenedBy int64, reason string) (FiscalPeriod, error) {
	if reason == "" {
		return FiscalPeriod{}, ErrReopenReason
	}
	label := Label(fiscalYear, fiscalMonth)
	var period FiscalPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, fiscalYear, fiscalMonth)
		if err != nil {
			return err
		}
		if current.Status == StatusLocked {
			return ErrPeriodLocked
		}
		if current.Status != StatusClosed {
			return shared.Conflictf("periods: fiscal period %s is %s, only closed periods can reopen", label, current.Status)
		}
		if err := tx.InvalidateSnapshots(ctx, fiscalYear, fiscalMonth, s.now()); err != nil {
			return err
		}
		if err := tx.MarkReopened(ctx, fiscalYear, fiscalMonth, reopenedBy, reason, s.now()); err != nil {
			return err
		}
		period, err = tx.GetForUpdate(ctx, fiscalYear, fiscalMonth)
		return err
	})
	if err != nil {
		return FiscalPeriod{}, err
	}
	s.record(ctx, reopenedBy, "period.reopen", label, map[string]any{"reason": reason})
	s.invalidate(ctx, fiscalYear, fiscalMonth)
	return period, nil
}

// Lock archives a Closed period. Locked is terminal; no command reverses it.
func (s *Service) Lock(ctx context.Context, fiscalYear, fiscalMonth int, lockedBy int64) (FiscalPeriod, error) {
	label := Label(fiscalYear, fiscalMonth)
	var period FiscalPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, fiscalYear, fiscalMonth)
		if err != nil {
			return err
		}
		if current.Status != StatusClosed {
			return shared.Conflictf("periods: fiscal period %s is %s, only closed periods can be locked", label, current.Status)
		}
		if err := tx.MarkLocked(ctx, fiscalYear, fiscalMonth, lockedBy, s.now()); err != nil {
			return err
		}
		period, err = tx.GetForUpdate(ctx, fiscalYear, fiscalMonth)
		return err
	})
	if err != nil {
		return FiscalPeriod{}, err
	}
	s.record(ctx, lockedBy, "period.lock", label, nil)
	return period, nil
}

// Get returns a single period.
func (s *Service) Get(ctx context.Context, fiscalYear, fiscalMonth int) (FiscalPeriod, error) {
	return s.repo.Get(ctx, fiscalYear, fiscalMonth)
}

// List returns all periods in chronological order.
func (s *Service) List(ctx context.Context) ([]FiscalPeriod, error) {
	return s.repo.List(ctx)
}

// Snapshots returns the valid balance snapshots for a period.
func (s *Service) Snapshots(ctx context.Context, fiscalYear, fiscalMonth int) ([]AccountBalanceSnapshot, error) {
	return s.repo.Snapshots(ctx, fiscalYear, fiscalMonth)
}

func (s *Service) record(ctx context.Context, actorID int64, action, label string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fiscal_period",
		EntityID: label,
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) invalidate(ctx context.Context, fiscalYear, fiscalMonth int) {
	if s.cache == nil {
		return
	}
	_ = s.cache.InvalidateTrialBalance(ctx, fiscalYear, fiscalMonth)
}
