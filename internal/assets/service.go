package assets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-commerce/atlas-ledger/internal/ledger"
	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

// Sentinel errors surfaced by the depreciation service.
var (
	ErrRunNotFound      = shared.NotFound("assets: depreciation run not found")
	ErrRunAlreadyPosted = shared.Conflict("assets: depreciation run already posted for period")
	ErrRunNotPosted     = shared.Conflict("assets: depreciation run is not posted")
	ErrNothingToPost    = shared.Validation("assets: depreciation run has no schedules")
	ErrReverseReason    = shared.Validation("assets: reversal requires a non-empty reason")
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRun(ctx context.Context, id int64) (DepreciationRun, error)
	FindRun(ctx context.Context, fiscalYear, fiscalMonth int) (DepreciationRun, error)
	ListRuns(ctx context.Context, limit int) ([]DepreciationRun, error)
	Schedules(ctx context.Context, runID int64) ([]DepreciationSchedule, error)
	Categories(ctx context.Context, assetIDs []int64) (map[int64]AssetCategory, error)
	AssetsByID(ctx context.Context, ids []int64) (map[int64]FixedAsset, error)
}

// TxRepository is the transaction-scoped slice of the repository.
type TxRepository interface {
	FindRunForUpdate(ctx context.Context, fiscalYear, fiscalMonth int) (DepreciationRun, error)
	GetRunForUpdate(ctx context.Context, id int64) (DepreciationRun, error)
	DeleteRun(ctx context.Context, runID int64) error
	InsertRun(ctx context.Context, run DepreciationRun) (DepreciationRun, error)
	InsertSchedules(ctx context.Context, runID int64, schedules []DepreciationSchedule) error
	DepreciableAssets(ctx context.Context, before time.Time) ([]FixedAsset, error)
	ApplyDepreciation(ctx context.Context, assetID, amount, closingBookValue int64, fullyDepreciated bool) error
	RestoreAsset(ctx context.Context, assetID, bookValue, amount int64) error
	MarkSchedulesPosted(ctx context.Context, runID, entryID int64) error
	MarkSchedulesReversed(ctx context.Context, runID int64) error
	MarkRunPosted(ctx context.Context, runID, entryID, postedBy int64, at time.Time) error
	MarkRunReversed(ctx context.Context, runID, reversedBy int64, reason string, at time.Time) error
}

// Poster posts and voids the journal entries a run produces.
type Poster interface {
	CreateAndPost(ctx context.Context, input ledger.DraftInput) (ledger.JournalEntry, error)
	VoidEntry(ctx context.Context, id int64, reason string, voidedBy int64) (ledger.JournalEntry, error)
}

// AuditPort records depreciation events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the calculate/post/reverse depreciation workflow.
type Service struct {
	repo   RepositoryPort
	poster Poster
	audit  AuditPort
	now    func() time.Time
}

// NewService constructs the depreciation service.
func NewService(repo RepositoryPort, poster Poster, audit AuditPort) *Service {
	return &Service{repo: repo, poster: poster, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Calculate computes one month of depreciation for every eligible asset and
// stores the result as a Calculated run. A prior unposted run for the same
// period is discarded and recomputed; a Posted run cannot be recalculated.
func (s *Service) Calculate(ctx context.Context, fiscalYear, fiscalMonth int, createdBy int64) (DepreciationRun, error) {
	if fiscalMonth < 1 || fiscalMonth > 12 {
		return DepreciationRun{}, shared.Validationf("assets: fiscal month %d out of range", fiscalMonth)
	}
	cutoff := time.Date(fiscalYear, time.Month(fiscalMonth)+1, 1, 0, 0, 0, 0, time.UTC)

	var run DepreciationRun
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindRunForUpdate(ctx, fiscalYear, fiscalMonth)
		switch {
		case err == nil:
			if existing.Status == RunStatusPosted {
				return ErrRunAlreadyPosted
			}
			if err := tx.DeleteRun(ctx, existing.ID); err != nil {
				return err
			}
		case errors.Is(err, ErrRunNotFound):
		default:
			return err
		}

		eligible, err := tx.DepreciableAssets(ctx, cutoff)
		if err != nil {
			return err
		}

		schedules := make([]DepreciationSchedule, 0, len(eligible))
		var skipped int
		var total int64
		for _, asset := range eligible {
			amount := MonthlyAmount(asset)
			if amount <= 0 {
				skipped++
				continue
			}
			schedules = append(schedules, DepreciationSchedule{
				AssetID:          asset.ID,
				FiscalYear:       fiscalYear,
				FiscalMonth:      fiscalMonth,
				Amount:           amount,
				OpeningBookValue: asset.BookValue,
				ClosingBookValue: asset.BookValue - amount,
				Status:           ScheduleStatusCalculated,
			})
			total += amount
		}

		run, err = tx.InsertRun(ctx, DepreciationRun{
			FiscalYear:       fiscalYear,
			FiscalMonth:      fiscalMonth,
			Status:           RunStatusCalculated,
			SourceRef:        uuid.New(),
			DepreciatedCount: len(schedules),
			SkippedCount:     skipped,
			TotalAmount:      total,
			CreatedBy:        createdBy,
			CreatedAt:        s.now(),
		})
		if err != nil {
			return err
		}
		return tx.InsertSchedules(ctx, run.ID, schedules)
	})
	if err != nil {
		return DepreciationRun{}, err
	}
	s.record(ctx, createdBy, "depreciation.calculate", run.ID, map[string]any{
		"period":      fmt.Sprintf("%04d-%02d", fiscalYear, fiscalMonth),
		"depreciated": run.DepreciatedCount,
		"skipped":     run.SkippedCount,
		"total":       run.TotalAmount,
	})
	return run, nil
}

// Post commits a Calculated run to the ledger: one posted journal entry with
// a debit/credit pair per asset category, then the asset book values are
// brought down. The run's source reference makes posting exactly-once even
// under concurrent calls; the loser fails on the source link.
func (s *Service) Post(ctx context.Context, runID, postedBy int64) (DepreciationRun, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return DepreciationRun{}, err
	}
	switch run.Status {
	case RunStatusPosted:
		return DepreciationRun{}, ErrRunAlreadyPosted
	case RunStatusReversed:
		return DepreciationRun{}, shared.Conflict("assets: depreciation run was reversed and cannot be posted")
	}
	schedules, err := s.repo.Schedules(ctx, runID)
	if err != nil {
		return DepreciationRun{}, err
	}
	if len(schedules) == 0 {
		return DepreciationRun{}, ErrNothingToPost
	}

	lines, err := s.buildLines(ctx, schedules)
	if err != nil {
		return DepreciationRun{}, err
	}
	entryDate := time.Date(run.FiscalYear, time.Month(run.FiscalMonth)+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	entry, err := s.poster.CreateAndPost(ctx, ledger.DraftInput{
		FiscalYear:        run.FiscalYear,
		FiscalMonth:       run.FiscalMonth,
		EntryDate:         entryDate,
		Type:              ledger.EntryTypeSystem,
		Description:       fmt.Sprintf("Monthly depreciation %04d-%02d", run.FiscalYear, run.FiscalMonth),
		SourceService:     "depreciation",
		SourceReferenceID: run.SourceRef,
		CreatedBy:         postedBy,
		Lines:             lines,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrSourceAlreadyLinked) {
			return DepreciationRun{}, ErrRunAlreadyPosted
		}
		return DepreciationRun{}, err
	}

	ts := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRunForUpdate(ctx, runID)
		if err != nil {
			return err
		}
		if current.Status != RunStatusCalculated {
			return ErrRunAlreadyPosted
		}
		assets, err := s.loadAssets(ctx, schedules)
		if err != nil {
			return err
		}
		for _, sched := range schedules {
			asset, ok := assets[sched.AssetID]
			if !ok {
				return shared.NotFoundf("assets: fixed asset %d not found", sched.AssetID)
			}
			full := sched.ClosingBookValue <= asset.SalvageValue
			if err := tx.ApplyDepreciation(ctx, sched.AssetID, sched.Amount, sched.ClosingBookValue, full); err != nil {
				return err
			}
		}
		if err := tx.MarkSchedulesPosted(ctx, runID, entry.ID); err != nil {
			return err
		}
		return tx.MarkRunPosted(ctx, runID, entry.ID, postedBy, ts)
	})
	if err != nil {
		return DepreciationRun{}, err
	}

	run.Status = RunStatusPosted
	run.JournalEntryID = &entry.ID
	run.PostedBy = &postedBy
	run.PostedAt = &ts
	s.record(ctx, postedBy, "depreciation.post", run.ID, map[string]any{
		"entry_number": entry.EntryNumber,
		"total":        run.TotalAmount,
	})
	return run, nil
}

// Reverse voids a Posted run's journal entry and restores every asset to its
// pre-run book value using the opening values kept on the schedules.
func (s *Service) Reverse(ctx context.Context, runID int64, reason string, reversedBy int64) (DepreciationRun, error) {
	if reason == "" {
		return DepreciationRun{}, ErrReverseReason
	}
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return DepreciationRun{}, err
	}
	if run.Status != RunStatusPosted || run.JournalEntryID == nil {
		return DepreciationRun{}, ErrRunNotPosted
	}
	if _, err := s.poster.VoidEntry(ctx, *run.JournalEntryID, reason, reversedBy); err != nil {
		return DepreciationRun{}, err
	}

	ts := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRunForUpdate(ctx, runID)
		if err != nil {
			return err
		}
		if current.Status != RunStatusPosted {
			return ErrRunNotPosted
		}
		schedules, err := s.repo.Schedules(ctx, runID)
		if err != nil {
			return err
		}
		for _, sched := range schedules {
			if err := tx.RestoreAsset(ctx, sched.AssetID, sched.OpeningBookValue, sched.Amount); err != nil {
				return err
			}
		}
		if err := tx.MarkSchedulesReversed(ctx, runID); err != nil {
			return err
		}
		return tx.MarkRunReversed(ctx, runID, reversedBy, reason, ts)
	})
	if err != nil {
		return DepreciationRun{}, err
	}

	run.Status = RunStatusReversed
	run.ReversedBy = &reversedBy
	run.ReversedAt = &ts
	run.ReversalReason = reason
	s.record(ctx, reversedBy, "depreciation.reverse", run.ID, map[string]any{"reason": reason})
	return run, nil
}

// GetRun returns a run with its schedules attached.
func (s *Service) GetRun(ctx context.Context, id int64) (DepreciationRun, []DepreciationSchedule, error) {
	run, err := s.repo.GetRun(ctx, id)
	if err != nil {
		return DepreciationRun{}, nil, err
	}
	schedules, err := s.repo.Schedules(ctx, id)
	if err != nil {
		return DepreciationRun{}, nil, err
	}
	return run, schedules, nil
}

// ListRuns returns recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]DepreciationRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListRuns(ctx, limit)
}

func (s *Service) loadAssets(ctx context.Context, schedules []DepreciationSchedule) (map[int64]FixedAsset, error) {
	ids := make([]int64, 0, len(schedules))
	for _, sched := range schedules {
		ids = append(ids, sched.AssetID)
	}
	return s.repo.AssetsByID(ctx, ids)
}

// buildLines groups schedule amounts by asset category and emits one
// expense-debit / accumulated-credit pair per category.
func (s *Service) buildLines(ctx context.Context, schedules []DepreciationSchedule) ([]ledger.LineInput, error) {
	ids := make([]int64, 0, len(schedules))
	for _, sched := range schedules {
		ids = append(ids, sched.AssetID)
	}
	categories, err := s.repo.Categories(ctx, ids)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		category AssetCategory
		amount   int64
	}
	byCategory := make(map[int64]*bucket)
	order := make([]int64, 0, 4)
	for _, sched := range schedules {
		cat, ok := categories[sched.AssetID]
		if !ok {
			return nil, shared.NotFoundf("assets: no category for asset %d", sched.AssetID)
		}
		b, ok := byCategory[cat.ID]
		if !ok {
			b = &bucket{category: cat}
			byCategory[cat.ID] = b
			order = append(order, cat.ID)
		}
		b.amount += sched.Amount
	}

	lines := make([]ledger.LineInput, 0, len(order)*2)
	for _, id := range order {
		b := byCategory[id]
		lines = append(lines,
			ledger.LineInput{AccountID: b.category.ExpenseAccountID, Direction: ledger.DirectionDebit, Amount: b.amount},
			ledger.LineInput{AccountID: b.category.AccumDepreciationAccount, Direction: ledger.DirectionCredit, Amount: b.amount},
		)
	}
	return lines, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "depreciation_run",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}
