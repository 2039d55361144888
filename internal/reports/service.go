package reports

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

// LedgerLine is one account ledger detail row.
type LedgerLine struct {
	EntryID     int64
	EntryNumber string
	EntryDate   time.Time
	Description string
	Direction   string
	Amount      int64
}

// RepositoryPort is the read-side port over snapshot and ledger data.
type RepositoryPort interface {
	PeriodStatus(ctx context.Context, fiscalYear, fiscalMonth int) (string, error)
	SnapshotBalances(ctx context.Context, fiscalYear, fiscalMonth int) ([]AccountBalance, error)
	LiveBalances(ctx context.Context, fiscalYear, fiscalMonth int) ([]AccountBalance, error)
	AccountLedger(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerLine, error)
}

// Service produces read-only reports. It never mutates ledger state.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService constructs the reports service.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetTrialBalance produces the report for a period. Closed periods read the
// precomputed snapshots; open or unknown periods aggregate live ledger lines
// plus each account's opening balance from the prior period's snapshot.
func (s *Service) GetTrialBalance(ctx context.Context, fiscalYear, fiscalMonth int) (TrialBalance, error) {
	status, err := s.repo.PeriodStatus(ctx, fiscalYear, fiscalMonth)
	if err != nil {
		return TrialBalance{}, err
	}
	if status == "CLOSED" || status == "LOCKED" {
		if tb, ok := s.cache.GetTrialBalance(ctx, fiscalYear, fiscalMonth); ok {
			return tb, nil
		}
		balances, err := s.repo.SnapshotBalances(ctx, fiscalYear, fiscalMonth)
		if err != nil {
			return TrialBalance{}, err
		}
		tb := BuildTrialBalance(fiscalYear, fiscalMonth, SourceSnapshot, balances)
		s.cache.SetTrialBalance(ctx, tb)
		return tb, nil
	}
	balances, err := s.repo.LiveBalances(ctx, fiscalYear, fiscalMonth)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(fiscalYear, fiscalMonth, SourceLive, balances), nil
}

// TrialBalanceComparison holds a period's report next to its predecessor's.
type TrialBalanceComparison struct {
	Current TrialBalance `json:"current"`
	Prior   TrialBalance `json:"prior"`
}

// GetTrialBalanceComparison fetches the period and its predecessor
// concurrently. Both reads are independent so the slower one bounds latency.
func (s *Service) GetTrialBalanceComparison(ctx context.Context, fiscalYear, fiscalMonth int) (TrialBalanceComparison, error) {
	priorYear, priorMonth := fiscalYear, fiscalMonth-1
	if priorMonth < 1 {
		priorYear, priorMonth = fiscalYear-1, 12
	}
	var out TrialBalanceComparison
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tb, err := s.GetTrialBalance(gctx, fiscalYear, fiscalMonth)
		if err != nil {
			return err
		}
		out.Current = tb
		return nil
	})
	g.Go(func() error {
		tb, err := s.GetTrialBalance(gctx, priorYear, priorMonth)
		if err != nil {
			return err
		}
		out.Prior = tb
		return nil
	})
	if err := g.Wait(); err != nil {
		return TrialBalanceComparison{}, err
	}
	return out, nil
}

// AccountLedger returns the posted ledger detail for one account.
func (s *Service) AccountLedger(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerLine, error) {
	if accountID == 0 {
		return nil, shared.Validation("reports: account id required")
	}
	return s.repo.AccountLedger(ctx, accountID, from, to)
}
