package reports

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/atlas-commerce/atlas-ledger/internal/accounts"
	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

type mockReportRepo struct {
	statuses      map[string]string
	snapshots     map[string][]AccountBalance
	live          map[string][]AccountBalance
	snapshotCalls int
	liveCalls     int
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{
		statuses:  make(map[string]string),
		snapshots: make(map[string][]AccountBalance),
		live:      make(map[string][]AccountBalance),
	}
}

func key(year, month int) string {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

func (m *mockReportRepo) PeriodStatus(ctx context.Context, fiscalYear, fiscalMonth int) (string, error) {
	if status, ok := m.statuses[key(fiscalYear, fiscalMonth)]; ok {
		return status, nil
	}
	return "OPEN", nil
}

func (m *mockReportRepo) SnapshotBalances(ctx context.Context, fiscalYear, fiscalMonth int) ([]AccountBalance, error) {
	m.snapshotCalls++
	return m.snapshots[key(fiscalYear, fiscalMonth)], nil
}

func (m *mockReportRepo) LiveBalances(ctx context.Context, fiscalYear, fiscalMonth int) ([]AccountBalance, error) {
	m.liveCalls++
	return m.live[key(fiscalYear, fiscalMonth)], nil
}

func (m *mockReportRepo) AccountLedger(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerLine, error) {
	return nil, nil
}

func newTestService(t *testing.T, repo *mockReportRepo) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(repo, NewCache(client, time.Minute))
}

func sampleBalances() []AccountBalance {
	return []AccountBalance{
		{AccountID: 1, Code: "1010", Name: "Cash", Type: accounts.AccountTypeAsset, NormalBalance: accounts.NormalBalanceDebit, Debit: 75_000},
		{AccountID: 2, Code: "4010", Name: "Sales Revenue", Type: accounts.AccountTypeRevenue, NormalBalance: accounts.NormalBalanceCredit, Credit: 75_000},
	}
}

func TestGetTrialBalanceOpenPeriodReadsLive(t *testing.T) {
	repo := newMockReportRepo()
	repo.live[key(2026, 3)] = sampleBalances()
	svc := newTestService(t, repo)

	tb, err := svc.GetTrialBalance(context.Background(), 2026, 3)
	require.NoError(t, err)
	require.Equal(t, SourceLive, tb.Source)
	require.True(t, tb.IsBalanced)
	require.Equal(t, 1, repo.liveCalls)
	require.Zero(t, repo.snapshotCalls)
}

func TestGetTrialBalanceClosedPeriodReadsSnapshotAndCaches(t *testing.T) {
	repo := newMockReportRepo()
	repo.statuses[key(2026, 2)] = "CLOSED"
	repo.snapshots[key(2026, 2)] = sampleBalances()
	svc := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.GetTrialBalance(ctx, 2026, 2)
	require.NoError(t, err)
	require.Equal(t, SourceSnapshot, first.Source)
	require.Equal(t, 1, repo.snapshotCalls)

	second, err := svc.GetTrialBalance(ctx, 2026, 2)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.snapshotCalls, "second read must come from cache")
	require.Zero(t, repo.liveCalls)
}

func TestGetTrialBalanceModesAgreeOnIdenticalData(t *testing.T) {
	repo := newMockReportRepo()
	repo.live[key(2026, 3)] = sampleBalances()
	repo.statuses[key(2026, 2)] = "LOCKED"
	repo.snapshots[key(2026, 2)] = sampleBalances()
	svc := newTestService(t, repo)
	ctx := context.Background()

	live, err := svc.GetTrialBalance(ctx, 2026, 3)
	require.NoError(t, err)
	snapshot, err := svc.GetTrialBalance(ctx, 2026, 2)
	require.NoError(t, err)

	require.Equal(t, snapshot.Rows, live.Rows, "same balances produce the same rows regardless of source")
	require.Equal(t, snapshot.TotalDebits, live.TotalDebits)
	require.Equal(t, snapshot.TotalCredits, live.TotalCredits)
}

func TestGetTrialBalanceComparison(t *testing.T) {
	repo := newMockReportRepo()
	repo.live[key(2026, 1)] = sampleBalances()
	repo.statuses[key(2025, 12)] = "CLOSED"
	repo.snapshots[key(2025, 12)] = sampleBalances()
	svc := newTestService(t, repo)

	cmp, err := svc.GetTrialBalanceComparison(context.Background(), 2026, 1)
	require.NoError(t, err)
	require.Equal(t, 2026, cmp.Current.FiscalYear)
	require.Equal(t, 1, cmp.Current.FiscalMonth)
	require.Equal(t, 2025, cmp.Prior.FiscalYear)
	require.Equal(t, 12, cmp.Prior.FiscalMonth, "january compares against december of the prior year")
	require.Equal(t, SourceSnapshot, cmp.Prior.Source)
}

func TestAccountLedgerRequiresAccount(t *testing.T) {
	svc := newTestService(t, newMockReportRepo())

	_, err := svc.AccountLedger(context.Background(), 0, time.Time{}, time.Time{})
	require.ErrorIs(t, err, shared.ErrValidation)
}
