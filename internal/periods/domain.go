package periods

import (
	"fmt"
	"time"
)

// Status enumerates fiscal period states. Closing is the transient gate held
// while a close transaction evaluates its checklist and writes snapshots, so
// a late posting cannot slip in between checklist and commit.
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusClosing Status = "CLOSING"
	StatusClosed  Status = "CLOSED"
	StatusLocked  Status = "LOCKED"
)

// FiscalPeriod represents one calendar month of the fiscal calendar.
type FiscalPeriod struct {
	ID           int64
	FiscalYear   int
	FiscalMonth  int
	Status       Status
	ClosedBy     *int64
	ClosedAt     *time.Time
	ReopenedBy   *int64
	ReopenedAt   *time.Time
	ReopenReason string
	LockedBy     *int64
	LockedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Label formats a period as YYYY-MM.
func Label(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// Previous returns the immediately preceding calendar period.
func Previous(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}

// End returns the last instant of the period's final day.
func End(year, month int) time.Time {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// AccountBalanceSnapshot is written once per account at period close and read
// thereafter instead of re-aggregating ledger lines.
type AccountBalanceSnapshot struct {
	ID             int64
	FiscalYear     int
	FiscalMonth    int
	AccountID      int64
	OpeningBalance int64
	DebitTotal     int64
	CreditTotal    int64
	ClosingBalance int64
	InvalidatedAt  *time.Time
	CreatedAt      time.Time
}

// AccountActivity aggregates posted, non-voided line totals for one account
// within a period.
type AccountActivity struct {
	AccountID   int64
	DebitTotal  int64
	CreditTotal int64
}
