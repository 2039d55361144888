package assets

import (
	"time"

	"github.com/google/uuid"
)

// Method enumerates supported depreciation methods.
type Method string

const (
	MethodStraightLine     Method = "STRAIGHT_LINE"
	MethodDecliningBalance Method = "DECLINING_BALANCE"
)

// AssetStatus enumerates fixed asset lifecycle values.
type AssetStatus string

const (
	AssetStatusActive           AssetStatus = "ACTIVE"
	AssetStatusFullyDepreciated AssetStatus = "FULLY_DEPRECIATED"
	AssetStatusDisposed         AssetStatus = "DISPOSED"
)

// RunStatus enumerates depreciation run lifecycle values.
type RunStatus string

const (
	RunStatusCalculated RunStatus = "CALCULATED"
	RunStatusPosted     RunStatus = "POSTED"
	RunStatusReversed   RunStatus = "REVERSED"
)

// ScheduleStatus mirrors the run lifecycle per asset row.
type ScheduleStatus string

const (
	ScheduleStatusCalculated ScheduleStatus = "CALCULATED"
	ScheduleStatusPosted     ScheduleStatus = "POSTED"
	ScheduleStatusReversed   ScheduleStatus = "REVERSED"
)

// AssetCategory groups assets and carries the ledger accounts their
// depreciation posts against.
type AssetCategory struct {
	ID                       int64
	Name                     string
	ExpenseAccountID         int64
	AccumDepreciationAccount int64
}

// FixedAsset holds acquisition and depreciation state. Amounts are integer
// minor currency units.
type FixedAsset struct {
	ID                      int64
	Code                    string
	Name                    string
	CategoryID              int64
	AcquisitionCost         int64
	SalvageValue            int64
	UsefulLifeMonths        int
	Method                  Method
	DecliningRate           float64
	BookValue               int64
	AccumulatedDepreciation int64
	DepreciationStartDate   time.Time
	Status                  AssetStatus
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// DepreciationSchedule is one asset's row within a run. Opening and closing
// book values are kept as pre-images so a reversal can restore the asset
// exactly.
type DepreciationSchedule struct {
	ID               int64
	RunID            int64
	AssetID          int64
	FiscalYear       int
	FiscalMonth      int
	Amount           int64
	OpeningBookValue int64
	ClosingBookValue int64
	Status           ScheduleStatus
	JournalEntryID   *int64
}

// DepreciationRun groups a period's schedules through the
// calculate/post/reverse workflow.
type DepreciationRun struct {
	ID               int64
	FiscalYear       int
	FiscalMonth      int
	Status           RunStatus
	SourceRef        uuid.UUID
	DepreciatedCount int
	SkippedCount     int
	TotalAmount      int64
	JournalEntryID   *int64
	CreatedBy        int64
	CreatedAt        time.Time
	PostedBy         *int64
	PostedAt         *time.Time
	ReversedBy       *int64
	ReversedAt       *time.Time
	ReversalReason   string
}
