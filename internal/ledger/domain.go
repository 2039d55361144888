package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

// EntryStatus enumerates journal entry lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "DRAFT"
	EntryStatusPosted EntryStatus = "POSTED"
	EntryStatusVoided EntryStatus = "VOIDED"
)

// EntryType classifies how an entry originated.
type EntryType string

const (
	EntryTypeManual    EntryType = "MANUAL"
	EntryTypeSystem    EntryType = "SYSTEM"
	EntryTypeRecurring EntryType = "RECURRING"
	EntryTypeAdjusting EntryType = "ADJUSTING"
	EntryTypeClosing   EntryType = "CLOSING"
)

// Direction marks a line as debit or credit.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// JournalEntry is the ledger aggregate root. Amounts are integer minor
// currency units throughout; no floating point touches ledger arithmetic.
type JournalEntry struct {
	ID                int64
	EntryNumber       string
	Seq               int
	FiscalYear        int
	FiscalMonth       int
	EntryDate         time.Time
	Status            EntryStatus
	Type              EntryType
	Description       string
	SourceService     string
	SourceReferenceID uuid.UUID
	CreatedBy         int64
	CreatedAt         time.Time
	PostedBy          *int64
	PostedAt          *time.Time
	VoidedBy          *int64
	VoidedAt          *time.Time
	VoidReason        string
	Lines             []JournalLine
}

// JournalLine stores a single debit or credit amount for a detail account.
type JournalLine struct {
	ID         int64
	EntryID    int64
	Seq        int
	AccountID  int64
	Direction  Direction
	Amount     int64
	CostCenter *string
	Warehouse  *string
	Channel    *string
	CustomerID *int64
	VendorID   *int64
	ProductID  *int64
}

// EntryNumber formats the human-readable entry number, unique per fiscal
// period and monotonically increasing within it.
func EntryNumber(year, month, seq int) string {
	return fmt.Sprintf("JE-%04d%02d-%04d", year, month, seq)
}

// LineInput describes one journal line in a draft.
type LineInput struct {
	AccountID  int64
	Direction  Direction
	Amount     int64
	CostCenter *string
	Warehouse  *string
	Channel    *string
	CustomerID *int64
	VendorID   *int64
	ProductID  *int64
}

// DraftInput groups fields required to create a journal entry.
type DraftInput struct {
	FiscalYear        int
	FiscalMonth       int
	EntryDate         time.Time
	Type              EntryType
	Description       string
	SourceService     string
	SourceReferenceID uuid.UUID
	CreatedBy         int64
	Lines             []LineInput
}

// Validate enforces the balance invariant and structural rules before any
// row is written.
func (in DraftInput) Validate() error {
	if in.FiscalYear < 2000 || in.FiscalYear > 9999 {
		return shared.Validationf("ledger: fiscal year %d out of range", in.FiscalYear)
	}
	if in.FiscalMonth < 1 || in.FiscalMonth > 12 {
		return shared.Validationf("ledger: fiscal month %d out of range", in.FiscalMonth)
	}
	if in.EntryDate.IsZero() {
		return shared.Validation("ledger: entry date required")
	}
	if len(in.Lines) < 2 {
		return shared.Validation("ledger: journal entry requires at least two lines")
	}
	var debits, credits int64
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return shared.Validationf("ledger: line %d missing account", idx+1)
		}
		if line.Amount <= 0 {
			return shared.Validationf("ledger: line %d amount must be positive", idx+1)
		}
		switch line.Direction {
		case DirectionDebit:
			debits += line.Amount
		case DirectionCredit:
			credits += line.Amount
		default:
			return shared.Validationf("ledger: line %d has unknown direction %q", idx+1, line.Direction)
		}
	}
	if debits != credits {
		return shared.Validationf("ledger: entry is out of balance by %d (debits %d, credits %d)", debits-credits, debits, credits)
	}
	return nil
}

// AccountIDs returns the distinct account ids referenced by the draft.
func (in DraftInput) AccountIDs() []int64 {
	seen := make(map[int64]bool, len(in.Lines))
	ids := make([]int64, 0, len(in.Lines))
	for _, line := range in.Lines {
		if !seen[line.AccountID] {
			seen[line.AccountID] = true
			ids = append(ids, line.AccountID)
		}
	}
	return ids
}
