package recon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MatchStatus enumerates bank transaction matching states.
type MatchStatus string

const (
	MatchStatusUnmatched MatchStatus = "UNMATCHED"
	MatchStatusMatched   MatchStatus = "MATCHED"
)

// Status enumerates the reconciliation state machine.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusApproved   Status = "APPROVED"
)

// ItemKind enumerates reconciling item categories.
type ItemKind string

const (
	KindOutstandingCheck ItemKind = "OUTSTANDING_CHECK"
	KindDepositInTransit ItemKind = "DEPOSIT_IN_TRANSIT"
	KindBankFee          ItemKind = "BANK_FEE"
	KindInterestEarned   ItemKind = "INTEREST_EARNED"
	KindNSFCheck         ItemKind = "NSF_CHECK"
	KindBookError        ItemKind = "BOOK_ERROR"
)

// ItemSide says which balance an item adjusts.
type ItemSide string

const (
	SideBank ItemSide = "BANK"
	SideBook ItemSide = "BOOK"
)

// ItemStatus enumerates per-item states.
type ItemStatus string

const (
	ItemStatusOpen    ItemStatus = "OPEN"
	ItemStatusCleared ItemStatus = "CLEARED"
)

// BankAccount links a bank-facing account to its GL cash account.
type BankAccount struct {
	ID                 int64
	Code               string
	Name               string
	GLAccountID        int64
	LastReconciledDate *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// BankTransaction is an immutable statement row. Amount is signed in minor
// units: deposits positive, withdrawals negative.
type BankTransaction struct {
	ID            int64
	BankAccountID int64
	TxnDate       time.Time
	Amount        int64
	Description   string
	Fingerprint   string
	MatchStatus   MatchStatus
	MatchedLineID *int64
	MatchedBy     *int64
	MatchedAt     *time.Time
	ImportedAt    time.Time
}

// Fingerprint hashes the identity of a statement row. Re-importing the same
// row produces the same value and is rejected by the storage layer.
func Fingerprint(bankAccountID int64, txnDate time.Time, amount int64, description string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%d|%s", bankAccountID, txnDate.Format("2006-01-02"), amount, description)))
	return hex.EncodeToString(sum[:])
}

// ReconcilingItem explains part of the bank/book difference. Amount is
// positive; Effect applies the sign its kind implies.
type ReconcilingItem struct {
	ID               int64
	ReconciliationID int64
	Kind             ItemKind
	Amount           int64
	Description      string
	Status           ItemStatus
	CreatedBy        int64
	CreatedAt        time.Time
}

// Side reports which balance the item's kind adjusts.
func (k ItemKind) Side() ItemSide {
	switch k {
	case KindOutstandingCheck, KindDepositInTransit:
		return SideBank
	default:
		return SideBook
	}
}

// Effect is the signed contribution of an open item to its side's adjusted
// balance.
func (i ReconcilingItem) Effect() int64 {
	switch i.Kind {
	case KindDepositInTransit, KindInterestEarned:
		return i.Amount
	case KindOutstandingCheck, KindBankFee, KindNSFCheck:
		return -i.Amount
	default:
		// Book errors carry their own sign.
		return i.Amount
	}
}

// BankReconciliation reconciles one bank account for one fiscal period.
type BankReconciliation struct {
	ID                     int64
	BankAccountID          int64
	FiscalYear             int
	FiscalMonth            int
	Status                 Status
	StatementEndingBalance int64
	BookEndingBalance      int64
	AdjustedBankBalance    int64
	AdjustedBookBalance    int64
	IsBalanced             bool
	CreatedBy              int64
	CreatedAt              time.Time
	StartedBy              *int64
	StartedAt              *time.Time
	CompletedBy            *int64
	CompletedAt            *time.Time
	ApprovedBy             *int64
	ApprovedAt             *time.Time
}

// AdjustedBalances folds open reconciling items into both sides. The two
// results agree when every difference between statement and books has been
// explained.
func AdjustedBalances(statementEnding, bookEnding int64, items []ReconcilingItem) (bank, book int64) {
	bank, book = statementEnding, bookEnding
	for _, item := range items {
		if item.Status != ItemStatusOpen {
			continue
		}
		if item.Kind.Side() == SideBank {
			bank += item.Effect()
		} else {
			book += item.Effect()
		}
	}
	return bank, book
}
