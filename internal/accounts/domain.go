package accounts

import (
	"strings"
	"time"

	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalBalance is the side on which an account type naturally accumulates.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

// DefaultNormalBalance returns the conventional balance side for a type.
func DefaultNormalBalance(t AccountType) NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}

// Account models a chart of accounts node. Only detail accounts accept
// journal postings; system accounts are protected from deletion and code
// changes because generated entries reference them.
type Account struct {
	ID            int64
	Code          string
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
	ParentID      *int64
	IsDetail      bool
	IsSystem      bool
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateInput groups fields required to create an account.
type CreateInput struct {
	Code          string
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
	ParentID      *int64
	IsDetail      bool
	IsSystem      bool
}

// UpdateInput carries mutable account fields. Code changes are rejected for
// system accounts at the service layer.
type UpdateInput struct {
	ID       int64
	Code     string
	Name     string
	ParentID *int64
	IsActive bool
}

func validType(t AccountType) bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	default:
		return false
	}
}

// Validate ensures create input meets minimum criteria.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return shared.Validation("accounts: code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return shared.Validation("accounts: name required")
	}
	if !validType(in.Type) {
		return shared.Validationf("accounts: unknown account type %q", in.Type)
	}
	switch in.NormalBalance {
	case NormalBalanceDebit, NormalBalanceCredit:
	case "":
		return shared.Validation("accounts: normal balance required")
	default:
		return shared.Validationf("accounts: unknown normal balance %q", in.NormalBalance)
	}
	return nil
}
