package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

// Sentinel errors surfaced by the accounts service.
var (
	ErrAccountNotFound  = shared.NotFound("accounts: account not found")
	ErrCodeTaken        = shared.Conflict("accounts: account code already in use")
	ErrSystemAccount    = shared.Conflict("accounts: system accounts cannot be deleted or recoded")
	ErrAccountHasLines  = shared.Conflict("accounts: account has journal postings and cannot be deleted")
	ErrAccountHasChild  = shared.Conflict("accounts: account has child accounts and cannot be deleted")
	ErrParentNotFound   = shared.Validation("accounts: parent account does not exist")
	ErrNotDetailAccount = shared.Validation("accounts: account does not accept postings")
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	DetailAccounts(ctx context.Context, ids []int64) (map[int64]Account, error)
}

// AuditPort records account events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates chart of accounts maintenance.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the accounts service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and inserts a new account.
func (s *Service) Create(ctx context.Context, in CreateInput, actorID int64) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.ParentID != nil {
			if _, err := tx.GetForUpdate(ctx, *in.ParentID); err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return ErrParentNotFound
				}
				return err
			}
		}
		var err error
		account, err = tx.Insert(ctx, in)
		if err != nil {
			if errors.Is(err, ErrCodeTaken) {
				return shared.Conflictf("accounts: code %s already in use", in.Code)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, actorID, "account.create", account.ID, map[string]any{"code": account.Code})
	return account, nil
}

// Update applies mutable fields to an account. System account codes are
// immutable.
func (s *Service) Update(ctx context.Context, in UpdateInput, actorID int64) (Account, error) {
	if in.ID == 0 {
		return Account{}, shared.Validation("accounts: account id required")
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, in.ID)
		if err != nil {
			return err
		}
		if current.IsSystem && in.Code != "" && in.Code != current.Code {
			return ErrSystemAccount
		}
		if in.ParentID != nil {
			if *in.ParentID == current.ID {
				return shared.Validation("accounts: account cannot be its own parent")
			}
			if _, err := tx.GetForUpdate(ctx, *in.ParentID); err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return ErrParentNotFound
				}
				return err
			}
		}
		account, err = tx.Update(ctx, in)
		if err != nil {
			if errors.Is(err, ErrCodeTaken) {
				return shared.Conflictf("accounts: code %s already in use", in.Code)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, actorID, "account.update", account.ID, map[string]any{"code": account.Code})
	return account, nil
}

// Delete removes an account that has no postings, no children, and is not a
// system account.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	if id == 0 {
		return shared.Validation("accounts: account id required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if account.IsSystem {
			return ErrSystemAccount
		}
		hasLines, err := tx.HasPostings(ctx, id)
		if err != nil {
			return err
		}
		if hasLines {
			return ErrAccountHasLines
		}
		hasChildren, err := tx.HasChildren(ctx, id)
		if err != nil {
			return err
		}
		if hasChildren {
			return ErrAccountHasChild
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "account.delete", id, nil)
	return nil
}

// Get returns a single account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// List returns all accounts ordered by code.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// EnsureDetailAccounts verifies every id references an existing detail
// account. The ledger calls this before accepting an entry.
func (s *Service) EnsureDetailAccounts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.repo.DetailAccounts(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		account, ok := found[id]
		if !ok {
			return shared.Validationf("accounts: account %d does not exist", id)
		}
		if !account.IsDetail {
			return shared.Validationf("accounts: account %s is not a detail account", account.Code)
		}
	}
	return nil
}

// NormalBalances returns the normal balance side per account id.
func (s *Service) NormalBalances(ctx context.Context) (map[int64]NormalBalance, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]NormalBalance, len(accounts))
	for _, a := range accounts {
		out[a.ID] = a.NormalBalance
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "account",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}
