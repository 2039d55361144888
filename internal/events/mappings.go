package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

// ErrMappingNotFound indicates a missing account mapping row. Missing
// mappings are configuration errors, not retryable failures.
var ErrMappingNotFound = shared.NotFound("events: account mapping not found")

// Mapping keys resolved against the SALES and INVENTORY modules.
const (
	KeyAccountsReceivable  = "ACCOUNTS_RECEIVABLE"
	KeySalesRevenue        = "SALES_REVENUE"
	KeySalesReturns        = "SALES_RETURNS"
	KeyInventory           = "INVENTORY"
	KeyInventoryAdjustment = "INVENTORY_ADJUSTMENT"
	KeyCOGS                = "COGS"
)

// AccountMapping links an integration key to a ledger account.
type AccountMapping struct {
	Module    string
	Key       string
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MappingRepository resolves integration keys to account ids.
type MappingRepository interface {
	Get(ctx context.Context, module, key string) (AccountMapping, error)
}

type mappingRepository struct {
	pool *pgxpool.Pool
}

// NewMappingRepository constructs the pgx-backed mapping repository.
func NewMappingRepository(pool *pgxpool.Pool) MappingRepository {
	return &mappingRepository{pool: pool}
}

// Get resolves an account mapping for the specified module and key.
func (r *mappingRepository) Get(ctx context.Context, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, shared.Validation("events: module and key required")
	}
	var mapping AccountMapping
	err := r.pool.QueryRow(ctx, `SELECT module, key, account_id, created_at, updated_at
FROM account_mappings WHERE module=$1 AND key=$2`, strings.ToUpper(module), key).
		Scan(&mapping.Module, &mapping.Key, &mapping.AccountID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}
