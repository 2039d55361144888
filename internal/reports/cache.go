package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores rendered trial balances for closed periods. Closed-period
// reports only change on reopen, so the period service invalidates keys when
// the state machine moves.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs the report cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func trialBalanceKey(fiscalYear, fiscalMonth int) string {
	return fmt.Sprintf("reports:tb:%04d-%02d", fiscalYear, fiscalMonth)
}

// GetTrialBalance returns a cached report, if present.
func (c *Cache) GetTrialBalance(ctx context.Context, fiscalYear, fiscalMonth int) (TrialBalance, bool) {
	if c == nil || c.client == nil {
		return TrialBalance{}, false
	}
	raw, err := c.client.Get(ctx, trialBalanceKey(fiscalYear, fiscalMonth)).Bytes()
	if err != nil {
		return TrialBalance{}, false
	}
	var tb TrialBalance
	if err := json.Unmarshal(raw, &tb); err != nil {
		return TrialBalance{}, false
	}
	return tb, true
}

// SetTrialBalance stores a report with the configured TTL.
func (c *Cache) SetTrialBalance(ctx context.Context, tb TrialBalance) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(tb)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, trialBalanceKey(tb.FiscalYear, tb.FiscalMonth), raw, c.ttl).Err()
}

// InvalidateTrialBalance drops the cached report for a period.
func (c *Cache) InvalidateTrialBalance(ctx context.Context, fiscalYear, fiscalMonth int) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, trialBalanceKey(fiscalYear, fiscalMonth)).Err()
}
