package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuditLogOccurredAtDefaultsZeroTime(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	require.Equal(t, now, AuditLog{}.occurredAt(now), "zero timestamps take the caller's clock")

	at := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	require.Equal(t, at, AuditLog{At: at}.occurredAt(now))
}
