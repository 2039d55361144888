package accounts

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Guards against the SQL column list drifting from the migration; the
// in-memory fakes never execute these queries.
func TestAccountColumnsExistInSchema(t *testing.T) {
	cols := migratedColumns(t, "accounts")
	for _, col := range strings.Split(accountColumns, ", ") {
		require.Contains(t, cols, col, "accounts queries reference column %q the migration does not create", col)
	}
}

func migratedColumns(t *testing.T, table string) map[string]bool {
	t.Helper()
	ddl, err := os.ReadFile("../../migrations/0001_init.sql")
	require.NoError(t, err)
	_, rest, found := strings.Cut(string(ddl), "CREATE TABLE "+table+" (")
	require.True(t, found, "table %s missing from migration", table)
	body, _, found := strings.Cut(rest, "\n);")
	require.True(t, found, "table %s body not terminated", table)
	cols := make(map[string]bool)
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "UNIQUE", "PRIMARY", "CONSTRAINT", "CHECK", "FOREIGN":
			continue
		}
		cols[fields[0]] = true
	}
	return cols
}
