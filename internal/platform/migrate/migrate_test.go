package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreGooseFiles(t *testing.T) {
	entries, err := fs.ReadDir(migrations, Dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, entry := range entries {
		data, err := fs.ReadFile(migrations, Dir+"/"+entry.Name())
		require.NoError(t, err)
		body := string(data)
		require.Contains(t, body, "-- +goose Up", entry.Name())
		require.Contains(t, body, "-- +goose Down", entry.Name())
	}
}

func TestLedgerSchemaKeysBalances(t *testing.T) {
	data, err := fs.ReadFile(migrations, Dir+"/00002_inventory.sql")
	require.NoError(t, err)
	body := string(data)
	require.True(t, strings.Contains(body, "CREATE UNIQUE INDEX stock_balances_key"))
	require.Contains(t, body, "NUMERIC(18,4)")
}
