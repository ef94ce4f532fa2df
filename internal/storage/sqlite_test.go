package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var tables []string
	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables = append(tables, name)
	}
	require.NoError(t, rows.Err())
	assert.Subset(t, tables, []string{"job_returns", "minion_events"})

	assert.NoError(t, BootstrapSQLite(ctx, db), "bootstrap is idempotent")
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	t.Parallel()
	_, err := OpenSQLite(context.Background(), "")
	assert.EqualError(t, err, "sqlite path is empty")
}
