// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/multiplier-synth/multiplier-api/internal/database"
)

// Open returns a migrated SQLite database in a temp directory. It is
// closed when the test ends.
func Open(t testing.TB) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "multiplier.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	return db
}
