package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprecord/internal/testutil"
	"github.com/leapstack-labs/leaprecord/pkg/dialect"
	"github.com/leapstack-labs/leaprecord/pkg/storage"
)

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	logger := testutil.NewTestLogger(t)

	require.NoError(t, Migrate(ctx, db, logger))
	version, err := MigrationVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// already current
	require.NoError(t, Migrate(ctx, db, nil))

	require.NoError(t, MigrateDown(ctx, db, 1, logger))
	version, err = MigrationVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	_, err = db.ExecContext(ctx, "SELECT 1 FROM reviews")
	assert.Error(t, err)
	_, err = db.ExecContext(ctx, "SELECT 1 FROM books")
	assert.NoError(t, err)
}

func TestMigrate_UnsupportedDialect(t *testing.T) {
	db := storage.New(nil, dialect.DuckDB, nil)
	err := Migrate(context.Background(), db, nil)
	assert.EqualError(t, err, `no catalog migrations for dialect "duckdb"`)

	assert.EqualError(t, Migrate(context.Background(), nil, nil), "database not opened")
}
