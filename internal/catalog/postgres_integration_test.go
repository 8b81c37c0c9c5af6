//go:build integration

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/leapstack-labs/leaprecord/internal/testutil"
	"github.com/leapstack-labs/leaprecord/pkg/core"
	"github.com/leapstack-labs/leaprecord/pkg/storage"
)

// startPostgres runs a throwaway PostgreSQL container and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("leaprecord_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestCatalog_Postgres(t *testing.T) {
	dsn := startPostgres(t)

	// both drivers share one container; each run starts from an empty schema
	for _, driver := range []string{"pgx", "postgres"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			logger := testutil.NewTestLogger(t)

			db, err := storage.Open(ctx, storage.Config{Driver: driver, DSN: dsn}, logger)
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			assert.Equal(t, "postgres", db.Dialect().Name)

			require.NoError(t, Migrate(ctx, db, logger))
			t.Cleanup(func() { require.NoError(t, MigrateDown(ctx, db, 0, logger)) })

			c := New(db, logger)
			melville, _, moby, _ := addShelf(t, c)

			got, ok, err := c.Book(ctx, moby.ID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "Herman Melville", got.Author)
			assert.Equal(t, []string{"classic", "sea"}, got.Tags)
			assert.True(t, decimal.RequireFromString("12.50").Equal(got.Price))

			authors, err := c.Authors(ctx, ListOptions{WithBooks: true, Offset: 1})
			require.NoError(t, err)
			require.Len(t, authors, 1)
			assert.Equal(t, melville.ID, authors[0].ID)
			assert.Len(t, authors[0].Books, 2)

			_, err = c.DeleteAuthor(ctx, melville.ID, false)
			var cv *core.ConstraintViolationError
			require.ErrorAs(t, err, &cv)
			assert.Equal(t, core.ConstraintForeignKey, cv.Kind)

			removed, err := c.DeleteAuthor(ctx, melville.ID, true)
			require.NoError(t, err)
			assert.True(t, removed)
			assert.Zero(t, count[Book](t, db))

			sum, err := c.Import(ctx, parse(t, shelfDocument))
			require.NoError(t, err)
			assert.Equal(t, 3, sum.Books)
		})
	}
}
