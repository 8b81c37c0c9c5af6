package testutil

import (
	"context"
	"testing"

	"github.com/leapstack-labs/leaprecord/pkg/storage"
)

// NewTestDB opens an in-memory SQLite database with foreign keys enforced,
// runs the given schema statements and closes the database when the test
// ends. Statements are logged through NewTestLogger.
func NewTestDB(t testing.TB, schema ...string) *storage.DB {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, storage.Config{
		Driver:      "sqlite",
		DSN:         ":memory:",
		ForeignKeys: true,
	}, NewTestLogger(t))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("failed to apply schema statement %q: %v", stmt, err)
		}
	}
	return db
}
