package duckdb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/marcboeker/go-duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprecord/pkg/core"
	"github.com/leapstack-labs/leaprecord/pkg/dialect"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind core.ConstraintKind
		wantNil  bool
	}{
		{
			name:     "foreign key",
			err:      &duckdb.Error{Type: duckdb.ErrorTypeConstraint, Msg: "Constraint Error: Violates foreign key constraint because key does not exist"},
			wantKind: core.ConstraintForeignKey,
		},
		{
			name:     "duplicate key",
			err:      fmt.Errorf("insert: %w", &duckdb.Error{Type: duckdb.ErrorTypeConstraint, Msg: `Constraint Error: Duplicate key "id: 1" violates primary key constraint`}),
			wantKind: core.ConstraintPrimaryKey,
		},
		{
			name:    "not a constraint error",
			err:     &duckdb.Error{Type: duckdb.ErrorTypeCatalog, Msg: "Catalog Error: Table with name nope does not exist!"},
			wantNil: true,
		},
		{
			name:    "foreign error",
			err:     errors.New("boom"),
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.ErrorIs(t, got, core.ErrConstraint)
		})
	}
}

func TestOpen_InMemory(t *testing.T) {
	db, err := Open(context.Background(), "", nil)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.Equal(t, dialect.DuckDB, db.Dialect())

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE authors (id INTEGER PRIMARY KEY, name VARCHAR NOT NULL)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO authors VALUES (1, 'Herman Melville')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO authors VALUES (1, 'Nathaniel Hawthorne')`)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConstraint)
}
