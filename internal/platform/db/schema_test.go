package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/dealdesk/internal/shared"
)

func TestCompareSchemaReportsMissingColumns(t *testing.T) {
	present := map[string]map[string]struct{}{
		"invoices": {"id": {}, "quote_id": {}, "status": {}},
	}
	specs := []TableSpec{
		{Table: "invoices", Columns: []string{"id", "quote_id", "status", "total_weight_kg"}},
		{Table: "logistics_stages", Columns: []string{"id"}},
	}
	err := CompareSchema(present, specs)
	var mismatch *SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, []string{"total_weight_kg"}, mismatch.Missing["invoices"])
	require.Equal(t, []string{"id"}, mismatch.Missing["logistics_stages"])
	require.Contains(t, err.Error(), "invoices(total_weight_kg)")
}

func TestCompareSchemaAcceptsSuperset(t *testing.T) {
	present := map[string]map[string]struct{}{
		"deals": {"id": {}, "specification_id": {}, "reference": {}, "created_at": {}},
	}
	require.NoError(t, CompareSchema(present, []TableSpec{{Table: "deals", Columns: []string{"id", "reference"}}}))
}

func TestMapError(t *testing.T) {
	err := MapError(&pgconn.PgError{Code: "23505", TableName: "invoices", ConstraintName: "invoices_grouping_key"})
	require.ErrorIs(t, err, shared.ErrConflict)

	err = MapError(&pgconn.PgError{Code: "40001"})
	require.ErrorIs(t, err, shared.ErrConflict)

	err = MapError(&pgconn.PgError{Code: "23503", ConstraintName: "specification_payments_specification_id_fkey"})
	require.ErrorIs(t, err, shared.ErrReferential)

	plain := errors.New("boom")
	require.Equal(t, plain, MapError(plain))
	require.NoError(t, MapError(nil))
}

func TestMigrationURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/db?sslmode=disable", migrationURL("postgres://u:p@localhost:5432/db?sslmode=disable"))
	require.Equal(t, "pgx5://h/db", migrationURL("postgresql://h/db"))
}
