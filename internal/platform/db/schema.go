package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// TableSpec declares the columns an entity reads and writes.
type TableSpec struct {
	Table   string
	Columns []string
}

// SchemaMismatchError lists every column an entity expects but storage lacks.
type SchemaMismatchError struct {
	Missing map[string][]string
}

func (e *SchemaMismatchError) Error() string {
	tables := make([]string, 0, len(e.Missing))
	for table := range e.Missing {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	parts := make([]string, 0, len(tables))
	for _, table := range tables {
		parts = append(parts, fmt.Sprintf("%s(%s)", table, strings.Join(e.Missing[table], ", ")))
	}
	return "platform/db: schema drift, missing columns: " + strings.Join(parts, "; ")
}

// VerifySchema compares the declared specs against information_schema and
// returns a *SchemaMismatchError when any table or column is absent. Callers
// abort startup on error.
func VerifySchema(ctx context.Context, q Querier, specs []TableSpec) error {
	rows, err := q.Query(ctx, `SELECT table_name, column_name FROM information_schema.columns WHERE table_schema = current_schema()`)
	if err != nil {
		return fmt.Errorf("platform/db: read information_schema: %w", err)
	}
	defer rows.Close()

	present := make(map[string]map[string]struct{})
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return err
		}
		if present[table] == nil {
			present[table] = make(map[string]struct{})
		}
		present[table][column] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return CompareSchema(present, specs)
}

// CompareSchema is the pure half of VerifySchema.
func CompareSchema(present map[string]map[string]struct{}, specs []TableSpec) error {
	missing := make(map[string][]string)
	for _, spec := range specs {
		cols := present[spec.Table]
		for _, col := range spec.Columns {
			if _, ok := cols[col]; !ok {
				missing[spec.Table] = append(missing[spec.Table], col)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &SchemaMismatchError{Missing: missing}
}

// PlatformTables covers the shared bookkeeping tables.
var PlatformTables = []TableSpec{
	{Table: "sequence_counters", Columns: []string{"scope", "key", "last_value"}},
	{Table: "audit_logs", Columns: []string{"actor_id", "org_id", "action", "entity", "entity_id", "meta", "occurred_at"}},
	{Table: "idempotency_keys", Columns: []string{"key", "module", "created_at"}},
}
