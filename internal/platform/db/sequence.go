package db

import (
	"context"
	"fmt"
)

// NextSequence atomically increments the counter row for (scope, key) and
// returns the new value, starting at 1. It must run inside the caller's
// transaction so the number is released on rollback. Concurrent callers on the
// same key serialize on the counter row.
func NextSequence(ctx context.Context, q Querier, scope, key string) (int64, error) {
	var value int64
	err := q.QueryRow(ctx, `INSERT INTO sequence_counters (scope, key, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (scope, key) DO UPDATE SET last_value = sequence_counters.last_value + 1
RETURNING last_value`, scope, key).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("platform/db: next sequence %s/%s: %w", scope, key, MapError(err))
	}
	return value, nil
}
