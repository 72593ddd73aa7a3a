package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
)

// Table lists the columns the rate store depends on.
var Table = db.TableSpec{Table: "exchange_rates", Columns: []string{"rate_date", "currency", "rate", "source", "created_at"}}

// Repository persists exchange rates in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RateOnOrBefore returns the most recent rate for currency dated on or before date.
func (r *Repository) RateOnOrBefore(ctx context.Context, currency string, date time.Time) (Rate, bool, error) {
	var rate Rate
	err := r.pool.QueryRow(ctx, `SELECT rate_date, currency, rate, source FROM exchange_rates
WHERE currency = $1 AND rate_date <= $2
ORDER BY rate_date DESC LIMIT 1`, currency, DateOnly(date)).Scan(&rate.Date, &rate.Currency, &rate.Rate, &rate.Source)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rate{}, false, nil
		}
		return Rate{}, false, fmt.Errorf("fx: rate lookup: %w", err)
	}
	return rate, true, nil
}

// AppendRates inserts rows that do not exist yet. Existing (date, currency)
// rows are never overwritten. It returns the number of inserted rows.
func (r *Repository) AppendRates(ctx context.Context, rates []Rate) (int, error) {
	if len(rates) == 0 {
		return 0, nil
	}
	inserted := 0
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rate := range rates {
			batch.Queue(`INSERT INTO exchange_rates (rate_date, currency, rate, source)
VALUES ($1, $2, $3, $4) ON CONFLICT (rate_date, currency) DO NOTHING`, DateOnly(rate.Date), rate.Currency, rate.Rate, rate.Source)
		}
		results := tx.SendBatch(ctx, batch)
		for range rates {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return err
			}
			inserted += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("fx: append rates: %w", err)
	}
	return inserted, nil
}

// ListRates returns rows in [from, to] ordered by date then currency.
func (r *Repository) ListRates(ctx context.Context, from, to time.Time) ([]Rate, error) {
	rows, err := r.pool.Query(ctx, `SELECT rate_date, currency, rate, source FROM exchange_rates
WHERE rate_date BETWEEN $1 AND $2 ORDER BY rate_date, currency`, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rate
	for rows.Next() {
		var rate Rate
		if err := rows.Scan(&rate.Date, &rate.Currency, &rate.Rate, &rate.Source); err != nil {
			return nil, err
		}
		out = append(out, rate)
	}
	return out, rows.Err()
}
