package erps

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
)

// Repository reads the registry inputs straight from the live tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SignedSpecifications returns the organization's signed specifications with
// their quote totals, oldest signature first.
func (r *Repository) SignedSpecifications(ctx context.Context, orgID int64) ([]SpecRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.number, q.idn, COALESCE(c.name, ''), s.sign_date, s.advance_percent,
s.delivery_period_days, s.days_from_delivery_to_advance, q.currency, q.total_amount, q.total_amount_usd
FROM specifications s
JOIN quotes q ON q.id = s.quote_id
LEFT JOIN customers c ON c.id = q.customer_id
WHERE s.org_id = $1 AND s.status = 'signed' AND s.sign_date IS NOT NULL
ORDER BY s.sign_date, s.id`, orgID)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	var out []SpecRow
	for rows.Next() {
		var row SpecRow
		if err := rows.Scan(&row.SpecificationID, &row.Number, &row.QuoteIDN, &row.CustomerName, &row.SignDate,
			&row.AdvancePercent, &row.DeliveryPeriodDays, &row.DaysFromDeliveryToAdvance, &row.QuoteCurrency,
			&row.QuoteTotal, &row.TotalUSD); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PaymentFacts returns every booked payment of the organization's signed specifications.
func (r *Repository) PaymentFacts(ctx context.Context, orgID int64) ([]PaymentFact, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.specification_id, p.category, p.amount_usd
FROM specification_payments p JOIN specifications s ON s.id = p.specification_id
WHERE s.org_id = $1 AND s.status = 'signed'`, orgID)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	var out []PaymentFact
	for rows.Next() {
		var f PaymentFact
		if err := rows.Scan(&f.SpecificationID, &f.Category, &f.AmountUSD); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// PlannedFacts returns the payment schedule of the organization's signed specifications.
func (r *Repository) PlannedFacts(ctx context.Context, orgID int64) ([]PlannedFact, error) {
	rows, err := r.pool.Query(ctx, `SELECT ps.specification_id, ps.expected_date, ps.actual_date
FROM payment_schedule ps JOIN specifications s ON s.id = ps.specification_id
WHERE s.org_id = $1 AND s.status = 'signed'`, orgID)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	var out []PlannedFact
	for rows.Next() {
		var f PlannedFact
		if err := rows.Scan(&f.SpecificationID, &f.ExpectedDate, &f.ActualDate); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
