package specifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence for specifications.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockQuote(ctx context.Context, quoteID int64) (QuoteRef, error)
	FindByQuote(ctx context.Context, quoteID int64) (Specification, bool, error)
	NextSequence(ctx context.Context, scope, key string) (int64, error)
	Insert(ctx context.Context, spec Specification) (int64, error)
	Lock(ctx context.Context, id int64) (Specification, error)
	Update(ctx context.Context, spec Specification) error
	SetStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	Sign(ctx context.Context, id int64, signDate time.Time) (bool, error)
	InsertDeal(ctx context.Context, deal Deal) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const specColumns = `id, org_id, quote_id, number, sign_date, validity_period, payment_terms, advance_percent,
delivery_period_days, days_from_delivery_to_advance, signatory_contact_id, status, created_by, created_at, updated_at`

func scanSpec(row pgx.Row) (Specification, error) {
	var s Specification
	err := row.Scan(&s.ID, &s.OrgID, &s.QuoteID, &s.Number, &s.SignDate, &s.ValidityPeriod, &s.PaymentTerms,
		&s.AdvancePercent, &s.DeliveryPeriodDays, &s.DaysFromDeliveryToAdvance, &s.SignatoryContactID, &s.Status,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Specification{}, shared.ErrNotFound
	}
	s.Status = s.Status.Normalize()
	return s, err
}

func getQuote(ctx context.Context, q db.Querier, quoteID int64, lock string) (QuoteRef, error) {
	var ref QuoteRef
	err := q.QueryRow(ctx, `SELECT id, org_id, status, customer_id, idn, currency, total_amount
FROM quotes WHERE id = $1`+lock, quoteID).Scan(&ref.ID, &ref.OrgID, &ref.Status, &ref.CustomerID, &ref.IDN, &ref.Currency, &ref.TotalAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return QuoteRef{}, shared.NotFound("quote", quoteID)
	}
	return ref, err
}

// Get fetches a specification by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Specification, error) {
	s, err := scanSpec(r.pool.QueryRow(ctx, `SELECT `+specColumns+` FROM specifications WHERE id = $1`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Specification{}, shared.NotFound("specification", id)
	}
	return s, err
}

// List returns an organization's specifications, newest first.
func (r *Repository) List(ctx context.Context, orgID int64, filter ListFilter) ([]Specification, error) {
	query := `SELECT ` + specColumns + ` FROM specifications WHERE org_id = $1`
	args := []any{orgID}
	switch filter.Status {
	case "":
	case StatusDraft:
		query += ` AND status IN ('draft', 'pending_review')`
	default:
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Specification
	for rows.Next() {
		s, err := scanSpec(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetQuote loads the quote reference without locking.
func (r *Repository) GetQuote(ctx context.Context, quoteID int64) (QuoteRef, error) {
	return getQuote(ctx, r.pool, quoteID, "")
}

// GetDeal returns the deal opened for the specification.
func (r *Repository) GetDeal(ctx context.Context, specificationID int64) (Deal, error) {
	var d Deal
	err := r.pool.QueryRow(ctx, `SELECT id, specification_id, reference, created_at FROM deals WHERE specification_id = $1`,
		specificationID).Scan(&d.ID, &d.SpecificationID, &d.Reference, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Deal{}, &shared.NotFoundError{Entity: "deal for specification", ID: specificationID}
	}
	return d, err
}

// ListLines returns the quote items in position order.
func (r *Repository) ListLines(ctx context.Context, quoteID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT position, idn_sku, description, quantity FROM quote_items
WHERE quote_id = $1 AND is_available ORDER BY position`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.Position, &l.SKU, &l.Description, &l.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (t *txRepo) LockQuote(ctx context.Context, quoteID int64) (QuoteRef, error) {
	return getQuote(ctx, t.tx, quoteID, " FOR SHARE")
}

func (t *txRepo) FindByQuote(ctx context.Context, quoteID int64) (Specification, bool, error) {
	s, err := scanSpec(t.tx.QueryRow(ctx, `SELECT `+specColumns+` FROM specifications WHERE quote_id = $1`, quoteID))
	if errors.Is(err, shared.ErrNotFound) {
		return Specification{}, false, nil
	}
	if err != nil {
		return Specification{}, false, err
	}
	return s, true, nil
}

func (t *txRepo) NextSequence(ctx context.Context, scope, key string) (int64, error) {
	return db.NextSequence(ctx, t.tx, scope, key)
}

func (t *txRepo) Insert(ctx context.Context, s Specification) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO specifications (org_id, quote_id, number, validity_period, payment_terms,
advance_percent, delivery_period_days, days_from_delivery_to_advance, signatory_contact_id, status, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		s.OrgID, s.QuoteID, s.Number, s.ValidityPeriod, s.PaymentTerms, s.AdvancePercent, s.DeliveryPeriodDays,
		s.DaysFromDeliveryToAdvance, s.SignatoryContactID, s.Status.Normalize(), s.CreatedBy).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

func (t *txRepo) Lock(ctx context.Context, id int64) (Specification, error) {
	s, err := scanSpec(t.tx.QueryRow(ctx, `SELECT `+specColumns+` FROM specifications WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Specification{}, shared.NotFound("specification", id)
	}
	return s, err
}

func (t *txRepo) Update(ctx context.Context, s Specification) error {
	_, err := t.tx.Exec(ctx, `UPDATE specifications SET validity_period = $2, payment_terms = $3, advance_percent = $4,
delivery_period_days = $5, days_from_delivery_to_advance = $6, signatory_contact_id = $7, status = $8, updated_at = NOW()
WHERE id = $1`, s.ID, s.ValidityPeriod, s.PaymentTerms, s.AdvancePercent, s.DeliveryPeriodDays,
		s.DaysFromDeliveryToAdvance, s.SignatoryContactID, s.Status.Normalize())
	return db.MapError(err)
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE specifications SET status = $3, updated_at = NOW()
WHERE id = $1 AND status = ANY($2)`, id, from.Stored(), to.Normalize())
	if err != nil {
		return false, db.MapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) Sign(ctx context.Context, id int64, signDate time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE specifications SET status = 'signed', sign_date = $2, updated_at = NOW()
WHERE id = $1 AND status = 'approved'`, id, signDate)
	if err != nil {
		return false, db.MapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) InsertDeal(ctx context.Context, d Deal) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO deals (specification_id, reference) VALUES ($1, $2) RETURNING id`,
		d.SpecificationID, d.Reference).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}
