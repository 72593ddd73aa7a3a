package payments

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockSpecification(ctx context.Context, id int64) (SpecRef, error)
	NextNumber(ctx context.Context, scope, key string) (int, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	InsertSchedule(ctx context.Context, e ScheduleEntry) (int64, error)
	LockSchedule(ctx context.Context, id int64) (ScheduleEntry, error)
	SetActualDate(ctx context.Context, id int64, date time.Time) error
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

const paymentColumns = `id, specification_id, category, payment_number, amount, currency, amount_usd, paid_on,
description, created_by, created_at`

const scheduleColumns = `id, specification_id, payment_number, basis, days, expected_date, actual_date, amount,
currency, purpose, comment, created_by, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.SpecificationID, &p.Category, &p.PaymentNumber, &p.Amount, &p.Currency, &p.AmountUSD,
		&p.PaidOn, &p.Description, &p.CreatedBy, &p.CreatedAt)
	return p, err
}

func scanSchedule(row pgx.Row) (ScheduleEntry, error) {
	var e ScheduleEntry
	err := row.Scan(&e.ID, &e.SpecificationID, &e.PaymentNumber, &e.Basis, &e.Days, &e.ExpectedDate, &e.ActualDate,
		&e.Amount, &e.Currency, &e.Purpose, &e.Comment, &e.CreatedBy, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ScheduleEntry{}, shared.ErrNotFound
	}
	return e, err
}

// GetSpecification resolves the owning specification.
func (r *Repository) GetSpecification(ctx context.Context, id int64) (SpecRef, error) {
	return getSpecification(ctx, r.pool, id, "")
}

func getSpecification(ctx context.Context, q db.Querier, id int64, lock string) (SpecRef, error) {
	var ref SpecRef
	err := q.QueryRow(ctx, `SELECT id, org_id FROM specifications WHERE id = $1`+lock, id).Scan(&ref.ID, &ref.OrgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return SpecRef{}, &shared.ReferentialError{Entity: "specification", ID: id}
	}
	return ref, err
}

// ListPayments returns booked payments of a specification, optionally of one category.
func (r *Repository) ListPayments(ctx context.Context, specificationID int64, category Category) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM specification_payments
WHERE specification_id = $1 AND ($2 = '' OR category = $2) ORDER BY category, payment_number`, specificationID, string(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListSchedule returns planned payments in number order.
func (r *Repository) ListSchedule(ctx context.Context, specificationID int64) ([]ScheduleEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+scheduleColumns+` FROM payment_schedule
WHERE specification_id = $1 ORDER BY payment_number`, specificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduleEntry
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetSchedule fetches one planned payment.
func (r *Repository) GetSchedule(ctx context.Context, id int64) (ScheduleEntry, error) {
	e, err := scanSchedule(r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM payment_schedule WHERE id = $1`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return ScheduleEntry{}, shared.NotFound("payment schedule entry", id)
	}
	return e, err
}

func (t *txRepo) LockSpecification(ctx context.Context, id int64) (SpecRef, error) {
	return getSpecification(ctx, t.tx, id, " FOR SHARE")
}

func (t *txRepo) NextNumber(ctx context.Context, scope, key string) (int, error) {
	n, err := db.NextSequence(ctx, t.tx, scope, key)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO specification_payments (specification_id, category, payment_number, amount,
currency, amount_usd, paid_on, description, created_by) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		p.SpecificationID, p.Category, p.PaymentNumber, p.Amount, p.Currency, p.AmountUSD, p.PaidOn, p.Description,
		p.CreatedBy).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

func (t *txRepo) InsertSchedule(ctx context.Context, e ScheduleEntry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payment_schedule (specification_id, payment_number, basis, days, expected_date,
amount, currency, purpose, comment, created_by) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		e.SpecificationID, e.PaymentNumber, e.Basis, e.Days, e.ExpectedDate, e.Amount, e.Currency, e.Purpose, e.Comment,
		e.CreatedBy).Scan(&id)
	if err != nil {
		return 0, db.MapError(err)
	}
	return id, nil
}

func (t *txRepo) LockSchedule(ctx context.Context, id int64) (ScheduleEntry, error) {
	e, err := scanSchedule(t.tx.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM payment_schedule WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return ScheduleEntry{}, shared.NotFound("payment schedule entry", id)
	}
	return e, err
}

func (t *txRepo) SetActualDate(ctx context.Context, id int64, date time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE payment_schedule SET actual_date = $2 WHERE id = $1`, id, date)
	return db.MapError(err)
}

func numberKey(specificationID int64, category Category) string {
	key := strconv.FormatInt(specificationID, 10)
	if category != "" {
		key += ":" + string(category)
	}
	return key
}
