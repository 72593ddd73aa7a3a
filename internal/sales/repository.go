package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence for quotes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockQuote(ctx context.Context, id int64) (Quote, error)
	CreateQuote(ctx context.Context, q Quote) (int64, error)
	NextItemPosition(ctx context.Context, quoteID int64) (int, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	LockItem(ctx context.Context, id int64) (Item, error)
	UpdateItemRequested(ctx context.Context, item Item) error
	ListItems(ctx context.Context, quoteID int64) ([]Item, error)
	SaveChecklist(ctx context.Context, quoteID int64, checklist Checklist, status QuoteStatus) error
	UpdateStatus(ctx context.Context, quoteID int64, status QuoteStatus) error
	SetApproval(ctx context.Context, quoteID, by int64, at time.Time) error
	SetRejection(ctx context.Context, quoteID, by int64, at time.Time, reason string) error
	SetTotals(ctx context.Context, quoteID int64, total, totalUSD decimal.Decimal) error
	AssignIDN(ctx context.Context, quoteID int64, idn string) error
	SetItemSKU(ctx context.Context, itemID int64, sku string) error
	NextSequence(ctx context.Context, scope, key string) (int64, error)
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

const quoteColumns = `id, org_id, idn, customer_id, currency, delivery_terms, status, checklist,
rejected_at, rejected_by, rejection_reason, approved_at, approved_by, total_amount, total_amount_usd,
created_by, created_at, updated_at`

const itemColumns = `id, quote_id, position, idn_sku, description, quantity, requested_price, purchase_price,
purchase_currency, supplier_id, supplier_country, lead_time_days, is_available, invoice_id, total_price`

func scanQuote(row pgx.Row) (Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.OrgID, &q.IDN, &q.CustomerID, &q.Currency, &q.DeliveryTerms, &q.Status, &q.Checklist,
		&q.RejectedAt, &q.RejectedBy, &q.RejectionReason, &q.ApprovedAt, &q.ApprovedBy, &q.TotalAmount, &q.TotalAmountUSD,
		&q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, shared.ErrNotFound
	}
	return q, err
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.QuoteID, &it.Position, &it.IDNSKU, &it.Description, &it.Quantity, &it.RequestedPrice,
		&it.PurchasePrice, &it.PurchaseCurrency, &it.SupplierID, &it.SupplierCountry, &it.LeadTimeDays, &it.IsAvailable,
		&it.InvoiceID, &it.TotalPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.ErrNotFound
	}
	return it, err
}

func listItems(ctx context.Context, q db.Querier, quoteID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM quote_items WHERE quote_id = $1 ORDER BY position`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetQuote fetches a quote by ID.
func (r *Repository) GetQuote(ctx context.Context, id int64) (Quote, error) {
	q, err := scanQuote(r.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Quote{}, shared.NotFound("quote", id)
	}
	return q, err
}

// GetItem fetches a quote item by ID.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM quote_items WHERE id = $1`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Item{}, shared.NotFound("quote item", id)
	}
	return it, err
}

// ListItems returns the quote's items ordered by position.
func (r *Repository) ListItems(ctx context.Context, quoteID int64) ([]Item, error) {
	return listItems(ctx, r.pool, quoteID)
}

// ListQuotes returns one page of an organization's quotes, newest first.
func (r *Repository) ListQuotes(ctx context.Context, orgID int64, filter QuoteFilter) ([]Quote, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quotes WHERE org_id = $1 AND ($2 = '' OR status = $2)`,
		orgID, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	p := shared.NewPagination(filter.Page, filter.PerPage, total)
	rows, err := r.pool.Query(ctx, `SELECT `+quoteColumns+` FROM quotes
WHERE org_id = $1 AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`, orgID, string(filter.Status), p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, q)
	}
	return quotes, total, rows.Err()
}

func (t *txRepo) LockQuote(ctx context.Context, id int64) (Quote, error) {
	q, err := scanQuote(t.tx.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Quote{}, shared.NotFound("quote", id)
	}
	return q, err
}

func (t *txRepo) CreateQuote(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO quotes (org_id, customer_id, currency, delivery_terms, status, created_by)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, q.OrgID, q.CustomerID, q.Currency, q.DeliveryTerms, q.Status, q.CreatedBy).Scan(&id)
	return id, err
}

// NextItemPosition runs under the quote row lock taken by LockQuote.
func (t *txRepo) NextItemPosition(ctx context.Context, quoteID int64) (int, error) {
	var next int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM quote_items WHERE quote_id = $1`, quoteID).Scan(&next)
	return next, err
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO quote_items (quote_id, position, idn_sku, description, quantity, requested_price, is_available, total_price)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		item.QuoteID, item.Position, item.IDNSKU, item.Description, item.Quantity, item.RequestedPrice, item.IsAvailable, item.TotalPrice).Scan(&id)
	return id, err
}

func (t *txRepo) LockItem(ctx context.Context, id int64) (Item, error) {
	it, err := scanItem(t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM quote_items WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Item{}, shared.NotFound("quote item", id)
	}
	return it, err
}

func (t *txRepo) UpdateItemRequested(ctx context.Context, item Item) error {
	_, err := t.tx.Exec(ctx, `UPDATE quote_items SET description = $2, quantity = $3, requested_price = $4, is_available = $5,
total_price = $6, updated_at = NOW() WHERE id = $1`,
		item.ID, item.Description, item.Quantity, item.RequestedPrice, item.IsAvailable, item.TotalPrice)
	return err
}

func (t *txRepo) ListItems(ctx context.Context, quoteID int64) ([]Item, error) {
	return listItems(ctx, t.tx, quoteID)
}

func (t *txRepo) SaveChecklist(ctx context.Context, quoteID int64, checklist Checklist, status QuoteStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotes SET checklist = $2, status = $3, updated_at = NOW() WHERE id = $1`, quoteID, checklist, status)
	return err
}

func (t *txRepo) UpdateStatus(ctx context.Context, quoteID int64, status QuoteStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotes SET status = $2, updated_at = NOW() WHERE id = $1`, quoteID, status)
	return err
}

func (t *txRepo) SetApproval(ctx context.Context, quoteID, by int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotes SET status = $2, approved_by = $3, approved_at = $4, updated_at = NOW() WHERE id = $1`,
		quoteID, QuoteStatusApproved, by, at)
	return err
}

func (t *txRepo) SetRejection(ctx context.Context, quoteID, by int64, at time.Time, reason string) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotes SET status = $2, rejected_by = $3, rejected_at = $4, rejection_reason = $5, updated_at = NOW() WHERE id = $1`,
		quoteID, QuoteStatusRejected, by, at, reason)
	return err
}

func (t *txRepo) SetTotals(ctx context.Context, quoteID int64, total, totalUSD decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotes SET total_amount = $2, total_amount_usd = $3, updated_at = NOW() WHERE id = $1`, quoteID, total, totalUSD)
	return err
}

func (t *txRepo) AssignIDN(ctx context.Context, quoteID int64, idn string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE quotes SET idn = $2, updated_at = NOW() WHERE id = $1 AND idn IS NULL`, quoteID, idn)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quote %d already has an IDN", shared.ErrConflict, quoteID)
	}
	return nil
}

func (t *txRepo) SetItemSKU(ctx context.Context, itemID int64, sku string) error {
	_, err := t.tx.Exec(ctx, `UPDATE quote_items SET idn_sku = $2, updated_at = NOW() WHERE id = $1`, itemID, sku)
	return err
}

func (t *txRepo) NextSequence(ctx context.Context, scope, key string) (int64, error) {
	return db.NextSequence(ctx, t.tx, scope, key)
}
