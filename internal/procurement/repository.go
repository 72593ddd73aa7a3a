package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
	"github.com/odyssey-erp/dealdesk/internal/sales"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence for offers and invoices.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockQuote(ctx context.Context, id int64) (QuoteRef, error)
	LockItem(ctx context.Context, id int64) (sales.Item, error)
	ListQuoteItems(ctx context.Context, quoteID int64) ([]sales.Item, error)
	ListInvoiceItems(ctx context.Context, invoiceID int64) ([]sales.Item, error)

	GetOffer(ctx context.Context, id int64) (Offer, error)
	InsertOffer(ctx context.Context, offer Offer) (int64, error)
	DeselectOffers(ctx context.Context, itemID int64) error
	MarkOfferSelected(ctx context.Context, offerID int64) error
	ApplyOffer(ctx context.Context, itemID int64, offer Offer, country *string, total decimal.Decimal) error

	FindInvoice(ctx context.Context, key GroupingKey) (Invoice, bool, error)
	InsertInvoice(ctx context.Context, inv Invoice) (int64, bool, error)
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	SetItemInvoice(ctx context.Context, itemID int64, invoiceID *int64) error
	RecalculateTotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	SetDimensions(ctx context.Context, invoiceID int64, weightKg, volumeM3 *decimal.Decimal) error
	InsertCost(ctx context.Context, cost Cost) (int64, error)
	AdvanceStatus(ctx context.Context, invoiceID int64, st step, by int64, at time.Time) (bool, error)
	OverrideStatus(ctx context.Context, invoiceID int64, status InvoiceStatus) error
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

const invoiceColumns = `id, quote_id, supplier_id, buyer_company_id, pickup_location, invoice_number, currency,
total_weight_kg, total_volume_m3, total_amount, status, procurement_completed_at, procurement_completed_by,
logistics_completed_at, logistics_completed_by, customs_completed_at, customs_completed_by, created_at, updated_at`

const offerColumns = `id, quote_item_id, supplier_id, price, currency, lead_time_days, is_selected, created_by, created_at`

const itemColumns = `id, quote_id, position, idn_sku, description, quantity, requested_price, purchase_price,
purchase_currency, supplier_id, supplier_country, lead_time_days, is_available, invoice_id, total_price`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.QuoteID, &inv.SupplierID, &inv.BuyerCompanyID, &inv.PickupLocation, &inv.InvoiceNumber,
		&inv.Currency, &inv.TotalWeightKg, &inv.TotalVolumeM3, &inv.TotalAmount, &inv.Status,
		&inv.ProcurementCompletedAt, &inv.ProcurementCompletedBy, &inv.LogisticsCompletedAt, &inv.LogisticsCompletedBy,
		&inv.CustomsCompletedAt, &inv.CustomsCompletedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.ErrNotFound
	}
	return inv, err
}

func scanOffer(row pgx.Row) (Offer, error) {
	var o Offer
	err := row.Scan(&o.ID, &o.QuoteItemID, &o.SupplierID, &o.Price, &o.Currency, &o.LeadTimeDays, &o.IsSelected, &o.CreatedBy, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Offer{}, shared.ErrNotFound
	}
	return o, err
}

func scanItem(row pgx.Row) (sales.Item, error) {
	var it sales.Item
	err := row.Scan(&it.ID, &it.QuoteID, &it.Position, &it.IDNSKU, &it.Description, &it.Quantity, &it.RequestedPrice,
		&it.PurchasePrice, &it.PurchaseCurrency, &it.SupplierID, &it.SupplierCountry, &it.LeadTimeDays, &it.IsAvailable,
		&it.InvoiceID, &it.TotalPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return sales.Item{}, shared.ErrNotFound
	}
	return it, err
}

func queryItems(ctx context.Context, q db.Querier, where string, arg int64) ([]sales.Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM quote_items WHERE `+where+` ORDER BY position`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []sales.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetInvoice loads one invoice.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Invoice{}, shared.NotFound("invoice", id)
	}
	return inv, err
}

// ListInvoices returns the quote's invoices.
func (r *Repository) ListInvoices(ctx context.Context, quoteID int64) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE quote_id = $1 ORDER BY id`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ListInvoiceItems returns the items grouped into an invoice.
func (r *Repository) ListInvoiceItems(ctx context.Context, invoiceID int64) ([]sales.Item, error) {
	return queryItems(ctx, r.pool, "invoice_id = $1", invoiceID)
}

// GetItem loads a quote item.
func (r *Repository) GetItem(ctx context.Context, id int64) (sales.Item, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM quote_items WHERE id = $1`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return sales.Item{}, shared.NotFound("quote item", id)
	}
	return it, err
}

// GetQuote loads the quote reference.
func (r *Repository) GetQuote(ctx context.Context, id int64) (QuoteRef, error) {
	var q QuoteRef
	err := r.pool.QueryRow(ctx, `SELECT id, org_id, status FROM quotes WHERE id = $1`, id).Scan(&q.ID, &q.OrgID, &q.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return QuoteRef{}, shared.NotFound("quote", id)
	}
	return q, err
}

// GetOffer loads one offer.
func (r *Repository) GetOffer(ctx context.Context, id int64) (Offer, error) {
	o, err := scanOffer(r.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM price_offers WHERE id = $1`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Offer{}, shared.NotFound("price offer", id)
	}
	return o, err
}

// ListOffers returns an item's offers, cheapest first.
func (r *Repository) ListOffers(ctx context.Context, itemID int64) ([]Offer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+offerColumns+` FROM price_offers WHERE quote_item_id = $1 ORDER BY price, id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListCosts returns an invoice's logistics cost entries.
func (r *Repository) ListCosts(ctx context.Context, invoiceID int64) ([]Cost, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, kind, amount, currency, incurred_on, note, created_by
FROM invoice_costs WHERE invoice_id = $1 ORDER BY incurred_on, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Cost
	for rows.Next() {
		var c Cost
		if err := rows.Scan(&c.ID, &c.InvoiceID, &c.Kind, &c.Amount, &c.Currency, &c.IncurredOn, &c.Note, &c.CreatedBy); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *txRepo) LockQuote(ctx context.Context, id int64) (QuoteRef, error) {
	var q QuoteRef
	err := t.tx.QueryRow(ctx, `SELECT id, org_id, status FROM quotes WHERE id = $1 FOR UPDATE`, id).Scan(&q.ID, &q.OrgID, &q.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return QuoteRef{}, shared.NotFound("quote", id)
	}
	return q, err
}

func (t *txRepo) LockItem(ctx context.Context, id int64) (sales.Item, error) {
	it, err := scanItem(t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM quote_items WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return sales.Item{}, shared.NotFound("quote item", id)
	}
	return it, err
}

func (t *txRepo) ListQuoteItems(ctx context.Context, quoteID int64) ([]sales.Item, error) {
	return queryItems(ctx, t.tx, "quote_id = $1", quoteID)
}

func (t *txRepo) ListInvoiceItems(ctx context.Context, invoiceID int64) ([]sales.Item, error) {
	return queryItems(ctx, t.tx, "invoice_id = $1", invoiceID)
}

func (t *txRepo) GetOffer(ctx context.Context, id int64) (Offer, error) {
	o, err := scanOffer(t.tx.QueryRow(ctx, `SELECT `+offerColumns+` FROM price_offers WHERE id = $1`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Offer{}, shared.NotFound("price offer", id)
	}
	return o, err
}

func (t *txRepo) InsertOffer(ctx context.Context, o Offer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO price_offers (quote_item_id, supplier_id, price, currency, lead_time_days, created_by)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, o.QuoteItemID, o.SupplierID, o.Price, o.Currency, o.LeadTimeDays, o.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepo) DeselectOffers(ctx context.Context, itemID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE price_offers SET is_selected = FALSE WHERE quote_item_id = $1 AND is_selected`, itemID)
	return err
}

func (t *txRepo) MarkOfferSelected(ctx context.Context, offerID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE price_offers SET is_selected = TRUE WHERE id = $1`, offerID)
	return err
}

func (t *txRepo) ApplyOffer(ctx context.Context, itemID int64, o Offer, country *string, total decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE quote_items SET purchase_price = $2, purchase_currency = $3, lead_time_days = $4,
supplier_id = $5, supplier_country = $6, total_price = $7, updated_at = NOW() WHERE id = $1`,
		itemID, o.Price, o.Currency, o.LeadTimeDays, o.SupplierID, country, total)
	return err
}

func (t *txRepo) FindInvoice(ctx context.Context, key GroupingKey) (Invoice, bool, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE quote_id = $1 AND supplier_id = $2 AND buyer_company_id = $3 AND pickup_location = $4 FOR UPDATE`,
		key.QuoteID, key.SupplierID, key.BuyerCompanyID, key.PickupLocation))
	if errors.Is(err, shared.ErrNotFound) {
		return Invoice{}, false, nil
	}
	if err != nil {
		return Invoice{}, false, err
	}
	return inv, true, nil
}

// InsertInvoice reports created=false when a concurrent writer already holds the key.
func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoices (quote_id, supplier_id, buyer_company_id, pickup_location, invoice_number, currency, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT ON CONSTRAINT invoices_grouping_key DO NOTHING RETURNING id`,
		inv.QuoteID, inv.SupplierID, inv.BuyerCompanyID, inv.PickupLocation, inv.InvoiceNumber, inv.Currency, InvoiceStatusPendingProcurement).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *txRepo) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Invoice{}, shared.NotFound("invoice", id)
	}
	return inv, err
}

func (t *txRepo) SetItemInvoice(ctx context.Context, itemID int64, invoiceID *int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE quote_items SET invoice_id = $2, updated_at = NOW() WHERE id = $1`, itemID, invoiceID)
	return err
}

func (t *txRepo) RecalculateTotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.tx.QueryRow(ctx, `UPDATE invoices SET total_amount = (
    SELECT COALESCE(SUM(total_price), 0) FROM quote_items WHERE invoice_id = $1
), updated_at = NOW() WHERE id = $1 RETURNING total_amount`, invoiceID).Scan(&total)
	return total, err
}

func (t *txRepo) SetDimensions(ctx context.Context, invoiceID int64, weightKg, volumeM3 *decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET total_weight_kg = $2, total_volume_m3 = $3, updated_at = NOW() WHERE id = $1`,
		invoiceID, weightKg, volumeM3)
	return err
}

func (t *txRepo) InsertCost(ctx context.Context, c Cost) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoice_costs (invoice_id, kind, amount, currency, incurred_on, note, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`, c.InvoiceID, c.Kind, c.Amount, c.Currency, c.IncurredOn, c.Note, c.CreatedBy).Scan(&id)
	return id, err
}

// AdvanceStatus moves the invoice one step only if it is still in st.from.
// The stamp column names come from the fixed step table.
func (t *txRepo) AdvanceStatus(ctx context.Context, invoiceID int64, st step, by int64, at time.Time) (bool, error) {
	sql := fmt.Sprintf(`UPDATE invoices SET status = $3, %[1]s_completed_at = $4, %[1]s_completed_by = $5, updated_at = NOW()
WHERE id = $1 AND status = $2`, st.column)
	tag, err := t.tx.Exec(ctx, sql, invoiceID, st.from, st.to, at, by)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) OverrideStatus(ctx context.Context, invoiceID int64, status InvoiceStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`, invoiceID, status)
	return err
}
