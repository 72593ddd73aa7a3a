package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// repo implements Store over PostgreSQL.
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository
func NewRepository(db *pgxpool.Pool) Store {
	return &repo{db: db}
}

func (r *repo) Supplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx, `SELECT id, org_id, code, name, COALESCE(country, ''), COALESCE(tax_id, ''), is_active
FROM suppliers WHERE id = $1`, id).Scan(&s.ID, &s.OrgID, &s.Code, &s.Name, &s.Country, &s.TaxID, &s.IsActive)
	return s, notFound(err, "supplier", id)
}

func (r *repo) Company(ctx context.Context, id int64) (Company, error) {
	var c Company
	err := r.db.QueryRow(ctx, `SELECT id, org_id, kind, code, name, COALESCE(country, ''), COALESCE(tax_id, '')
FROM companies WHERE id = $1`, id).Scan(&c.ID, &c.OrgID, &c.Kind, &c.Code, &c.Name, &c.Country, &c.TaxID)
	return c, notFound(err, "company", id)
}

func (r *repo) Customer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `SELECT id, org_id, name, COALESCE(tax_id, ''), COALESCE(address, '')
FROM customers WHERE id = $1`, id).Scan(&c.ID, &c.OrgID, &c.Name, &c.TaxID, &c.Address)
	return c, notFound(err, "customer", id)
}

func (r *repo) Contact(ctx context.Context, id int64) (Contact, error) {
	var c Contact
	err := r.db.QueryRow(ctx, `SELECT id, customer_id, name, COALESCE(position, ''), COALESCE(email, ''), COALESCE(phone, ''), is_signatory
FROM customer_contacts WHERE id = $1`, id).Scan(&c.ID, &c.CustomerID, &c.Name, &c.Position, &c.Email, &c.Phone, &c.IsSignatory)
	return c, notFound(err, "contact", id)
}

func (r *repo) Contacts(ctx context.Context, customerID int64) ([]Contact, error) {
	rows, err := r.db.Query(ctx, `SELECT id, customer_id, name, COALESCE(position, ''), COALESCE(email, ''), COALESCE(phone, ''), is_signatory
FROM customer_contacts WHERE customer_id = $1 ORDER BY is_signatory DESC, id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.Name, &c.Position, &c.Email, &c.Phone, &c.IsSignatory); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *repo) Warehouse(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.db.QueryRow(ctx, `SELECT id, org_id, code, name, COALESCE(address, '')
FROM warehouses WHERE id = $1`, id).Scan(&w.ID, &w.OrgID, &w.Code, &w.Name, &w.Address)
	return w, notFound(err, "warehouse", id)
}

func notFound(err error, entity string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound(entity, id)
	}
	return err
}
