// Package masterdata is the read side of the reference store: suppliers,
// buyer and seller companies, customers with their contacts, and warehouses.
// Records are maintained elsewhere; this package only looks them up.
package masterdata

import (
	"context"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
)

// CompanyKind distinguishes buyer entities from seller entities.
type CompanyKind string

const (
	CompanyBuyer  CompanyKind = "buyer"
	CompanySeller CompanyKind = "seller"
)

// Supplier represents a supplier entity.
type Supplier struct {
	ID       int64  `json:"id"`
	OrgID    int64  `json:"org_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Country  string `json:"country"`
	TaxID    string `json:"tax_id"`
	IsActive bool   `json:"is_active"`
}

// Company represents a buyer or seller legal entity of the organization.
type Company struct {
	ID      int64       `json:"id"`
	OrgID   int64       `json:"org_id"`
	Kind    CompanyKind `json:"kind"`
	Code    string      `json:"code"`
	Name    string      `json:"name"`
	Country string      `json:"country"`
	TaxID   string      `json:"tax_id"`
}

// Customer represents a customer entity.
type Customer struct {
	ID      int64  `json:"id"`
	OrgID   int64  `json:"org_id"`
	Name    string `json:"name"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
}

// Contact is a person at a customer. The signatory appears on specification documents.
type Contact struct {
	ID          int64  `json:"id"`
	CustomerID  int64  `json:"customer_id"`
	Name        string `json:"name"`
	Position    string `json:"position"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	IsSignatory bool   `json:"is_signatory"`
}

// Warehouse represents a warehouse entity.
type Warehouse struct {
	ID      int64  `json:"id"`
	OrgID   int64  `json:"org_id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Store is the reference-store read contract. Missing records return
// *shared.NotFoundError.
type Store interface {
	Supplier(ctx context.Context, id int64) (Supplier, error)
	Company(ctx context.Context, id int64) (Company, error)
	Customer(ctx context.Context, id int64) (Customer, error)
	Contact(ctx context.Context, id int64) (Contact, error)
	Contacts(ctx context.Context, customerID int64) ([]Contact, error)
	Warehouse(ctx context.Context, id int64) (Warehouse, error)
}

// Tables lists the reference columns this package reads.
var Tables = []db.TableSpec{
	{Table: "suppliers", Columns: []string{"id", "org_id", "code", "name", "country", "tax_id", "is_active"}},
	{Table: "companies", Columns: []string{"id", "org_id", "kind", "code", "name", "country", "tax_id"}},
	{Table: "customers", Columns: []string{"id", "org_id", "name", "tax_id", "address"}},
	{Table: "customer_contacts", Columns: []string{"id", "customer_id", "name", "position", "email", "phone", "is_signatory"}},
	{Table: "warehouses", Columns: []string{"id", "org_id", "code", "name", "address"}},
}
