// Package procurement groups priced quote items into supplier invoices and
// advances each invoice through the department workflow.
package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
	"github.com/odyssey-erp/dealdesk/internal/sales"
)

// InvoiceStatus enumerates invoice workflow states.
type InvoiceStatus string

const (
	InvoiceStatusPendingProcurement InvoiceStatus = "pending_procurement"
	InvoiceStatusPendingLogistics   InvoiceStatus = "pending_logistics"
	InvoiceStatusPendingCustoms     InvoiceStatus = "pending_customs"
	InvoiceStatusCompleted          InvoiceStatus = "completed"
)

// Valid reports whether s is a known status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPendingProcurement, InvoiceStatusPendingLogistics, InvoiceStatusPendingCustoms, InvoiceStatusCompleted:
		return true
	}
	return false
}

// Offer is a supplier's price for one quote item.
type Offer struct {
	ID           int64           `json:"id"`
	QuoteItemID  int64           `json:"quote_item_id"`
	SupplierID   int64           `json:"supplier_id"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	LeadTimeDays *int            `json:"lead_time_days,omitempty"`
	IsSelected   bool            `json:"is_selected"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// GroupingKey identifies the invoice an item belongs to.
type GroupingKey struct {
	QuoteID        int64
	SupplierID     int64
	BuyerCompanyID int64
	PickupLocation string
}

// Invoice is a supplier invoice grouping quote items.
type Invoice struct {
	ID                     int64            `json:"id"`
	QuoteID                int64            `json:"quote_id"`
	SupplierID             int64            `json:"supplier_id"`
	BuyerCompanyID         int64            `json:"buyer_company_id"`
	PickupLocation         string           `json:"pickup_location"`
	InvoiceNumber          string           `json:"invoice_number"`
	Currency               string           `json:"currency"`
	TotalWeightKg          *decimal.Decimal `json:"total_weight_kg,omitempty"`
	TotalVolumeM3          *decimal.Decimal `json:"total_volume_m3,omitempty"`
	TotalAmount            decimal.Decimal  `json:"total_amount"`
	Status                 InvoiceStatus    `json:"status"`
	ProcurementCompletedAt *time.Time       `json:"procurement_completed_at,omitempty"`
	ProcurementCompletedBy *int64           `json:"procurement_completed_by,omitempty"`
	LogisticsCompletedAt   *time.Time       `json:"logistics_completed_at,omitempty"`
	LogisticsCompletedBy   *int64           `json:"logistics_completed_by,omitempty"`
	CustomsCompletedAt     *time.Time       `json:"customs_completed_at,omitempty"`
	CustomsCompletedBy     *int64           `json:"customs_completed_by,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// Key returns the invoice's grouping key.
func (i Invoice) Key() GroupingKey {
	return GroupingKey{QuoteID: i.QuoteID, SupplierID: i.SupplierID, BuyerCompanyID: i.BuyerCompanyID, PickupLocation: i.PickupLocation}
}

// Cost is a logistics cost entry booked against an invoice.
type Cost struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoice_id"`
	Kind       string          `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	IncurredOn time.Time       `json:"incurred_on"`
	Note       string          `json:"note"`
	CreatedBy  int64           `json:"created_by"`
}

// QuoteRef is the slice of a quote procurement needs.
type QuoteRef struct {
	ID     int64
	OrgID  int64
	Status sales.QuoteStatus
}

// InvoiceWithItems bundles an invoice and its grouped items.
type InvoiceWithItems struct {
	Invoice Invoice      `json:"invoice"`
	Items   []sales.Item `json:"items"`
}

// step is one transition of the invoice workflow.
type step struct {
	from   InvoiceStatus
	to     InvoiceStatus
	column string
	action string
}

var (
	stepProcurement = step{InvoiceStatusPendingProcurement, InvoiceStatusPendingLogistics, "procurement", "complete_procurement"}
	stepLogistics   = step{InvoiceStatusPendingLogistics, InvoiceStatusPendingCustoms, "logistics", "complete_logistics"}
	stepCustoms     = step{InvoiceStatusPendingCustoms, InvoiceStatusCompleted, "customs", "complete_customs"}
)

// Tables lists the columns the procurement repository reads and writes.
var Tables = []db.TableSpec{
	{Table: "invoices", Columns: []string{"id", "quote_id", "supplier_id", "buyer_company_id", "pickup_location", "invoice_number",
		"currency", "total_weight_kg", "total_volume_m3", "total_amount", "status", "procurement_completed_at", "procurement_completed_by",
		"logistics_completed_at", "logistics_completed_by", "customs_completed_at", "customs_completed_by", "created_at", "updated_at"}},
	{Table: "price_offers", Columns: []string{"id", "quote_item_id", "supplier_id", "price", "currency", "lead_time_days", "is_selected",
		"created_by", "created_at"}},
	{Table: "invoice_costs", Columns: []string{"id", "invoice_id", "kind", "amount", "currency", "incurred_on", "note", "created_by"}},
}
