// Package sales owns quotes and their line items up to commercial approval.
package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
)

// QuoteStatus tracks the quote through the departments.
type QuoteStatus string

const (
	QuoteStatusDraft              QuoteStatus = "draft"
	QuoteStatusPendingProcurement QuoteStatus = "pending_procurement"
	QuoteStatusPriced             QuoteStatus = "priced"
	QuoteStatusApproved           QuoteStatus = "approved"
	QuoteStatusRejected           QuoteStatus = "rejected"
)

// Editable reports whether line items may still change.
func (s QuoteStatus) Editable() bool {
	return s == QuoteStatusDraft || s == QuoteStatusPendingProcurement || s == QuoteStatusPriced
}

// Checklist is completed by sales before handing the quote to procurement.
type Checklist struct {
	IsEstimate           bool       `json:"is_estimate"`
	IsTender             bool       `json:"is_tender"`
	DirectRequest        bool       `json:"direct_request"`
	TradingOrgRequest    bool       `json:"trading_org_request"`
	EquipmentDescription string     `json:"equipment_description"`
	CompletedAt          *time.Time `json:"completed_at"`
	CompletedBy          *int64     `json:"completed_by"`
}

// Quote is one sales opportunity.
type Quote struct {
	ID              int64           `json:"id"`
	OrgID           int64           `json:"org_id"`
	IDN             *string         `json:"idn,omitempty"`
	CustomerID      *int64          `json:"customer_id,omitempty"`
	Currency        string          `json:"currency"`
	DeliveryTerms   string          `json:"delivery_terms"`
	Status          QuoteStatus     `json:"status"`
	Checklist       *Checklist      `json:"checklist,omitempty"`
	RejectedAt      *time.Time      `json:"rejected_at,omitempty"`
	RejectedBy      *int64          `json:"rejected_by,omitempty"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy      *int64          `json:"approved_by,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalAmountUSD  decimal.Decimal `json:"total_amount_usd"`
	CreatedBy       int64           `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Item is a quote line. Purchase fields are filled only by offer selection.
type Item struct {
	ID               int64            `json:"id"`
	QuoteID          int64            `json:"quote_id"`
	Position         int              `json:"position"`
	IDNSKU           *string          `json:"idn_sku,omitempty"`
	Description      string           `json:"description"`
	Quantity         decimal.Decimal  `json:"quantity"`
	RequestedPrice   *decimal.Decimal `json:"requested_price,omitempty"`
	PurchasePrice    *decimal.Decimal `json:"purchase_price,omitempty"`
	PurchaseCurrency *string          `json:"purchase_currency,omitempty"`
	SupplierID       *int64           `json:"supplier_id,omitempty"`
	SupplierCountry  *string          `json:"supplier_country,omitempty"`
	LeadTimeDays     *int             `json:"lead_time_days,omitempty"`
	IsAvailable      bool             `json:"is_available"`
	InvoiceID        *int64           `json:"invoice_id,omitempty"`
	TotalPrice       decimal.Decimal  `json:"total_price"`
}

// Priced reports whether procurement has selected a price for the item.
func (i Item) Priced() bool {
	return i.PurchasePrice != nil && i.PurchaseCurrency != nil
}

// ItemTotal is round(quantity × price, 2), zero while the price is unset.
func ItemTotal(quantity decimal.Decimal, price *decimal.Decimal) decimal.Decimal {
	if price == nil {
		return decimal.Zero
	}
	return quantity.Mul(*price).Round(2)
}

// ItemSKU derives an item's sequence code from the quote IDN and its position.
func ItemSKU(idn string, position int) string {
	return fmt.Sprintf("%s-%03d", idn, position)
}

// FormatIDN renders the quote sequence number.
func FormatIDN(year int, seq int64) string {
	return fmt.Sprintf("Q-%d-%05d", year, seq)
}

// QuoteFilter narrows ListQuotes.
type QuoteFilter struct {
	Status  QuoteStatus
	Page    int
	PerPage int
}

// Tables lists the columns the sales repository reads and writes.
var Tables = []db.TableSpec{
	{Table: "quotes", Columns: []string{"id", "org_id", "idn", "customer_id", "currency", "delivery_terms", "status", "checklist",
		"rejected_at", "rejected_by", "rejection_reason", "approved_at", "approved_by", "total_amount", "total_amount_usd",
		"created_by", "created_at", "updated_at"}},
	{Table: "quote_items", Columns: []string{"id", "quote_id", "position", "idn_sku", "description", "quantity", "requested_price",
		"purchase_price", "purchase_currency", "supplier_id", "supplier_country", "lead_time_days", "is_available", "invoice_id",
		"total_price", "created_at", "updated_at"}},
}
