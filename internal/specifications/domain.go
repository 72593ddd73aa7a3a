// Package specifications turns approved quotes into signed specifications and
// opens a deal for each signature.
package specifications

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
	"github.com/odyssey-erp/dealdesk/internal/sales"
)

// Status of a specification.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusSigned        Status = "signed"
)

// Normalize folds the retired review state into draft.
func (s Status) Normalize() Status {
	if s == StatusPendingReview {
		return StatusDraft
	}
	return s
}

// Stored lists the raw column values that read back as s.
func (s Status) Stored() []string {
	if s.Normalize() == StatusDraft {
		return []string{string(StatusDraft), string(StatusPendingReview)}
	}
	return []string{string(s)}
}

// Specification is the contractual appendix built from a quote.
type Specification struct {
	ID                        int64           `json:"id"`
	OrgID                     int64           `json:"org_id"`
	QuoteID                   int64           `json:"quote_id"`
	Number                    string          `json:"number"`
	SignDate                  *time.Time      `json:"sign_date,omitempty"`
	ValidityPeriod            string          `json:"validity_period"`
	PaymentTerms              string          `json:"payment_terms"`
	AdvancePercent            decimal.Decimal `json:"advance_percent"`
	DeliveryPeriodDays        int             `json:"delivery_period_days"`
	DaysFromDeliveryToAdvance int             `json:"days_from_delivery_to_advance"`
	SignatoryContactID        *int64          `json:"signatory_contact_id,omitempty"`
	Status                    Status          `json:"status"`
	CreatedBy                 int64           `json:"created_by"`
	CreatedAt                 time.Time       `json:"created_at"`
	UpdatedAt                 time.Time       `json:"updated_at"`
}

// Deal is opened when a specification is signed.
type Deal struct {
	ID              int64     `json:"id"`
	SpecificationID int64     `json:"specification_id"`
	Reference       uuid.UUID `json:"reference"`
	CreatedAt       time.Time `json:"created_at"`
}

// QuoteRef is the slice of a quote a specification depends on.
type QuoteRef struct {
	ID          int64
	OrgID       int64
	Status      sales.QuoteStatus
	CustomerID  *int64
	IDN         *string
	Currency    string
	TotalAmount decimal.Decimal
}

// Line is one quote item printed on the document.
type Line struct {
	Position    int
	SKU         *string
	Description string
	Quantity    decimal.Decimal
}

// ListFilter narrows List.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// FormatNumber renders the per-organization specification number.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("SP-%d-%04d", year, seq)
}

// Tables lists the columns the specification repository reads and writes.
var Tables = []db.TableSpec{
	{Table: "specifications", Columns: []string{"id", "org_id", "quote_id", "number", "sign_date", "validity_period",
		"payment_terms", "advance_percent", "delivery_period_days", "days_from_delivery_to_advance",
		"signatory_contact_id", "status", "created_by", "created_at", "updated_at"}},
	{Table: "deals", Columns: []string{"id", "specification_id", "reference", "created_at"}},
}
