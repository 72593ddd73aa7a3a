// Package payments keeps the income and expense ledger of each specification
// and its planned payment schedule.
package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
)

// Category splits the ledger into money received and money spent.
type Category string

const (
	CategoryIncome  Category = "income"
	CategoryExpense Category = "expense"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryIncome || c == CategoryExpense
}

// Basis tells what the scheduled day count is measured from.
type Basis string

const (
	BasisFromOrderDate     Basis = "from_order_date"
	BasisFromAgreementDate Basis = "from_agreement_date"
	BasisFromShipmentDate  Basis = "from_shipment_date"
	BasisUntilShipmentDate Basis = "until_shipment_date"
)

// Valid reports whether b is a known basis.
func (b Basis) Valid() bool {
	switch b {
	case BasisFromOrderDate, BasisFromAgreementDate, BasisFromShipmentDate, BasisUntilShipmentDate:
		return true
	}
	return false
}

// Purpose labels a scheduled payment.
type Purpose string

const (
	PurposeAdvance    Purpose = "advance"
	PurposeAdditional Purpose = "additional"
	PurposeFinal      Purpose = "final"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeAdvance || p == PurposeAdditional || p == PurposeFinal
}

// Payment is one booked movement of money on a specification.
type Payment struct {
	ID              int64           `json:"id"`
	SpecificationID int64           `json:"specification_id"`
	Category        Category        `json:"category"`
	PaymentNumber   int             `json:"payment_number"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	AmountUSD       decimal.Decimal `json:"amount_usd"`
	PaidOn          time.Time       `json:"paid_on"`
	Description     string          `json:"description"`
	CreatedBy       int64           `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ScheduleEntry is one planned payment.
type ScheduleEntry struct {
	ID              int64           `json:"id"`
	SpecificationID int64           `json:"specification_id"`
	PaymentNumber   int             `json:"payment_number"`
	Basis           Basis           `json:"basis"`
	Days            int             `json:"days"`
	ExpectedDate    *time.Time      `json:"expected_date,omitempty"`
	ActualDate      *time.Time      `json:"actual_date,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Purpose         Purpose         `json:"purpose"`
	Comment         string          `json:"comment"`
	CreatedBy       int64           `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SpecRef is the owning specification as seen by the ledger.
type SpecRef struct {
	ID    int64
	OrgID int64
}

// Tables lists the columns the payments repository reads and writes.
var Tables = []db.TableSpec{
	{Table: "specification_payments", Columns: []string{"id", "specification_id", "category", "payment_number", "amount",
		"currency", "amount_usd", "paid_on", "description", "created_by", "created_at"}},
	{Table: "payment_schedule", Columns: []string{"id", "specification_id", "payment_number", "basis", "days",
		"expected_date", "actual_date", "amount", "currency", "purpose", "comment", "created_by", "created_at"}},
}
