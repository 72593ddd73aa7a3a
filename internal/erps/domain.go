// Package erps builds the registry of signed specifications: deadlines,
// balances and realized profit, recomputed from the live ledger on every read.
package erps

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/payments"
)

// SpecRow is a signed specification with its quote totals.
type SpecRow struct {
	SpecificationID           int64
	Number                    string
	QuoteIDN                  *string
	CustomerName              string
	SignDate                  time.Time
	AdvancePercent            decimal.Decimal
	DeliveryPeriodDays        int
	DaysFromDeliveryToAdvance int
	QuoteCurrency             string
	QuoteTotal                decimal.Decimal
	TotalUSD                  decimal.Decimal
}

// PaymentFact is a booked payment, valued in USD.
type PaymentFact struct {
	SpecificationID int64
	Category        payments.Category
	AmountUSD       decimal.Decimal
}

// PlannedFact is a scheduled payment.
type PlannedFact struct {
	SpecificationID int64
	ExpectedDate    *time.Time
	ActualDate      *time.Time
}

// Entry is one registry line. Money is in USD.
type Entry struct {
	SpecificationID  int64           `json:"specification_id"`
	Number           string          `json:"number"`
	QuoteIDN         *string         `json:"quote_idn,omitempty"`
	CustomerName     string          `json:"customer_name"`
	SignDate         time.Time       `json:"sign_date"`
	DeliveryDeadline time.Time       `json:"delivery_deadline"`
	AdvanceDeadline  time.Time       `json:"advance_deadline"`
	DaysRemaining    int             `json:"days_remaining"`
	QuoteCurrency    string          `json:"quote_currency"`
	QuoteTotal       decimal.Decimal `json:"quote_total"`
	Total            decimal.Decimal `json:"total"`
	PlannedAdvance   decimal.Decimal `json:"planned_advance"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	Remaining        decimal.Decimal `json:"remaining"`
	RemainingPercent decimal.Decimal `json:"remaining_percent"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	ActualProfit     decimal.Decimal `json:"actual_profit"`
	NextPlannedDate  *time.Time      `json:"next_planned_date,omitempty"`
	OverduePlanned   int             `json:"overdue_planned"`
}
