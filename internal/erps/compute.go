package erps

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/fx"
	"github.com/odyssey-erp/dealdesk/internal/payments"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// Compute derives the registry entry of one specification. Facts belonging to
// other specifications are ignored, so callers may pass the whole ledger.
func Compute(row SpecRow, paid []PaymentFact, planned []PlannedFact, today time.Time) Entry {
	sign := fx.DateOnly(row.SignDate)
	e := Entry{
		SpecificationID:  row.SpecificationID,
		Number:           row.Number,
		QuoteIDN:         row.QuoteIDN,
		CustomerName:     row.CustomerName,
		SignDate:         sign,
		DeliveryDeadline: sign.AddDate(0, 0, row.DeliveryPeriodDays),
		AdvanceDeadline:  sign.AddDate(0, 0, row.DeliveryPeriodDays+row.DaysFromDeliveryToAdvance),
		QuoteCurrency:    row.QuoteCurrency,
		QuoteTotal:       row.QuoteTotal,
		Total:            row.TotalUSD,
		PlannedAdvance:   shared.Round2(row.TotalUSD.Mul(row.AdvancePercent).Div(hundred)),
		TotalPaid:        decimal.Zero,
		TotalSpent:       decimal.Zero,
		RemainingPercent: decimal.Zero,
	}
	e.DaysRemaining = daysBetween(fx.DateOnly(today), e.AdvanceDeadline)

	for _, p := range paid {
		if p.SpecificationID != row.SpecificationID {
			continue
		}
		switch p.Category {
		case payments.CategoryIncome:
			e.TotalPaid = e.TotalPaid.Add(p.AmountUSD)
		case payments.CategoryExpense:
			e.TotalSpent = e.TotalSpent.Add(p.AmountUSD)
		}
	}
	e.Remaining = e.Total.Sub(e.TotalPaid)
	if e.Total.IsPositive() {
		e.RemainingPercent = shared.Round2(e.Remaining.Mul(hundred).Div(e.Total))
	}
	e.ActualProfit = e.TotalPaid.Sub(e.TotalSpent)

	for _, p := range planned {
		if p.SpecificationID != row.SpecificationID || p.ActualDate != nil || p.ExpectedDate == nil {
			continue
		}
		expected := fx.DateOnly(*p.ExpectedDate)
		if expected.Before(fx.DateOnly(today)) {
			e.OverduePlanned++
		}
		if e.NextPlannedDate == nil || expected.Before(*e.NextPlannedDate) {
			e.NextPlannedDate = &expected
		}
	}
	return e
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
