package erps

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/dealdesk/internal/payments"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func date(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }

func signedRow() SpecRow {
	return SpecRow{
		SpecificationID:           1,
		Number:                    "SP-2025-0001",
		SignDate:                  date(2025, 3, 1),
		AdvancePercent:            d("50"),
		DeliveryPeriodDays:        30,
		DaysFromDeliveryToAdvance: 10,
		QuoteCurrency:             "EUR",
		QuoteTotal:                d("1800"),
		TotalUSD:                  d("2000"),
	}
}

func TestComputeBalancesAndProfit(t *testing.T) {
	paid := []PaymentFact{
		{SpecificationID: 1, Category: payments.CategoryIncome, AmountUSD: d("600")},
		{SpecificationID: 1, Category: payments.CategoryIncome, AmountUSD: d("400")},
		{SpecificationID: 1, Category: payments.CategoryExpense, AmountUSD: d("600")},
		{SpecificationID: 2, Category: payments.CategoryIncome, AmountUSD: d("9999")},
	}
	e := Compute(signedRow(), paid, nil, date(2025, 3, 21))

	assert.Equal(t, date(2025, 3, 31), e.DeliveryDeadline)
	assert.Equal(t, date(2025, 4, 10), e.AdvanceDeadline)
	assert.Equal(t, 20, e.DaysRemaining)
	assert.True(t, d("1000").Equal(e.PlannedAdvance), e.PlannedAdvance.String())
	assert.True(t, d("1000").Equal(e.TotalPaid), e.TotalPaid.String())
	assert.True(t, d("1000").Equal(e.Remaining), e.Remaining.String())
	assert.True(t, d("50").Equal(e.RemainingPercent), e.RemainingPercent.String())
	assert.True(t, d("600").Equal(e.TotalSpent), e.TotalSpent.String())
	assert.True(t, d("400").Equal(e.ActualProfit), e.ActualProfit.String())
}

func TestComputeDefaultsToZero(t *testing.T) {
	row := signedRow()
	row.TotalUSD = decimal.Zero
	e := Compute(row, nil, nil, date(2025, 4, 15))

	assert.True(t, e.TotalPaid.IsZero())
	assert.True(t, e.TotalSpent.IsZero())
	assert.True(t, e.ActualProfit.IsZero())
	assert.True(t, e.RemainingPercent.IsZero())
	assert.Equal(t, -5, e.DaysRemaining)
	assert.Nil(t, e.NextPlannedDate)
}

func TestComputeSchedule(t *testing.T) {
	past := date(2025, 3, 10)
	next := date(2025, 3, 25)
	later := date(2025, 4, 5)
	done := date(2025, 3, 2)
	planned := []PlannedFact{
		{SpecificationID: 1, ExpectedDate: &later},
		{SpecificationID: 1, ExpectedDate: &done, ActualDate: &done},
		{SpecificationID: 1, ExpectedDate: &past},
		{SpecificationID: 1, ExpectedDate: &next},
		{SpecificationID: 1},
	}
	e := Compute(signedRow(), nil, planned, time.Date(2025, 3, 20, 18, 0, 0, 0, time.UTC))

	assert.Equal(t, 1, e.OverduePlanned)
	if assert.NotNil(t, e.NextPlannedDate) {
		assert.Equal(t, past, *e.NextPlannedDate)
	}
}
