package fx

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// RateSource looks up the closest rate on or before a date. ok is false when
// no such row exists.
type RateSource interface {
	RateOnOrBefore(ctx context.Context, currency string, date time.Time) (Rate, bool, error)
}

// Converter converts amounts between currencies through the base currency.
type Converter struct {
	source RateSource
}

// NewConverter constructs a converter over source.
func NewConverter(source RateSource) *Converter {
	return &Converter{source: source}
}

// Convert returns amount expressed in target on date, rounded to cents. A
// missing rate for either non-base side yields *MissingRateError; amounts are
// never passed through at parity.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, currency string, date time.Time, target string) (decimal.Decimal, error) {
	from, err := shared.NormalizeCurrency("currency", currency)
	if err != nil {
		return decimal.Zero, err
	}
	to, err := shared.NormalizeCurrency("target_currency", target)
	if err != nil {
		return decimal.Zero, err
	}
	if from == to {
		return shared.Round2(amount), nil
	}
	day := DateOnly(date)
	fromRate, err := c.rateToBase(ctx, from, day)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := c.rateToBase(ctx, to, day)
	if err != nil {
		return decimal.Zero, err
	}
	base := amount.Mul(fromRate)
	return shared.Round2(base.Div(toRate)), nil
}

// Sum converts every amount into target and adds them. The first missing rate aborts.
func (c *Converter) Sum(ctx context.Context, amounts []Amount, target string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, a := range amounts {
		converted, err := c.Convert(ctx, a.Value, a.Currency, a.Date, target)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(converted)
	}
	return shared.Round2(total), nil
}

// Amount is a monetary value tagged with its currency and valuation date.
type Amount struct {
	Value    decimal.Decimal
	Currency string
	Date     time.Time
}

func (c *Converter) rateToBase(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	if currency == BaseCurrency {
		return decimal.NewFromInt(1), nil
	}
	rate, ok, err := c.source.RateOnOrBefore(ctx, currency, date)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok || !rate.Rate.IsPositive() {
		return decimal.Zero, &MissingRateError{Currency: currency, Date: date}
	}
	return rate.Rate, nil
}
