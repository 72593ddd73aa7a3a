// Package fx normalizes monetary amounts across the supported calculation
// currencies using daily rates quoted against RUB.
package fx

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// BaseCurrency is the currency every stored rate is quoted against.
const BaseCurrency = shared.CurrencyRUB

// ErrMissingRate is the kind behind every *MissingRateError.
var ErrMissingRate = errors.New("fx: missing rate")

// Rate is the base-currency value of one unit of Currency on Date.
type Rate struct {
	Date     time.Time
	Currency string
	Rate     decimal.Decimal
	Source   string
}

// MissingRateError reports that no rate exists for Currency on or before Date.
type MissingRateError struct {
	Currency string
	Date     time.Time
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("fx: no %s rate on or before %s", e.Currency, e.Date.Format(time.DateOnly))
}

func (e *MissingRateError) Unwrap() error { return ErrMissingRate }

// MissingDependency marks the error as an absent upstream fact for the HTTP layer.
func (e *MissingRateError) MissingDependency() bool { return true }

// DateOnly truncates t to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
