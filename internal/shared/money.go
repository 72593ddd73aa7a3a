package shared

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Calculation currencies handled by the rate feed. RUB is the rate base.
const (
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
	CurrencyRUB = "RUB"
	CurrencyCNY = "CNY"
	CurrencyTRY = "TRY"
)

// SupportedCurrencies lists the currencies the rate feed maintains.
func SupportedCurrencies() []string {
	return []string{CurrencyUSD, CurrencyEUR, CurrencyRUB, CurrencyCNY, CurrencyTRY}
}

// NormalizeCurrency upper-cases the code and checks it against the 3-letter
// pattern and the ISO 4217 table.
func NormalizeCurrency(field, code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !currencyPattern.MatchString(code) {
		return "", Invalid(field, "must be a 3-letter uppercase currency code")
	}
	if _, err := currency.ParseISO(code); err != nil {
		return "", Invalid(field, "is not a known ISO 4217 currency")
	}
	return code, nil
}

// RequirePositive rejects zero and negative amounts.
func RequirePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return Invalid(field, "must be greater than zero")
	}
	return nil
}

// RequireText rejects blank required text.
func RequireText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", Invalid(field, "is required")
	}
	return v, nil
}

// Round2 rounds a monetary amount to cents, half away from zero.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
