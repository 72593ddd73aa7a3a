package report

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil {
			return "—"
		}
		return t.Format("02.01.2006")
	},
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).ParseFS(templateFS, "templates/*.html"))

// SpecificationLine is one equipment row of the document.
type SpecificationLine struct {
	Position    int
	SKU         string
	Description string
	Quantity    decimal.Decimal
}

// SpecificationDocument is the printable specification to a supply contract.
type SpecificationDocument struct {
	Number                    string
	QuoteIDN                  string
	SignDate                  *time.Time
	CustomerName              string
	SignatoryName             string
	SignatoryPosition         string
	Currency                  string
	Total                     decimal.Decimal
	AdvancePercent            decimal.Decimal
	PaymentTerms              string
	ValidityPeriod            string
	DeliveryPeriodDays        int
	DaysFromDeliveryToAdvance int
	Lines                     []SpecificationLine
}

// SpecificationHTML renders the specification template.
func SpecificationHTML(doc SpecificationDocument) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "specification.html", doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
