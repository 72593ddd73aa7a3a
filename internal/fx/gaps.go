package fx

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// RateLister lists stored rates in a date range.
type RateLister interface {
	ListRates(ctx context.Context, from, to time.Time) ([]Rate, error)
}

// Gap is a currency with no rate row on Date.
type Gap struct {
	Date     time.Time
	Currency string
}

// GapReport summarises FindGaps.
type GapReport struct {
	From    time.Time
	To      time.Time
	Checked int
	Gaps    []Gap
}

// FindGaps reports every (date, currency) in [from, to] lacking a row. Weekend
// days are included; feeds that skip them show up here and the converter
// still resolves them through the on-or-before lookup.
func FindGaps(ctx context.Context, lister RateLister, from, to time.Time, currencies []string) (GapReport, error) {
	if lister == nil {
		return GapReport{}, fmt.Errorf("fx: rate lister required")
	}
	from, to = DateOnly(from), DateOnly(to)
	if from.IsZero() || to.IsZero() {
		return GapReport{}, fmt.Errorf("fx: date range is required")
	}
	if from.After(to) {
		return GapReport{}, fmt.Errorf("fx: from must not be after to")
	}
	wanted := make([]string, 0, len(currencies))
	for _, c := range currencies {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || c == BaseCurrency {
			continue
		}
		wanted = append(wanted, c)
	}
	sort.Strings(wanted)

	rates, err := lister.ListRates(ctx, from, to)
	if err != nil {
		return GapReport{}, err
	}
	have := make(map[string]struct{}, len(rates))
	for _, r := range rates {
		have[gapKey(r.Date, r.Currency)] = struct{}{}
	}

	report := GapReport{From: from, To: to, Gaps: make([]Gap, 0)}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, c := range wanted {
			report.Checked++
			if _, ok := have[gapKey(day, c)]; !ok {
				report.Gaps = append(report.Gaps, Gap{Date: day, Currency: c})
			}
		}
	}
	return report, nil
}

func gapKey(date time.Time, currency string) string {
	return DateOnly(date).Format(time.DateOnly) + "|" + currency
}
