package fx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/dealdesk/internal/shared"
)

type memoryRates struct {
	rows []Rate
}

func (m *memoryRates) add(date string, currency string, rate string) {
	d, _ := time.Parse(time.DateOnly, date)
	m.rows = append(m.rows, Rate{Date: d, Currency: currency, Rate: decimal.RequireFromString(rate), Source: "test"})
}

func (m *memoryRates) RateOnOrBefore(_ context.Context, currency string, date time.Time) (Rate, bool, error) {
	var best Rate
	found := false
	for _, r := range m.rows {
		if r.Currency != currency || r.Date.After(date) {
			continue
		}
		if !found || r.Date.After(best.Date) {
			best, found = r, true
		}
	}
	return best, found, nil
}

func (m *memoryRates) ListRates(_ context.Context, from, to time.Time) ([]Rate, error) {
	var out []Rate
	for _, r := range m.rows {
		if !r.Date.Before(from) && !r.Date.After(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memoryRates) AppendRates(_ context.Context, rates []Rate) (int, error) {
	inserted := 0
	for _, r := range rates {
		if existing, ok, _ := m.RateOnOrBefore(context.Background(), r.Currency, r.Date); ok && existing.Date.Equal(DateOnly(r.Date)) {
			continue
		}
		r.Date = DateOnly(r.Date)
		m.rows = append(m.rows, r)
		inserted++
	}
	return inserted, nil
}

func day(s string) time.Time {
	d, _ := time.Parse(time.DateOnly, s)
	return d
}

func TestConvertUSDToBase(t *testing.T) {
	rates := &memoryRates{}
	rates.add("2026-03-02", "USD", "96.5")
	conv := NewConverter(rates)

	got, err := conv.Convert(context.Background(), decimal.NewFromInt(100), "USD", day("2026-03-02"), "RUB")
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(9650).Equal(got), got.String())
}

func TestConvertUsesClosestEarlierRate(t *testing.T) {
	rates := &memoryRates{}
	rates.add("2026-03-01", "USD", "95")
	rates.add("2026-03-05", "USD", "99")
	conv := NewConverter(rates)

	got, err := conv.Convert(context.Background(), decimal.NewFromInt(10), "USD", day("2026-03-04"), "RUB")
	require.NoError(t, err)
	require.Equal(t, "950", got.String())
}

func TestConvertCrossThroughBase(t *testing.T) {
	rates := &memoryRates{}
	rates.add("2026-03-02", "USD", "90")
	rates.add("2026-03-02", "EUR", "99")
	conv := NewConverter(rates)

	got, err := conv.Convert(context.Background(), decimal.NewFromInt(100), "EUR", day("2026-03-02"), "USD")
	require.NoError(t, err)
	require.Equal(t, "110", got.String())

	got, err = conv.Convert(context.Background(), decimal.NewFromInt(1), "USD", day("2026-03-02"), "EUR")
	require.NoError(t, err)
	require.Equal(t, "0.91", got.String())
}

func TestConvertMissingRate(t *testing.T) {
	rates := &memoryRates{}
	rates.add("2026-03-05", "CNY", "13.2")
	conv := NewConverter(rates)

	_, err := conv.Convert(context.Background(), decimal.NewFromInt(100), "CNY", day("2026-03-04"), "RUB")
	var missing *MissingRateError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "CNY", missing.Currency)
	require.True(t, errors.Is(err, ErrMissingRate))

	_, err = conv.Convert(context.Background(), decimal.NewFromInt(100), "RUB", day("2026-03-06"), "TRY")
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "TRY", missing.Currency)
}

func TestConvertSameCurrencyNeedsNoRate(t *testing.T) {
	conv := NewConverter(&memoryRates{})
	got, err := conv.Convert(context.Background(), decimal.RequireFromString("12.345"), "usd", day("2026-03-02"), "USD")
	require.NoError(t, err)
	require.Equal(t, "12.35", got.String())
}

func TestConvertRejectsMalformedCurrency(t *testing.T) {
	conv := NewConverter(&memoryRates{})
	_, err := conv.Convert(context.Background(), decimal.NewFromInt(1), "US", day("2026-03-02"), "RUB")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSumStopsOnMissingRate(t *testing.T) {
	rates := &memoryRates{}
	rates.add("2026-03-02", "USD", "90")
	conv := NewConverter(rates)
	_, err := conv.Sum(context.Background(), []Amount{
		{Value: decimal.NewFromInt(900), Currency: "RUB", Date: day("2026-03-02")},
		{Value: decimal.NewFromInt(5), Currency: "EUR", Date: day("2026-03-02")},
	}, "USD")
	require.ErrorIs(t, err, ErrMissingRate)

	total, err := conv.Sum(context.Background(), []Amount{
		{Value: decimal.NewFromInt(900), Currency: "RUB", Date: day("2026-03-02")},
		{Value: decimal.NewFromInt(5), Currency: "USD", Date: day("2026-03-02")},
	}, "USD")
	require.NoError(t, err)
	require.Equal(t, "15", total.String())
}

func TestFindGaps(t *testing.T) {
	rates := &memoryRates{}
	rates.add("2026-03-01", "USD", "90")
	rates.add("2026-03-02", "USD", "91")
	rates.add("2026-03-01", "EUR", "99")

	report, err := FindGaps(context.Background(), rates, day("2026-03-01"), day("2026-03-02"), []string{"USD", "EUR", "RUB"})
	require.NoError(t, err)
	require.Equal(t, 4, report.Checked)
	require.Equal(t, []Gap{{Date: day("2026-03-02"), Currency: "EUR"}}, report.Gaps)

	_, err = FindGaps(context.Background(), rates, day("2026-03-03"), day("2026-03-02"), nil)
	require.Error(t, err)
}

func TestServiceRefreshAppendsFeedRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"date":"2026-03-02","base":"RUB","rates":{"USD":96.5,"EUR":"104.1","CNY":13.3,"TRY":2.9,"JPY":0.6}}`))
	}))
	defer srv.Close()

	store := &memoryRates{}
	svc := NewService(store, NewFeedClient(srv.URL), nil)
	inserted, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, inserted)

	inserted, err = svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Zero(t, inserted)

	got, err := svc.Converter().Convert(context.Background(), decimal.NewFromInt(100), "USD", day("2026-03-02"), "RUB")
	require.NoError(t, err)
	require.Equal(t, "9650", got.String())
}

func TestServiceImportValidates(t *testing.T) {
	svc := NewService(&memoryRates{}, nil, nil)
	_, err := svc.Import(context.Background(), []Rate{{Date: day("2026-03-02"), Currency: "USD", Rate: decimal.Zero}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Import(context.Background(), []Rate{{Date: day("2026-03-02"), Currency: "RUB", Rate: decimal.NewFromInt(1)}})
	require.ErrorIs(t, err, shared.ErrValidation)

	n, err := svc.Import(context.Background(), []Rate{{Date: day("2026-03-02"), Currency: "eur", Rate: decimal.NewFromInt(100)}})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
