package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FeedClient fetches the daily rate table from an HTTP JSON endpoint shaped as
// {"date":"2006-01-02","base":"RUB","rates":{"USD":96.5}}.
type FeedClient struct {
	url        string
	httpClient *http.Client
}

// NewFeedClient builds a client for url.
func NewFeedClient(url string) *FeedClient {
	return &FeedClient{url: url, httpClient: &http.Client{Timeout: 20 * time.Second}}
}

type feedPayload struct {
	Date  string                     `json:"date"`
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Fetch downloads the current table and returns rates for the requested currencies.
func (c *FeedClient) Fetch(ctx context.Context, currencies []string) ([]Rate, error) {
	if c == nil || c.url == "" {
		return nil, fmt.Errorf("fx: feed url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fx: fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fx: feed returned status %d", resp.StatusCode)
	}
	var payload feedPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("fx: decode feed: %w", err)
	}
	if payload.Base != "" && !strings.EqualFold(payload.Base, BaseCurrency) {
		return nil, fmt.Errorf("fx: feed base %s, want %s", payload.Base, BaseCurrency)
	}
	date, err := time.Parse(time.DateOnly, payload.Date)
	if err != nil {
		return nil, fmt.Errorf("fx: feed date %q: %w", payload.Date, err)
	}
	rates := make([]Rate, 0, len(currencies))
	for _, code := range currencies {
		if code == BaseCurrency {
			continue
		}
		value, ok := payload.Rates[code]
		if !ok || !value.IsPositive() {
			continue
		}
		rates = append(rates, Rate{Date: date, Currency: code, Rate: value, Source: "feed"})
	}
	return rates, nil
}
