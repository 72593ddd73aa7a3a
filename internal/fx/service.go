package fx

import (
	"context"
	"log/slog"
	"time"

	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Store is the persistence the service needs.
type Store interface {
	RateSource
	RateLister
	AppendRates(ctx context.Context, rates []Rate) (int, error)
}

// Fetcher retrieves the latest rate table.
type Fetcher interface {
	Fetch(ctx context.Context, currencies []string) ([]Rate, error)
}

// Service owns rate ingestion and exposes the converter.
type Service struct {
	store     Store
	feed      Fetcher
	converter *Converter
	logger    *slog.Logger
}

// NewService wires the service.
func NewService(store Store, feed Fetcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, feed: feed, converter: NewConverter(store), logger: logger}
}

// Converter exposes the shared converter instance.
func (s *Service) Converter() *Converter {
	return s.converter
}

// Refresh pulls the feed and appends rows not yet stored.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	rates, err := s.feed.Fetch(ctx, shared.SupportedCurrencies())
	if err != nil {
		return 0, err
	}
	inserted, err := s.store.AppendRates(ctx, rates)
	if err != nil {
		return 0, err
	}
	s.logger.Info("fx feed refreshed", slog.Int("fetched", len(rates)), slog.Int("inserted", inserted))
	return inserted, nil
}

// Import validates manually supplied rates and appends them.
func (s *Service) Import(ctx context.Context, rates []Rate) (int, error) {
	for i := range rates {
		code, err := shared.NormalizeCurrency("currency", rates[i].Currency)
		if err != nil {
			return 0, err
		}
		if code == BaseCurrency {
			return 0, shared.Invalid("currency", "base currency rate is fixed at 1")
		}
		if err := shared.RequirePositive("rate", rates[i].Rate); err != nil {
			return 0, err
		}
		if rates[i].Date.IsZero() {
			return 0, shared.Invalid("date", "is required")
		}
		rates[i].Currency = code
		if rates[i].Source == "" {
			rates[i].Source = "import"
		}
	}
	return s.store.AppendRates(ctx, rates)
}

// Gaps reports missing rate rows for the supported currencies.
func (s *Service) Gaps(ctx context.Context, from, to time.Time) (GapReport, error) {
	return FindGaps(ctx, s.store, from, to, shared.SupportedCurrencies())
}
