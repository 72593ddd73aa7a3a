package cli

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/dealdesk/internal/fx"
)

// RateService is the part of fx.Service the rate commands drive.
type RateService interface {
	Import(ctx context.Context, rates []fx.Rate) (int, error)
	Gaps(ctx context.Context, from, to time.Time) (fx.GapReport, error)
}

// FXOpsCLI offers operational helpers to manage the exchange rate table.
type FXOpsCLI struct {
	rates RateService
}

// NewFXOpsCLI constructs a new helper instance.
func NewFXOpsCLI(rates RateService) (*FXOpsCLI, error) {
	if rates == nil {
		return nil, errors.New("fx cli: rate service required")
	}
	return &FXOpsCLI{rates: rates}, nil
}

const dateLayout = "2006-01-02"
