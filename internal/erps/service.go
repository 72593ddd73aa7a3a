package erps

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Source provides the registry inputs.
type Source interface {
	SignedSpecifications(ctx context.Context, orgID int64) ([]SpecRow, error)
	PaymentFacts(ctx context.Context, orgID int64) ([]PaymentFact, error)
	PlannedFacts(ctx context.Context, orgID int64) ([]PlannedFact, error)
}

// Service assembles the registry on demand.
type Service struct {
	source Source
	now    func() time.Time
}

// NewService constructs the registry service.
func NewService(source Source) *Service {
	return &Service{source: source, now: time.Now}
}

// Registry recomputes every entry of the organization from current data.
func (s *Service) Registry(ctx context.Context, actor shared.Actor, orgID int64) ([]Entry, error) {
	if err := rbac.Authorize(actor, rbac.ActionRegistryView, rbac.Resource{OrgID: orgID}); err != nil {
		return nil, err
	}

	var (
		specs   []SpecRow
		paid    []PaymentFact
		planned []PlannedFact
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		specs, err = s.source.SignedSpecifications(gctx, orgID)
		return err
	})
	g.Go(func() error {
		var err error
		paid, err = s.source.PaymentFacts(gctx, orgID)
		return err
	})
	g.Go(func() error {
		var err error
		planned, err = s.source.PlannedFacts(gctx, orgID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("erps registry: %w", err)
	}

	paidBySpec := make(map[int64][]PaymentFact, len(specs))
	for _, p := range paid {
		paidBySpec[p.SpecificationID] = append(paidBySpec[p.SpecificationID], p)
	}
	plannedBySpec := make(map[int64][]PlannedFact, len(specs))
	for _, p := range planned {
		plannedBySpec[p.SpecificationID] = append(plannedBySpec[p.SpecificationID], p)
	}

	today := s.now()
	entries := make([]Entry, 0, len(specs))
	for _, row := range specs {
		entries = append(entries, Compute(row, paidBySpec[row.SpecificationID], plannedBySpec[row.SpecificationID], today))
	}
	return entries, nil
}
