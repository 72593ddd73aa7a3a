package procurement

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/masterdata"
	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/sales"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuote(ctx context.Context, id int64) (QuoteRef, error)
	GetItem(ctx context.Context, id int64) (sales.Item, error)
	GetOffer(ctx context.Context, id int64) (Offer, error)
	ListOffers(ctx context.Context, itemID int64) ([]Offer, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, quoteID int64) ([]Invoice, error)
	ListInvoiceItems(ctx context.Context, invoiceID int64) ([]sales.Item, error)
	ListCosts(ctx context.Context, invoiceID int64) ([]Cost, error)
}

// ReferencePort resolves suppliers and buyer companies.
type ReferencePort interface {
	Supplier(ctx context.Context, id int64) (masterdata.Supplier, error)
	BuyerCompany(ctx context.Context, id int64) (masterdata.Company, error)
}

// Converter normalizes amounts between currencies.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, currency string, date time.Time, target string) (decimal.Decimal, error)
}

// Service orchestrates offer selection, invoice grouping and the invoice workflow.
type Service struct {
	repo  RepositoryPort
	refs  ReferencePort
	fx    Converter
	audit shared.AuditPort
	now   func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, refs ReferencePort, converter Converter, audit shared.AuditPort) *Service {
	return &Service{repo: repo, refs: refs, fx: converter, audit: audit, now: time.Now}
}

// workable reports whether procurement may still change the quote's items.
func workable(status sales.QuoteStatus) bool {
	return status == sales.QuoteStatusPendingProcurement || status == sales.QuoteStatusPriced
}

// groupable reports whether invoices of the quote may be created or regrouped.
func groupable(status sales.QuoteStatus) bool {
	return workable(status) || status == sales.QuoteStatusApproved
}

func (s *Service) supplier(ctx context.Context, orgID, id int64) (masterdata.Supplier, error) {
	sup, err := s.refs.Supplier(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return masterdata.Supplier{}, &shared.ReferentialError{Entity: "supplier", ID: id}
		}
		return masterdata.Supplier{}, err
	}
	if sup.OrgID != orgID {
		return masterdata.Supplier{}, &shared.ReferentialError{Entity: "supplier", ID: id}
	}
	return sup, nil
}

func (s *Service) buyer(ctx context.Context, orgID, id int64) error {
	c, err := s.refs.BuyerCompany(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &shared.ReferentialError{Entity: "company", ID: id}
		}
		return err
	}
	if c.OrgID != orgID {
		return &shared.ReferentialError{Entity: "company", ID: id}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.UserID, OrgID: actor.OrgID, Action: action, Entity: entity, EntityID: strconv.FormatInt(id, 10), Meta: meta})
}

// authorizeQuote resolves the owning quote of an entity and checks action against it.
func authorizeQuote(ctx context.Context, tx TxRepository, actor shared.Actor, action rbac.Action, quoteID int64) (QuoteRef, error) {
	q, err := tx.LockQuote(ctx, quoteID)
	if err != nil {
		return QuoteRef{}, err
	}
	if err := rbac.Authorize(actor, action, rbac.Resource{OrgID: q.OrgID}); err != nil {
		return QuoteRef{}, err
	}
	return q, nil
}
