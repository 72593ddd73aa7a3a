package specifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/fx"
	"github.com/odyssey-erp/dealdesk/internal/masterdata"
	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/sales"
	"github.com/odyssey-erp/dealdesk/internal/shared"
	"github.com/odyssey-erp/dealdesk/report"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Specification, error)
	List(ctx context.Context, orgID int64, filter ListFilter) ([]Specification, error)
	GetQuote(ctx context.Context, quoteID int64) (QuoteRef, error)
	GetDeal(ctx context.Context, specificationID int64) (Deal, error)
	ListLines(ctx context.Context, quoteID int64) ([]Line, error)
}

// CustomerDirectory resolves the buyer side of the document.
type CustomerDirectory interface {
	Customer(ctx context.Context, id int64) (masterdata.Customer, error)
	Signatory(ctx context.Context, customerID int64, preferredID *int64) (masterdata.Contact, error)
}

// StageProvisioner opens the logistics stages of a new deal.
type StageProvisioner interface {
	EnsureStages(ctx context.Context, dealID int64) (int, error)
}

// Renderer converts an HTML document into PDF.
type Renderer interface {
	RenderHTML(ctx context.Context, html []byte) ([]byte, error)
}

// Service drives the specification lifecycle.
type Service struct {
	repo      RepositoryPort
	customers CustomerDirectory
	stages    StageProvisioner
	renderer  Renderer
	audit     shared.AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the service. stages and renderer may be nil; signing
// then leaves stage creation to the backfill job and documents cannot be rendered.
func NewService(repo RepositoryPort, customers CustomerDirectory, stages StageProvisioner, renderer Renderer, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, customers: customers, stages: stages, renderer: renderer, audit: audit, logger: logger, now: time.Now}
}

// TermsInput carries the negotiated terms of a specification.
type TermsInput struct {
	ValidityPeriod            string
	PaymentTerms              string
	AdvancePercent            decimal.Decimal
	DeliveryPeriodDays        int
	DaysFromDeliveryToAdvance int
	SignatoryContactID        *int64
}

// SignResult is returned by Sign.
type SignResult struct {
	Specification Specification `json:"specification"`
	Deal          Deal          `json:"deal"`
	StagesCreated int           `json:"stages_created"`
}

var hundred = decimal.NewFromInt(100)

func (in TermsInput) validate() error {
	if in.AdvancePercent.IsNegative() || in.AdvancePercent.GreaterThan(hundred) {
		return shared.Invalid("advance_percent", "must be between 0 and 100")
	}
	if in.DeliveryPeriodDays < 0 {
		return shared.Invalid("delivery_period_days", "must not be negative")
	}
	if in.DaysFromDeliveryToAdvance < 0 {
		return shared.Invalid("days_from_delivery_to_advance", "must not be negative")
	}
	if in.SignatoryContactID != nil && *in.SignatoryContactID <= 0 {
		return shared.Invalid("signatory_contact_id", "must be positive")
	}
	return nil
}

func (in TermsInput) apply(spec *Specification) {
	spec.ValidityPeriod = strings.TrimSpace(in.ValidityPeriod)
	spec.PaymentTerms = strings.TrimSpace(in.PaymentTerms)
	spec.AdvancePercent = in.AdvancePercent
	spec.DeliveryPeriodDays = in.DeliveryPeriodDays
	spec.DaysFromDeliveryToAdvance = in.DaysFromDeliveryToAdvance
	spec.SignatoryContactID = in.SignatoryContactID
}

// CreateFromQuote opens the draft specification of an approved quote. A quote
// carries at most one specification.
func (s *Service) CreateFromQuote(ctx context.Context, actor shared.Actor, quoteID int64, input TermsInput) (Specification, error) {
	if err := input.validate(); err != nil {
		return Specification{}, err
	}
	var spec Specification
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quote, err := tx.LockQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionSpecificationManage, rbac.Resource{OrgID: quote.OrgID}); err != nil {
			return err
		}
		if quote.Status != sales.QuoteStatusApproved {
			return &shared.WorkflowViolationError{Entity: "quote", ID: quoteID, From: string(quote.Status), Action: "create specification"}
		}
		if existing, found, err := tx.FindByQuote(ctx, quoteID); err != nil {
			return err
		} else if found {
			return &shared.ConflictError{Entity: "specification", Detail: fmt.Sprintf("quote %d already has specification %s", quoteID, existing.Number)}
		}
		if err := s.checkSignatory(ctx, quote, input.SignatoryContactID); err != nil {
			return err
		}
		year := s.now().Year()
		seq, err := tx.NextSequence(ctx, "specification_number", fmt.Sprintf("%d:%d", quote.OrgID, year))
		if err != nil {
			return err
		}
		spec = Specification{
			OrgID:     quote.OrgID,
			QuoteID:   quoteID,
			Number:    FormatNumber(year, seq),
			Status:    StatusDraft,
			CreatedBy: actor.UserID,
		}
		input.apply(&spec)
		id, err := tx.Insert(ctx, spec)
		if err != nil {
			return err
		}
		spec.ID = id
		return nil
	})
	if err != nil {
		return Specification{}, fmt.Errorf("create specification: %w", err)
	}
	s.recordAudit(ctx, actor, "SPECIFICATION_CREATE", spec.ID, map[string]any{"quote_id": quoteID, "number": spec.Number})
	return s.repo.Get(ctx, spec.ID)
}

func (s *Service) checkSignatory(ctx context.Context, quote QuoteRef, contactID *int64) error {
	if contactID == nil {
		return nil
	}
	if quote.CustomerID == nil {
		return shared.Invalid("signatory_contact_id", "quote has no customer")
	}
	_, err := s.customers.Signatory(ctx, *quote.CustomerID, contactID)
	return err
}

// Update rewrites the terms of a draft specification.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input TermsInput) (Specification, error) {
	if err := input.validate(); err != nil {
		return Specification{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		spec, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionSpecificationManage, rbac.Resource{OrgID: spec.OrgID}); err != nil {
			return err
		}
		if spec.Status != StatusDraft {
			return &shared.WorkflowViolationError{Entity: "specification", ID: id, From: string(spec.Status), Action: "update"}
		}
		if input.SignatoryContactID != nil {
			quote, err := tx.LockQuote(ctx, spec.QuoteID)
			if err != nil {
				return err
			}
			if err := s.checkSignatory(ctx, quote, input.SignatoryContactID); err != nil {
				return err
			}
		}
		input.apply(&spec)
		return tx.Update(ctx, spec)
	})
	if err != nil {
		return Specification{}, fmt.Errorf("update specification: %w", err)
	}
	s.recordAudit(ctx, actor, "SPECIFICATION_UPDATE", id, nil)
	return s.repo.Get(ctx, id)
}

// Approve moves a draft specification to approved.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64) (Specification, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		spec, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionSpecificationApprove, rbac.Resource{OrgID: spec.OrgID}); err != nil {
			return err
		}
		ok, err := tx.SetStatus(ctx, id, StatusDraft, StatusApproved)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.WorkflowViolationError{Entity: "specification", ID: id, From: string(spec.Status), Action: "approve"}
		}
		return nil
	})
	if err != nil {
		return Specification{}, fmt.Errorf("approve specification: %w", err)
	}
	s.recordAudit(ctx, actor, "SPECIFICATION_APPROVE", id, nil)
	return s.repo.Get(ctx, id)
}

// Sign records the signature of an approved specification and opens its deal.
// Logistics stages are provisioned after commit; a failure there is logged and
// left to the backfill job.
func (s *Service) Sign(ctx context.Context, actor shared.Actor, id int64, signDate time.Time) (SignResult, error) {
	if signDate.IsZero() {
		return SignResult{}, shared.Invalid("sign_date", "is required")
	}
	signDate = fx.DateOnly(signDate)
	deal := Deal{SpecificationID: id, Reference: uuid.New()}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		spec, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionSpecificationSign, rbac.Resource{OrgID: spec.OrgID}); err != nil {
			return err
		}
		ok, err := tx.Sign(ctx, id, signDate)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.WorkflowViolationError{Entity: "specification", ID: id, From: string(spec.Status), Action: "sign"}
		}
		dealID, err := tx.InsertDeal(ctx, deal)
		if err != nil {
			return err
		}
		deal.ID = dealID
		return nil
	})
	if err != nil {
		return SignResult{}, fmt.Errorf("sign specification: %w", err)
	}
	s.recordAudit(ctx, actor, "SPECIFICATION_SIGN", id, map[string]any{"deal_id": deal.ID, "reference": deal.Reference.String()})

	result := SignResult{}
	if s.stages != nil {
		created, err := s.stages.EnsureStages(ctx, deal.ID)
		if err != nil {
			s.logger.Warn("provision logistics stages", slog.Int64("deal_id", deal.ID), slog.Any("error", err))
		}
		result.StagesCreated = created
	}
	if result.Specification, err = s.repo.Get(ctx, id); err != nil {
		return SignResult{}, err
	}
	if result.Deal, err = s.repo.GetDeal(ctx, id); err != nil {
		return SignResult{}, err
	}
	return result, nil
}

// Get returns one specification.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Specification, error) {
	spec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Specification{}, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.Resource{OrgID: spec.OrgID}); err != nil {
		return Specification{}, err
	}
	return spec, nil
}

// List returns the actor's organization specifications.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Specification, error) {
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.Resource{OrgID: actor.OrgID}); err != nil {
		return nil, err
	}
	filter.Status = filter.Status.Normalize()
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, actor.OrgID, filter)
}

// GetDeal returns the deal of a signed specification.
func (s *Service) GetDeal(ctx context.Context, actor shared.Actor, specificationID int64) (Deal, error) {
	if _, err := s.Get(ctx, actor, specificationID); err != nil {
		return Deal{}, err
	}
	return s.repo.GetDeal(ctx, specificationID)
}

// RenderDocument produces the printable PDF of the specification, signed by
// the customer's signatory contact.
func (s *Service) RenderDocument(ctx context.Context, actor shared.Actor, id int64) ([]byte, error) {
	if s.renderer == nil {
		return nil, errors.New("render specification: renderer not configured")
	}
	html, err := s.DocumentHTML(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	pdf, err := s.renderer.RenderHTML(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("render specification: %w", err)
	}
	return pdf, nil
}

// DocumentHTML builds the HTML body of the specification document.
func (s *Service) DocumentHTML(ctx context.Context, actor shared.Actor, id int64) ([]byte, error) {
	spec, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	quote, err := s.repo.GetQuote(ctx, spec.QuoteID)
	if err != nil {
		return nil, err
	}
	if quote.CustomerID == nil {
		return nil, shared.Invalid("customer_id", "quote has no customer")
	}
	customer, err := s.customers.Customer(ctx, *quote.CustomerID)
	if err != nil {
		return nil, err
	}
	signatory, err := s.customers.Signatory(ctx, customer.ID, spec.SignatoryContactID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListLines(ctx, spec.QuoteID)
	if err != nil {
		return nil, err
	}
	doc := report.SpecificationDocument{
		Number:                    spec.Number,
		SignDate:                  spec.SignDate,
		CustomerName:              customer.Name,
		SignatoryName:             signatory.Name,
		SignatoryPosition:         signatory.Position,
		Currency:                  quote.Currency,
		Total:                     quote.TotalAmount,
		AdvancePercent:            spec.AdvancePercent,
		PaymentTerms:              spec.PaymentTerms,
		ValidityPeriod:            spec.ValidityPeriod,
		DeliveryPeriodDays:        spec.DeliveryPeriodDays,
		DaysFromDeliveryToAdvance: spec.DaysFromDeliveryToAdvance,
	}
	if quote.IDN != nil {
		doc.QuoteIDN = *quote.IDN
	}
	for _, l := range lines {
		line := report.SpecificationLine{Position: l.Position, Description: l.Description, Quantity: l.Quantity}
		if l.SKU != nil {
			line.SKU = *l.SKU
		}
		doc.Lines = append(doc.Lines, line)
	}
	return report.SpecificationHTML(doc)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.UserID, OrgID: actor.OrgID, Action: action, Entity: "specification", EntityID: strconv.FormatInt(id, 10), Meta: meta})
}
